package client

import (
	"context"
	"sync"

	"github.com/srg/rangelink/internal/device"
)

const (
	testService = "d4d8b28b-8928-4044-b3b2-fbed8f587fd0"
	testChar    = "c8e44563-c8f3-4822-8a41-9f4df10fa9ac"
)

type fakeAdv struct {
	name     string
	addr     string
	services []string
}

func (a fakeAdv) LocalName() string  { return a.name }
func (a fakeAdv) Services() []string { return a.services }
func (a fakeAdv) Connectable() bool  { return true }
func (a fakeAdv) RSSI() int          { return -50 }
func (a fakeAdv) Addr() string       { return a.addr }

func server(addr string) fakeAdv {
	return fakeAdv{name: "welcome", addr: addr, services: []string{"D4D8B28B-8928-4044-B3B2-FBED8F587FD0"}}
}

func stranger(addr string) fakeAdv {
	return fakeAdv{name: "other", addr: addr, services: []string{"180f"}}
}

type fakeChar struct {
	mu      sync.Mutex
	props   device.Properties
	value   []byte
	reads   int
	writes  []string
	acked   []bool
	handler func([]byte)
}

func (c *fakeChar) UUID() string                  { return testChar }
func (c *fakeChar) Properties() device.Properties { return c.props }

func (c *fakeChar) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.value, nil
}

func (c *fakeChar) Write(data []byte, withResponse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(data))
	c.acked = append(c.acked, withResponse)
	return nil
}

func (c *fakeChar) Acked() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.acked...)
}

func (c *fakeChar) Subscribe(handler func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *fakeChar) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *fakeChar) notify(frame string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h([]byte(frame))
}

func (c *fakeChar) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type fakeSession struct {
	mu           sync.Mutex
	address      string
	char         *fakeChar
	lookupErr    error
	mtu          int
	disconnects  int
	disconnected chan struct{}
	once         sync.Once
}

func newFakeSession(address string, char *fakeChar) *fakeSession {
	return &fakeSession{address: address, char: char, disconnected: make(chan struct{})}
}

func (s *fakeSession) Address() string { return s.address }

func (s *fakeSession) ExchangeMTU(mtu int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mtu = mtu
	return mtu, nil
}

func (s *fakeSession) Characteristic(ctx context.Context, service, characteristic string) (device.Characteristic, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if s.char == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.char, nil
}

func (s *fakeSession) Disconnected() <-chan struct{} { return s.disconnected }

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
	s.drop()
	return nil
}

// drop simulates the peer going away
func (s *fakeSession) drop() {
	s.once.Do(func() { close(s.disconnected) })
}

func (s *fakeSession) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

type fakeCentral struct {
	mu sync.Mutex
	// adverts[i] is replayed by the i-th scan; later scans see nothing
	adverts [][]device.Advertisement
	// endEarly makes every scan return right after replaying its advertisements
	endEarly bool
	scans    int
	dials    []string
	sessions []*fakeSession
	// sessionFor builds the session returned by the n-th dial
	sessionFor func(n int, address string) *fakeSession
}

func (c *fakeCentral) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	c.mu.Lock()
	idx := c.scans
	c.scans++
	var advs []device.Advertisement
	if idx < len(c.adverts) {
		advs = c.adverts[idx]
	}
	c.mu.Unlock()

	for _, adv := range advs {
		handler(adv)
	}
	if c.endEarly {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeCentral) Dial(_ context.Context, address string) (device.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.dials)
	c.dials = append(c.dials, address)
	s := c.sessionFor(n, address)
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeCentral) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}

func (c *fakeCentral) Dials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dials...)
}

func (c *fakeCentral) Session(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.sessions) {
		return nil
	}
	return c.sessions[i]
}
