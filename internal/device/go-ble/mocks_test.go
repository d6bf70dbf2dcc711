package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) AddService(svc *ble.Service) error {
	return m.Called(svc).Error(0)
}

func (m *mockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return m.Called(ctx, name, uuids).Error(0)
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

// mockPacketDevice is a backend that takes raw advertising data
type mockPacketDevice struct {
	mockDevice
}

func (m *mockPacketDevice) AdvertisePackets(ctx context.Context, ad, sr []byte) error {
	return m.Called(ctx, ad, sr).Error(0)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Addr() ble.Addr {
	addr, _ := m.Called().Get(0).(ble.Addr)
	return addr
}

func (m *mockClient) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *mockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	services, _ := args.Get(0).([]*ble.Service)
	return services, args.Error(1)
}

func (m *mockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *mockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	descs, _ := args.Get(0).([]*ble.Descriptor)
	return descs, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	ch, _ := m.Called().Get(0).(chan struct{})
	return ch
}

// stubAdvertisement is a fixed ble.Advertisement
type stubAdvertisement struct {
	name     string
	addr     ble.Addr
	rssi     int
	services []ble.UUID
	overflow []ble.UUID
}

func (a stubAdvertisement) LocalName() string              { return a.name }
func (a stubAdvertisement) ManufacturerData() []byte       { return nil }
func (a stubAdvertisement) ServiceData() []ble.ServiceData { return nil }
func (a stubAdvertisement) Services() []ble.UUID           { return a.services }
func (a stubAdvertisement) OverflowService() []ble.UUID    { return a.overflow }
func (a stubAdvertisement) TxPowerLevel() int              { return 127 }
func (a stubAdvertisement) Connectable() bool              { return true }
func (a stubAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a stubAdvertisement) RSSI() int                      { return a.rssi }
func (a stubAdvertisement) Addr() ble.Addr                 { return a.addr }

// fakeConn is a peer connection that can be dropped by the test
type fakeConn struct {
	addr ble.Addr
	done chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: ble.NewAddr(addr), done: make(chan struct{})}
}

func (c *fakeConn) RemoteAddr() ble.Addr          { return c.addr }
func (c *fakeConn) Disconnected() <-chan struct{} { return c.done }
func (c *fakeConn) drop()                         { close(c.done) }

// fakeNotifier records values pushed to one subscriber
type fakeNotifier struct {
	ctx    context.Context
	cancel context.CancelFunc
	sent   chan []byte
}

func newFakeNotifier() *fakeNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeNotifier{ctx: ctx, cancel: cancel, sent: make(chan []byte, 8)}
}

func (n *fakeNotifier) Context() context.Context { return n.ctx }

func (n *fakeNotifier) Write(data []byte) (int, error) {
	n.sent <- append([]byte(nil), data...)
	return len(data), nil
}
