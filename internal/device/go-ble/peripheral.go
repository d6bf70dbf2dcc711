package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
	"github.com/srg/rangelink/internal/groutine"
	"github.com/srg/rangelink/internal/ringchan"
)

const (
	eventQueueCapacity = 16
	writeQueueCapacity = 16
)

// peerConn is the part of ble.Conn used to track a connected central
type peerConn interface {
	RemoteAddr() ble.Addr
	Disconnected() <-chan struct{}
}

// notifier is the part of ble.Notifier used to push values to a subscriber
type notifier interface {
	Context() context.Context
	Write(data []byte) (int, error)
}

type subscriber struct {
	id int
	n  notifier
}

// Peripheral implements device.Peripheral on top of a go-ble device.
//
// go-ble does not report link state to a GATT server directly, so a peer is considered connected
// on its first GATT request and disconnected when its connection's Disconnected channel closes.
type Peripheral struct {
	dev    bleDevice
	opts   PeripheralOptions
	logger *logrus.Logger

	events *ringchan.RingChannel[device.LinkEvent]
	writes *ringchan.RingChannel[[]byte]

	mu          sync.Mutex
	value       []byte
	served      bool
	subscribers []subscriber
	nextSubID   int
	peers       map[string]struct{}
	advCancel   context.CancelFunc
	advDone     chan struct{}
}

// NewPeripheral opens the platform device in the peripheral role
func NewPeripheral(opts PeripheralOptions, logger *logrus.Logger) (*Peripheral, error) {
	dev, err := DeviceFactory(RolePeripheral, device.ScanOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return newPeripheral(dev, opts, logger), nil
}

func newPeripheral(dev bleDevice, opts PeripheralOptions, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{
		dev:    dev,
		opts:   opts,
		logger: logger,
		events: ringchan.New[device.LinkEvent](eventQueueCapacity),
		writes: ringchan.New[[]byte](writeQueueCapacity),
		peers:  make(map[string]struct{}),
	}
}

// Serve registers the service with a single read/write/notify characteristic
func (p *Peripheral) Serve(def device.ServiceDefinition) error {
	svcUUID, err := ble.Parse(def.Service)
	if err != nil {
		return fmt.Errorf("invalid service UUID %q: %w", def.Service, err)
	}
	charUUID, err := ble.Parse(def.Characteristic)
	if err != nil {
		return fmt.Errorf("invalid characteristic UUID %q: %w", def.Characteristic, err)
	}

	p.mu.Lock()
	if p.served {
		p.mu.Unlock()
		return fmt.Errorf("service %s is already served", def.Service)
	}
	p.value = append([]byte(nil), def.Initial...)
	p.mu.Unlock()

	svc := ble.NewService(svcUUID)
	char := svc.NewCharacteristic(charUUID)
	char.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		if _, err := rsp.Write(p.handleRead(req.Conn(), req.Offset())); err != nil {
			p.logger.WithError(err).Debug("Read response truncated")
		}
	}))
	char.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, _ ble.ResponseWriter) {
		p.handleWrite(req.Conn(), req.Data())
	}))
	char.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		p.handleNotify(req.Conn(), n)
	}))

	if err := p.dev.AddService(svc); err != nil {
		return fmt.Errorf("failed to add service: %w", NormalizeError(err))
	}

	p.mu.Lock()
	p.served = true
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"service_uuid": def.Service,
		"char_uuid":    def.Characteristic,
	}).Info("GATT service registered")
	return nil
}

// StartAdvertising replaces any running advertisement. Backends that take raw advertising data
// also carry the preferred connection interval hint; the others advertise name and services only.
func (p *Peripheral) StartAdvertising(ctx context.Context, name string, services ...string) error {
	uuids := make([]ble.UUID, 0, len(services))
	for _, s := range services {
		u, err := ble.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid service UUID %q: %w", s, err)
		}
		uuids = append(uuids, u)
	}

	advertise := func(ctx context.Context) error {
		return p.dev.AdvertiseNameAndServices(ctx, name, uuids...)
	}
	if pa, ok := p.dev.(packetAdvertiser); ok {
		ad, sr, err := advertisingPackets(name, uuids, p.opts)
		if err != nil {
			return err
		}
		advertise = func(ctx context.Context) error {
			return pa.AdvertisePackets(ctx, ad, sr)
		}
	} else if p.opts.hasConnInterval() {
		p.logger.Debug("BLE backend cannot carry the connection interval hint, advertising without it")
	}

	p.StopAdvertising()

	advCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.mu.Lock()
	p.advCancel = cancel
	p.advDone = done
	p.mu.Unlock()

	groutine.Go(advCtx, "ble-advertise", func(ctx context.Context) {
		defer close(done)
		err := advertise(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.WithError(NormalizeError(err)).Warn("Advertising stopped unexpectedly")
		}
	})

	p.logger.WithField("name", name).Info("Advertising started")
	return nil
}

// StopAdvertising cancels the running advertisement and waits for it to end
func (p *Peripheral) StopAdvertising() {
	p.mu.Lock()
	cancel, done := p.advCancel, p.advDone
	p.advCancel, p.advDone = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Notify stores value for reads and writes it to every live subscriber
func (p *Peripheral) Notify(value []byte) error {
	p.mu.Lock()
	p.value = append(p.value[:0], value...)
	subs := append([]subscriber(nil), p.subscribers...)
	p.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if s.n.Context().Err() != nil {
			continue
		}
		if _, err := s.n.Write(value); err != nil {
			errs = append(errs, NormalizeError(err))
		}
	}
	return errors.Join(errs...)
}

func (p *Peripheral) Events() <-chan device.LinkEvent { return p.events.C() }

func (p *Peripheral) Writes() <-chan []byte { return p.writes.C() }

// Close stops advertising and releases the device
func (p *Peripheral) Close() error {
	p.StopAdvertising()
	return NormalizeError(p.dev.Stop())
}

func (p *Peripheral) handleRead(conn peerConn, offset int) []byte {
	p.observe(conn)

	p.mu.Lock()
	defer p.mu.Unlock()
	if offset < 0 || offset >= len(p.value) {
		return nil
	}
	return append([]byte(nil), p.value[offset:]...)
}

func (p *Peripheral) handleWrite(conn peerConn, data []byte) {
	p.observe(conn)
	if p.writes.ForceSend(append([]byte(nil), data...)) {
		p.logger.Debug("Write queue full, oldest write dropped")
	}
}

// handleNotify blocks for the lifetime of the subscription
func (p *Peripheral) handleNotify(conn peerConn, n notifier) {
	p.observe(conn)

	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers = append(p.subscribers, subscriber{id: id, n: n})
	p.mu.Unlock()

	p.logger.WithField("address", addrString(conn)).Info("Notifications subscribed")
	<-n.Context().Done()

	p.mu.Lock()
	for i, s := range p.subscribers {
		if s.id == id {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.logger.WithField("address", addrString(conn)).Info("Notifications unsubscribed")
}

// observe emits PeerConnected the first time a connection is seen and watches it for disconnect
func (p *Peripheral) observe(conn peerConn) {
	if conn == nil {
		return
	}
	addr := addrString(conn)

	p.mu.Lock()
	if _, known := p.peers[addr]; known {
		p.mu.Unlock()
		return
	}
	p.peers[addr] = struct{}{}
	p.mu.Unlock()

	p.events.ForceSend(device.LinkEvent{Kind: device.PeerConnected, Address: addr})

	groutine.Go(context.Background(), "ble-peer-watch", func(context.Context) {
		<-conn.Disconnected()
		p.mu.Lock()
		delete(p.peers, addr)
		p.mu.Unlock()
		p.events.ForceSend(device.LinkEvent{Kind: device.PeerDisconnected, Address: addr})
	})
}

func addrString(conn peerConn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
