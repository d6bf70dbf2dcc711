package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
)

// bleClient is the part of ble.Client a session uses
type bleClient interface {
	Addr() ble.Addr
	ExchangeMTU(rxMTU int) (int, error)
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// Session implements device.Session for one go-ble client connection
type Session struct {
	client bleClient
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

func newSession(client bleClient, logger *logrus.Logger) *Session {
	return &Session{client: client, logger: logger}
}

func (s *Session) Address() string {
	if addr := s.client.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Session) ExchangeMTU(mtu int) (int, error) {
	txMTU, err := s.client.ExchangeMTU(mtu)
	return txMTU, NormalizeError(err)
}

// Characteristic discovers service, then characteristic, then the characteristic's descriptors
// (the CCCD is required to subscribe). The go-ble calls cannot be cancelled, so on ctx expiry
// the lookup is abandoned and ctx.Err() is returned.
func (s *Session) Characteristic(ctx context.Context, service, characteristic string) (device.Characteristic, error) {
	svcUUID, err := ble.Parse(service)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", service, err)
	}
	charUUID, err := ble.Parse(characteristic)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristic, err)
	}

	type result struct {
		char *ble.Characteristic
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.lookup(svcUUID, charUUID, service, characteristic)
		done <- result{char: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return newCharacteristic(s.client, r.char, s.logger), nil
	}
}

func (s *Session) lookup(svcUUID, charUUID ble.UUID, service, characteristic string) (*ble.Characteristic, error) {
	services, err := s.client.DiscoverServices([]ble.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}
	var svc *ble.Service
	for _, candidate := range services {
		if candidate.UUID.Equal(svcUUID) {
			svc = candidate
			break
		}
	}
	if svc == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	s.logger.WithField("service_uuid", service).Debug("Found service")

	chars, err := s.client.DiscoverCharacteristics([]ble.UUID{charUUID}, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics: %w", NormalizeError(err))
	}
	var char *ble.Characteristic
	for _, candidate := range chars {
		if candidate.UUID.Equal(charUUID) {
			char = candidate
			break
		}
	}
	if char == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}

	if char.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
		if _, err := s.client.DiscoverDescriptors(nil, char); err != nil {
			return nil, fmt.Errorf("failed to discover descriptors: %w", NormalizeError(err))
		}
	}

	s.logger.WithFields(logrus.Fields{
		"char_uuid":  characteristic,
		"properties": toProperties(char.Property),
	}).Debug("Found characteristic")
	return char, nil
}

func (s *Session) Disconnected() <-chan struct{} {
	return s.client.Disconnected()
}

// Disconnect cancels the connection. Calling it again is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := NormalizeError(s.client.CancelConnection())
	if err != nil {
		s.logger.WithError(err).Warn("BLE device disconnected with errors")
	} else {
		s.logger.WithField("address", s.Address()).Info("BLE device disconnected")
	}
	return err
}
