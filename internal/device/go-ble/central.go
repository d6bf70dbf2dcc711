package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
)

// Central implements device.Central on top of a go-ble device
type Central struct {
	dev      bleDevice
	allowDup bool
	logger   *logrus.Logger

	dial func(ctx context.Context, addr ble.Addr) (bleClient, error)
}

// NewCentral opens the platform device for scanning and dialing
func NewCentral(opts device.ScanOptions, logger *logrus.Logger) (*Central, error) {
	dev, err := DeviceFactory(RoleCentral, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return newCentral(dev, opts, logger), nil
}

func newCentral(dev bleDevice, opts device.ScanOptions, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Central{dev: dev, allowDup: opts.AllowDuplicates, logger: logger}
	c.dial = func(ctx context.Context, addr ble.Addr) (bleClient, error) {
		client, err := dev.Dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return c
}

// Scan blocks until ctx is done or the stack fails. A cancelled or expired ctx is returned as is.
func (c *Central) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	err := c.dev.Scan(ctx, c.allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return NormalizeError(err)
}

// Dial connects to the peripheral at address
func (c *Central) Dial(ctx context.Context, address string) (device.Session, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := c.dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}
	return newSession(client, c.logger), nil
}

// Close releases the device
func (c *Central) Close() error {
	return NormalizeError(c.dev.Stop())
}
