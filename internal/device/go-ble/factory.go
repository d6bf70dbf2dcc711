package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/rangelink/internal/device"
)

// Role selects which half of the BLE stack a device is opened for
type Role int

const (
	RoleCentral Role = iota
	RolePeripheral
)

// bleDevice is the part of ble.Device the adapters use
type bleDevice interface {
	AddService(svc *ble.Service) error
	AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
	Stop() error
}

// DeviceFactory opens the platform BLE device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(role Role, opts device.ScanOptions) (bleDevice, error) {
	dev, err := newPlatformDevice(role, opts)
	if err != nil {
		return nil, NormalizeError(err)
	}
	return dev, nil
}
