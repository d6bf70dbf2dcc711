//go:build linux

package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/srg/rangelink/internal/device"
)

const (
	scanTypePassive = 0x00
	scanTypeActive  = 0x01
)

// newPlatformDevice opens the default HCI device. Scan parameters only matter for the central.
func newPlatformDevice(role Role, opts device.ScanOptions) (ble.Device, error) {
	if role == RolePeripheral {
		dev, err := linux.NewDevice()
		if err != nil {
			return nil, err
		}
		return &hciDevice{Device: dev}, nil
	}
	if opts.Interval == 0 || opts.Window == 0 {
		return linux.NewDevice()
	}

	scanType := uint8(scanTypePassive)
	if opts.Active {
		scanType = scanTypeActive
	}
	return linux.NewDevice(ble.OptScanParams(cmd.LESetScanParameters{
		LEScanType:           scanType,
		LEScanInterval:       opts.Interval,
		LEScanWindow:         opts.Window,
		OwnAddressType:       0x00,
		ScanningFilterPolicy: 0x00,
	}))
}

// hciDevice lets the peripheral set advertising and scan response data byte for byte
type hciDevice struct {
	*linux.Device
}

// AdvertisePackets advertises ad and sr until ctx is done or the HCI device closes
func (d *hciDevice) AdvertisePackets(ctx context.Context, ad, sr []byte) error {
	if err := d.HCI.SetAdvertisement(ad, sr); err != nil {
		return err
	}
	if err := d.HCI.Advertise(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.HCI.Done():
		return d.HCI.Error()
	}
	if err := d.HCI.StopAdvertising(); err != nil {
		return err
	}
	return ctx.Err()
}
