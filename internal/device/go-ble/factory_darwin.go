//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/srg/rangelink/internal/device"
)

// newPlatformDevice opens CoreBluetooth in the requested role. CoreBluetooth picks its own scan
// timing, so interval and window are ignored here.
func newPlatformDevice(role Role, _ device.ScanOptions) (ble.Device, error) {
	if role == RolePeripheral {
		return darwin.NewDevice(ble.OptPeripheralRole())
	}
	return darwin.NewDevice(ble.OptCentralRole())
}
