package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/rangelink/internal/device"
)

// toProperties converts go-ble characteristic property bits into device.Properties
func toProperties(p ble.Property) device.Properties {
	var props device.Properties
	if p&ble.CharRead != 0 {
		props |= device.PropRead
	}
	if p&ble.CharWrite != 0 {
		props |= device.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		props |= device.PropWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		props |= device.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		props |= device.PropIndicate
	}
	return props
}
