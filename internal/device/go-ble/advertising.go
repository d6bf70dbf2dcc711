package goble

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux/adv"
)

const (
	// connIntervalUnit is the granularity of connection interval values on air
	connIntervalUnit = 1250 * time.Microsecond

	// advTypeConnIntervalRange is the Peripheral Connection Interval Range AD type
	advTypeConnIntervalRange = 0x12
)

// PeripheralOptions tunes what the peripheral puts on air
type PeripheralOptions struct {
	// ConnIntervalMin and ConnIntervalMax form the preferred connection interval range carried in
	// the advertising data. The hint is left out unless both are set.
	ConnIntervalMin time.Duration
	ConnIntervalMax time.Duration
}

func (o PeripheralOptions) hasConnInterval() bool {
	return o.ConnIntervalMin > 0 && o.ConnIntervalMax > 0
}

// packetAdvertiser is implemented by backends that take raw advertising and scan response data.
// CoreBluetooth does not, it only advertises a name and service list.
type packetAdvertiser interface {
	AdvertisePackets(ctx context.Context, ad, sr []byte) error
}

// connIntervalField encodes the range as two little endian 1.25 ms counts
func connIntervalField(minInterval, maxInterval time.Duration) adv.Field {
	b := []byte{5, advTypeConnIntervalRange, 0, 0, 0, 0}
	binary.LittleEndian.PutUint16(b[2:], uint16(minInterval/connIntervalUnit))
	binary.LittleEndian.PutUint16(b[4:], uint16(maxInterval/connIntervalUnit))
	return adv.Raw(b)
}

// advertisingPackets puts flags, the complete service list and the interval hint into the
// advertising data, and the local name into the scan response.
func advertisingPackets(name string, services []ble.UUID, opts PeripheralOptions) (ad, sr []byte, err error) {
	adPkt, err := adv.NewPacket(adv.Flags(adv.FlagGeneralDiscoverable | adv.FlagLEOnly))
	if err != nil {
		return nil, nil, err
	}
	srPkt, err := adv.NewPacket()
	if err != nil {
		return nil, nil, err
	}

	for _, u := range services {
		if err := adPkt.Append(adv.AllUUID(u)); err != nil {
			return nil, nil, fmt.Errorf("service %s does not fit the advertising data: %w", u, err)
		}
	}

	if opts.hasConnInterval() {
		field := connIntervalField(opts.ConnIntervalMin, opts.ConnIntervalMax)
		if adPkt.Append(field) != nil {
			if err := srPkt.Append(field); err != nil {
				return nil, nil, fmt.Errorf("connection interval hint does not fit: %w", err)
			}
		}
	}

	if name != "" {
		switch {
		case srPkt.Append(adv.CompleteName(name)) == nil:
		case adPkt.Append(adv.CompleteName(name)) == nil:
		default:
			return nil, nil, fmt.Errorf("local name %q does not fit: %w", name, adv.ErrNotFit)
		}
	}
	return adPkt.Bytes(), srPkt.Bytes(), nil
}
