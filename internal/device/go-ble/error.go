package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/rangelink/internal/device"
)

// CoreBluetooth manager states reported in "invalid state: have=N" errors
const (
	cbStateUnsupported = 2
	cbStatePoweredOff  = 4
)

// NormalizeError maps the go-ble failures the link runs into onto the device error taxonomy.
// The original error stays wrapped; anything unknown is returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ble.ErrNotImplemented) {
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	}

	msg := strings.ToLower(err.Error())
	if state, ok := managerState(msg); ok {
		switch state {
		case cbStatePoweredOff:
			return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
		case cbStateUnsupported:
			return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
		default: // unknown, resetting or unauthorized
			return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
		}
	}

	switch {
	case strings.Contains(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	// HCI socket missing, adapter down or no CAP_NET_ADMIN
	case strings.Contains(msg, "can't create hci"), strings.Contains(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	// ATT request without an answer, e.g. the server went out of range mid-lookup
	case strings.Contains(msg, "req timeout"):
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	case strings.Contains(msg, "device not connected"), strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	// a second dial while one is pending, or advertising restarted before the stop landed
	case strings.Contains(msg, "busy dialing"), strings.Contains(msg, "busy advertising"),
		strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	default:
		return err
	}
}

// managerState extracts N from CoreBluetooth's "manager has invalid state: have=N want=M" errors
func managerState(msg string) (int, bool) {
	if !strings.Contains(msg, "manager has invalid state") {
		return 0, false
	}
	i := strings.Index(msg, "have=")
	if i < 0 {
		return 0, false
	}
	var state int
	if _, err := fmt.Sscanf(msg[i:], "have=%d", &state); err != nil {
		return 0, false
	}
	return state, true
}
