package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found on the remote peer
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth is turned off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// Advertisement is a single advertising report seen while scanning
type Advertisement interface {
	LocalName() string
	Services() []string
	Connectable() bool
	RSSI() int
	Addr() string
}

// HasService reports whether adv lists the given service UUID among its advertised services.
// Both sides are normalized, so dashed and undashed forms compare equal.
func HasService(adv Advertisement, service string) bool {
	want := NormalizeUUID(service)
	if want == "" {
		return false
	}
	for _, s := range adv.Services() {
		if NormalizeUUID(s) == want {
			return true
		}
	}
	return false
}

// ScanOptions tunes a scan. Interval and Window are in controller units (0.625 ms) and are applied
// by backends that expose scan parameters.
type ScanOptions struct {
	Active          bool
	Interval        uint16
	Window          uint16
	AllowDuplicates bool
}

// Central is the scanning/dialing half of the BLE transport
type Central interface {
	// Scan blocks until ctx is done, invoking handler for every advertisement.
	Scan(ctx context.Context, handler func(Advertisement)) error
	// Dial connects to the peripheral with the given address.
	Dial(ctx context.Context, address string) (Session, error)
}

// Session is a live connection to one peripheral. It is invalid after Disconnected() fires and
// must not be reused.
type Session interface {
	Address() string
	ExchangeMTU(mtu int) (int, error)
	// Characteristic resolves service then characteristic on the peer.
	// Returns *NotFoundError when either lookup fails.
	Characteristic(ctx context.Context, service, characteristic string) (Characteristic, error)
	Disconnected() <-chan struct{}
	Disconnect() error
}

// Properties is a bit set of characteristic capabilities
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

func (p Properties) CanRead() bool   { return p&PropRead != 0 }
func (p Properties) CanWrite() bool  { return p&(PropWrite|PropWriteWithoutResponse) != 0 }
func (p Properties) CanNotify() bool { return p&(PropNotify|PropIndicate) != 0 }

// String renders the set as a comma separated list, e.g. "read,write,notify"
func (p Properties) String() string {
	names := make([]string, 0, 5)
	if p&PropRead != 0 {
		names = append(names, "read")
	}
	if p&PropWrite != 0 {
		names = append(names, "write")
	}
	if p&PropWriteWithoutResponse != 0 {
		names = append(names, "write-without-response")
	}
	if p&PropNotify != 0 {
		names = append(names, "notify")
	}
	if p&PropIndicate != 0 {
		names = append(names, "indicate")
	}
	return strings.Join(names, ",")
}

// Characteristic is a remote GATT characteristic resolved through a Session
type Characteristic interface {
	UUID() string
	Properties() Properties
	Read() ([]byte, error)
	Write(data []byte, withResponse bool) error
	// Subscribe registers handler for notifications. The handler runs on the transport's
	// goroutine and must not block.
	Subscribe(handler func([]byte)) error
}

// LinkEventKind distinguishes peer connect from peer disconnect on the peripheral side
type LinkEventKind int

const (
	PeerConnected LinkEventKind = iota
	PeerDisconnected
)

func (k LinkEventKind) String() string {
	switch k {
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("LinkEventKind(%d)", int(k))
	}
}

// LinkEvent is a connect/disconnect report from the peripheral transport
type LinkEvent struct {
	Kind    LinkEventKind
	Address string
}

// ServiceDefinition describes the single read/write/notify characteristic a peripheral exposes
type ServiceDefinition struct {
	Service        string
	Characteristic string
	Initial        []byte
}

// Peripheral is the advertising/serving half of the BLE transport
type Peripheral interface {
	Serve(def ServiceDefinition) error
	// StartAdvertising (re)starts advertising name and services; it returns once advertising is
	// scheduled. Advertising stops when ctx is done or StopAdvertising is called.
	StartAdvertising(ctx context.Context, name string, services ...string) error
	StopAdvertising()
	// Notify updates the characteristic value and pushes it to the subscriber, if any.
	// No subscriber is not an error.
	Notify(value []byte) error
	Events() <-chan LinkEvent
	Writes() <-chan []byte
	Close() error
}
