package device_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/rangelink/internal/device"
	"github.com/stretchr/testify/assert"
)

type stubAdvertisement struct {
	services []string
}

func (a stubAdvertisement) LocalName() string  { return "welcome" }
func (a stubAdvertisement) Services() []string { return a.services }
func (a stubAdvertisement) Connectable() bool  { return true }
func (a stubAdvertisement) RSSI() int          { return -60 }
func (a stubAdvertisement) Addr() string       { return "aa:bb:cc:dd:ee:ff" }

func TestNotFoundError_Message(t *testing.T) {
	tests := []struct {
		name     string
		err      *device.NotFoundError
		expected string
	}{
		{"no uuids", &device.NotFoundError{Resource: "service"}, "service not found"},
		{"service", &device.NotFoundError{Resource: "service", UUIDs: []string{"d4d8b28b"}}, `service "d4d8b28b" not found`},
		{
			"characteristic in service",
			&device.NotFoundError{Resource: "characteristic", UUIDs: []string{"d4d8b28b", "c8e44563"}},
			`characteristic "c8e44563" not found in service "d4d8b28b"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConnectionError_Is(t *testing.T) {
	wrapped := fmt.Errorf("%w: peer went away", device.ErrNotConnected)

	assert.ErrorIs(t, wrapped, device.ErrNotConnected, "wrapped sentinel MUST match by state")
	assert.NotErrorIs(t, wrapped, device.ErrAlreadyConnected, "different state MUST NOT match")
	assert.NotErrorIs(t, errors.New("boom"), device.ErrNotConnected)
	assert.Equal(t, "not_connected: detail", (&device.ConnectionError{State: device.NotConnected, Msg: "detail"}).Error())
}

func TestHasService(t *testing.T) {
	adv := stubAdvertisement{services: []string{"180f", "D4D8B28B-8928-4044-B3B2-FBED8F587FD0"}}

	assert.True(t, device.HasService(adv, "d4d8b28b-8928-4044-b3b2-fbed8f587fd0"), "dashed lowercase MUST match uppercase advertised form")
	assert.True(t, device.HasService(adv, "0000180f-0000-1000-8000-00805f9b34fb"), "SIG base form MUST match short form")
	assert.False(t, device.HasService(adv, "c8e44563-c8f3-4822-8a41-9f4df10fa9ac"))
	assert.False(t, device.HasService(stubAdvertisement{}, "180f"), "advertisement without services MUST NOT match")
	assert.False(t, device.HasService(adv, ""), "empty target MUST NOT match")
}

func TestProperties(t *testing.T) {
	p := device.PropRead | device.PropWrite | device.PropNotify

	assert.True(t, p.CanRead())
	assert.True(t, p.CanWrite())
	assert.True(t, p.CanNotify())
	assert.Equal(t, "read,write,notify", p.String())
	assert.False(t, device.Properties(0).CanNotify())
	assert.True(t, device.PropIndicate.CanNotify(), "indicate MUST count as notifiable")
}
