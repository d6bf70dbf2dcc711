package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
)

// Characteristic implements device.Characteristic for a discovered remote characteristic
type Characteristic struct {
	client bleClient
	char   *ble.Characteristic
	logger *logrus.Logger
}

func newCharacteristic(client bleClient, char *ble.Characteristic, logger *logrus.Logger) *Characteristic {
	return &Characteristic{client: client, char: char, logger: logger}
}

func (c *Characteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

func (c *Characteristic) Properties() device.Properties {
	return toProperties(c.char.Property)
}

func (c *Characteristic) Read() ([]byte, error) {
	if !c.Properties().CanRead() {
		return nil, fmt.Errorf("%w: characteristic %s is not readable", device.ErrUnsupported, c.UUID())
	}
	data, err := c.client.ReadCharacteristic(c.char)
	return data, NormalizeError(err)
}

// Write sends data; withResponse selects a write request over a write command
func (c *Characteristic) Write(data []byte, withResponse bool) error {
	if !c.Properties().CanWrite() {
		return fmt.Errorf("%w: characteristic %s is not writable", device.ErrUnsupported, c.UUID())
	}
	return NormalizeError(c.client.WriteCharacteristic(c.char, data, !withResponse))
}

// Subscribe enables notifications, or indications when the peer only offers those
func (c *Characteristic) Subscribe(handler func([]byte)) error {
	props := c.Properties()
	if !props.CanNotify() {
		return fmt.Errorf("%w: characteristic %s does not support notifications", device.ErrUnsupported, c.UUID())
	}
	indicate := props&device.PropNotify == 0
	err := c.client.Subscribe(c.char, indicate, func(data []byte) {
		handler(data)
	})
	if err != nil {
		return NormalizeError(err)
	}
	c.logger.WithFields(logrus.Fields{
		"char_uuid": c.UUID(),
		"indicate":  indicate,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}
