package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
	goble "github.com/srg/rangelink/internal/device/go-ble"
	"github.com/srg/rangelink/internal/sensor"
	"github.com/srg/rangelink/pkg/config"
)

// Transport and sensor constructors, replaced in tests
var (
	newCentral = func(opts device.ScanOptions, logger *logrus.Logger) (device.Central, error) {
		c, err := goble.NewCentral(opts, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	newPeripheral = func(opts goble.PeripheralOptions, logger *logrus.Logger) (device.Peripheral, error) {
		p, err := goble.NewPeripheral(opts, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	newSampler = func(cfg config.SensorConfig) (sensor.Sampler, error) {
		if cfg.Mode == config.SensorSimulated {
			return sensor.NewSimulated(cfg.SimulatedBase, cfg.SimulatedJitter, cfg.SimulatedSeed), nil
		}
		h, err := sensor.OpenHCSR04(cfg.TriggerPin, cfg.EchoPin, cfg.EchoTimeout)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
)
