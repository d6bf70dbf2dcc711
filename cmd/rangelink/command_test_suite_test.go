package main

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/rangelink/internal/device"
	goble "github.com/srg/rangelink/internal/device/go-ble"
	"github.com/srg/rangelink/internal/sensor"
	"github.com/srg/rangelink/internal/testutils"
	"github.com/srg/rangelink/pkg/config"
	"github.com/stretchr/testify/suite"
)

const linkService = "d4d8b28b-8928-4044-b3b2-fbed8f587fd0"

// CommandTestSuite runs rootCmd against in-memory transports
type CommandTestSuite struct {
	suite.Suite

	central    *replayCentral
	peripheral *idlePeripheral

	origCentral    func(device.ScanOptions, *logrus.Logger) (device.Central, error)
	origPeripheral func(goble.PeripheralOptions, *logrus.Logger) (device.Peripheral, error)
	origSampler    func(config.SensorConfig) (sensor.Sampler, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.origCentral, s.origPeripheral, s.origSampler = newCentral, newPeripheral, newSampler

	s.central = &replayCentral{}
	s.peripheral = &idlePeripheral{}
	newCentral = func(device.ScanOptions, *logrus.Logger) (device.Central, error) { return s.central, nil }
	newPeripheral = func(goble.PeripheralOptions, *logrus.Logger) (device.Peripheral, error) { return s.peripheral, nil }

	resetFlags(rootCmd)
}

func (s *CommandTestSuite) TearDownTest() {
	newCentral, newPeripheral, newSampler = s.origCentral, s.origPeripheral, s.origSampler
}

// ExecuteCommand runs rootCmd with args and stdin, returns stdout, stderr and error
func (s *CommandTestSuite) ExecuteCommand(ctx context.Context, stdin string, args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func (s *CommandTestSuite) Text() *testutils.TextAsserter {
	return testutils.NewTextAsserter(s.T())
}

// resetFlags restores every flag of cmd and its subcommands to its default
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

type advert struct {
	addr     string
	name     string
	rssi     int
	services []string
}

func (a advert) LocalName() string  { return a.name }
func (a advert) Services() []string { return a.services }
func (a advert) Connectable() bool  { return true }
func (a advert) RSSI() int          { return a.rssi }
func (a advert) Addr() string       { return a.addr }

// replayCentral replays adverts on every scan and never connects
type replayCentral struct {
	mu      sync.Mutex
	adverts []device.Advertisement
	scans   int
	closed  bool
}

func (c *replayCentral) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	c.mu.Lock()
	c.scans++
	adverts := c.adverts
	c.mu.Unlock()

	for _, a := range adverts {
		handler(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *replayCentral) Dial(context.Context, string) (device.Session, error) {
	return nil, device.ErrNotConnected
}

func (c *replayCentral) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *replayCentral) state() (scans int, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans, c.closed
}

// idlePeripheral serves and advertises but never sees a client
type idlePeripheral struct {
	mu          sync.Mutex
	served      device.ServiceDefinition
	advertised  string
	closed      bool
	events      chan device.LinkEvent
	writes      chan []byte
	initialized sync.Once
}

func (p *idlePeripheral) init() {
	p.initialized.Do(func() {
		p.events = make(chan device.LinkEvent)
		p.writes = make(chan []byte)
	})
}

func (p *idlePeripheral) Serve(def device.ServiceDefinition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.served = def
	return nil
}

func (p *idlePeripheral) StartAdvertising(_ context.Context, name string, _ ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advertised = name
	return nil
}

func (p *idlePeripheral) StopAdvertising()      {}
func (p *idlePeripheral) Notify([]byte) error { return nil }

func (p *idlePeripheral) Events() <-chan device.LinkEvent {
	p.init()
	return p.events
}

func (p *idlePeripheral) Writes() <-chan []byte {
	p.init()
	return p.writes
}

func (p *idlePeripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
