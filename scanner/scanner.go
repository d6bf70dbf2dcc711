// Package scanner lists nearby advertisers, optionally restricted to a service id.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/device"
	"github.com/srg/rangelink/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type      DeviceEventType
	Entry     DeviceEntry
	Timestamp time.Time
}

// DeviceEntry is the latest view of one advertiser
type DeviceEntry struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	Seen        int       `json:"seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration     time.Duration
	ServiceUUIDs []string
	AllowList    []string
	BlockList    []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 5 * time.Second,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	central device.Central
	devices *hashmap.Map[string, DeviceEntry]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger
	now     func() time.Time
}

// NewScanner creates a new scanner over central
func NewScanner(central device.Central, logger *logrus.Logger) (*Scanner, error) {
	if central == nil {
		return nil, errors.New("central is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		central: central,
		devices: hashmap.New[string, DeviceEntry](),
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Scan performs discovery until opts.Duration elapses (0 scans until ctx is done) and returns the
// matching advertisers by address
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceEntry, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	filter, err := newFilter(opts)
	if err != nil {
		return nil, err
	}

	s.devices = hashmap.New[string, DeviceEntry]()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	err = s.central.Scan(ctx, func(adv device.Advertisement) {
		s.handleAdvertisement(adv, filter)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	devices := make(map[string]DeviceEntry, s.devices.Len())
	s.devices.Range(func(key string, value DeviceEntry) bool {
		devices[key] = value
		return true
	})
	return devices, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement, f *filter) {
	addr := adv.Addr()
	if addr == "" {
		return
	}

	prev, existing := s.devices.Get(addr)
	if !existing && !f.include(adv) {
		return
	}

	entry := DeviceEntry{
		Address:     addr,
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    adv.Services(),
		Seen:        prev.Seen + 1,
		LastSeen:    s.now(),
	}
	// Scan responses often omit the name
	if entry.Name == "" {
		entry.Name = prev.Name
	}
	s.devices.Set(addr, entry)

	event := DeviceEvent{Entry: entry, Timestamp: entry.LastSeen, Type: EventUpdated}
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  entry.Name,
			"address": entry.Address,
			"rssi":    entry.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.ForceSend(event)
}

// Devices returns the current registry sorted by name, then address
func (s *Scanner) Devices() []DeviceEntry {
	devs := make([]DeviceEntry, 0, s.devices.Len())
	s.devices.Range(func(_ string, value DeviceEntry) bool {
		devs = append(devs, value)
		return true
	})
	SortEntries(devs)
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// SortEntries orders entries by name, then address
func SortEntries(entries []DeviceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Address < entries[j].Address
	})
}

// filter applies allow/block/service filters to first sightings
type filter struct {
	services []string
	allow    map[string]struct{}
	block    map[string]struct{}
}

func newFilter(opts *ScanOptions) (*filter, error) {
	f := &filter{}
	if len(opts.ServiceUUIDs) > 0 {
		services, err := device.ValidateUUID(opts.ServiceUUIDs...)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
		f.services = services
	}
	f.allow = addressSet(opts.AllowList)
	f.block = addressSet(opts.BlockList)
	return f, nil
}

func (f *filter) include(adv device.Advertisement) bool {
	addr := normalizeAddress(adv.Addr())
	if _, blocked := f.block[addr]; blocked {
		return false
	}
	if len(f.allow) > 0 {
		if _, allowed := f.allow[addr]; !allowed {
			return false
		}
	}
	if len(f.services) == 0 {
		return true
	}
	for _, svc := range f.services {
		if device.HasService(adv, svc) {
			return true
		}
	}
	return false
}

func addressSet(addrs []string) map[string]struct{} {
	if len(addrs) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[normalizeAddress(a)] = struct{}{}
	}
	return set
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
