// Package client runs the central side of the link: discover the peripheral, subscribe to its
// distance notifications and fold them into the session aggregate.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/aggregate"
	"github.com/srg/rangelink/internal/device"
	"github.com/srg/rangelink/internal/discovery"
	"github.com/srg/rangelink/internal/groutine"
	"github.com/srg/rangelink/internal/ringchan"
	"github.com/srg/rangelink/internal/wire"
)

// DefaultQueueCapacity bounds the notification queue between the transport and the loop
const DefaultQueueCapacity = 64

// Options configures a Client
type Options struct {
	Service        string
	Characteristic string

	// ScanDuration bounds the first scan; rescans after a disconnect are unbounded
	ScanDuration time.Duration
	// Period drives the heartbeat and the rescan after a disconnect
	Period time.Duration
	MTU    int
	// DiscoveryTimeout bounds dial plus service/characteristic lookup; 0 waits indefinitely
	DiscoveryTimeout time.Duration

	MalformedPolicy wire.MalformedPolicy
	QueueCapacity   int

	// HeartbeatWithResponse waits for the peer to acknowledge each heartbeat write
	HeartbeatWithResponse bool
}

type scanMatch struct {
	gen     uint64
	address string
	name    string
	rssi    int
}

type scanResult struct {
	gen uint64
	err error
}

// Client owns the discovery machine, the single live session and the aggregate. Only the Run
// goroutine touches them; transport callbacks post into bounded queues.
type Client struct {
	opts    Options
	central device.Central
	logger  *logrus.Logger
	sinks   []Sink

	machine *discovery.Machine
	stats   *aggregate.Session

	notifications *ringchan.RingChannel[[]byte]
	matches       *ringchan.RingChannel[scanMatch]
	scanDone      *ringchan.RingChannel[scanResult]

	scanGen    uint64
	scanCancel context.CancelFunc
	scans      groutine.Group

	peer    scanMatch
	session device.Session
	char    device.Characteristic

	started time.Time
	now     func() time.Time
}

// New creates a Client
func New(opts Options, central device.Central, logger *logrus.Logger, sinks ...Sink) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.MalformedPolicy == "" {
		opts.MalformedPolicy = wire.PolicyZero
	}
	return &Client{
		opts:          opts,
		central:       central,
		logger:        logger,
		sinks:         sinks,
		machine:       discovery.NewMachine(logger),
		stats:         aggregate.NewSession(),
		notifications: ringchan.New[[]byte](opts.QueueCapacity),
		matches:       ringchan.New[scanMatch](4),
		scanDone:      ringchan.New[scanResult](4),
		now:           time.Now,
	}
}

// Snapshot returns the current aggregate. Safe to call from any goroutine.
func (c *Client) Snapshot() aggregate.Snapshot {
	return c.stats.Snapshot()
}

// Run loops until ctx is done. It returns nil on cancellation; transport failures are logged and
// recovered from by rescanning.
func (c *Client) Run(ctx context.Context) error {
	c.started = c.now()
	c.fire(ctx, discovery.Event{Kind: discovery.Start})

	ticker := time.NewTicker(c.opts.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case m := <-c.matches.C():
			c.handleMatch(ctx, m)

		case res := <-c.scanDone.C():
			if res.gen != c.scanGen {
				continue
			}
			// matches posted before the scan returned come first
			for m, ok := c.matches.TryReceive(); ok; m, ok = c.matches.TryReceive() {
				c.handleMatch(ctx, m)
			}
			if res.err != nil && !errors.Is(res.err, context.Canceled) && !errors.Is(res.err, context.DeadlineExceeded) {
				c.logger.WithError(res.err).Error("Scan failed")
			}
			c.fire(ctx, discovery.Event{Kind: discovery.ScanEnded})

		case data := <-c.notifications.C():
			c.handleNotification(ctx, data)

		case <-c.linkLost():
			c.fire(ctx, discovery.Event{Kind: discovery.LinkLost})

		case <-ticker.C:
			c.fire(ctx, discovery.Event{Kind: discovery.Tick})
		}
	}
}

func (c *Client) handleMatch(ctx context.Context, m scanMatch) {
	if m.gen != c.scanGen || c.machine.State() != discovery.Scanning {
		return
	}
	c.peer = m
	c.fire(ctx, discovery.Event{Kind: discovery.Advertisement, Match: true})
}

func (c *Client) linkLost() <-chan struct{} {
	if c.session == nil {
		return nil
	}
	return c.session.Disconnected()
}

func (c *Client) fire(ctx context.Context, ev discovery.Event) {
	switch c.machine.Fire(ev) {
	case discovery.StartBoundedScan:
		c.startScan(ctx, c.opts.ScanDuration)
	case discovery.StartUnboundedScan:
		c.startScan(ctx, 0)
	case discovery.StopScan:
		c.stopScan()
		c.logger.WithFields(logrus.Fields{
			"address": c.peer.address,
			"name":    c.peer.name,
			"rssi":    c.peer.rssi,
		}).Info("Found server")
		c.fire(ctx, discovery.Event{Kind: discovery.Dial})
	case discovery.Connect:
		if err := c.connect(ctx); err != nil {
			c.logger.WithError(err).WithField("address", c.peer.address).Error("Failed to connect to server")
			c.fire(ctx, discovery.Event{Kind: discovery.AttemptFailed})
			return
		}
		c.fire(ctx, discovery.Event{Kind: discovery.SubscribeSucceeded})
	case discovery.Disconnect:
		c.closeSession(true)
	case discovery.ReleaseSession:
		c.logger.WithField("address", c.peer.address).Warn("Lost connection to server, rescanning")
		c.closeSession(false)
	case discovery.WriteHeartbeat:
		c.writeHeartbeat()
	}
}

func (c *Client) startScan(ctx context.Context, d time.Duration) {
	c.stopScan()
	c.scanGen++
	gen := c.scanGen

	var scanCtx context.Context
	var cancel context.CancelFunc
	if d > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, d)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	c.scanCancel = cancel

	c.logger.WithFields(logrus.Fields{
		"service":  c.opts.Service,
		"duration": d,
	}).Info("Scanning for server...")

	c.scans.Go(ctx, "discovery-scan", func(context.Context) {
		err := c.central.Scan(scanCtx, func(adv device.Advertisement) {
			if !device.HasService(adv, c.opts.Service) {
				return
			}
			c.matches.ForceSend(scanMatch{gen: gen, address: adv.Addr(), name: adv.LocalName(), rssi: adv.RSSI()})
		})
		c.scanDone.ForceSend(scanResult{gen: gen, err: err})
	})
}

func (c *Client) stopScan() {
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
}

// connect dials the matched peer and brings the characteristic to a subscribed state.
// On error the partially opened session is left in c.session for the Disconnect action.
func (c *Client) connect(ctx context.Context) error {
	logger := c.logger.WithField("address", c.peer.address)
	logger.Info("Connecting to server...")

	lookupCtx := ctx
	if c.opts.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, c.opts.DiscoveryTimeout)
		defer cancel()
	}

	session, err := c.central.Dial(lookupCtx, c.peer.address)
	if err != nil {
		return fmt.Errorf("dial failed: %w", lookupErr(lookupCtx, err))
	}
	c.session = session

	if c.opts.MTU > 0 {
		mtu, err := session.ExchangeMTU(c.opts.MTU)
		if err != nil {
			logger.WithError(err).Warn("MTU exchange failed, keeping the default")
		} else {
			logger.WithField("mtu", mtu).Debug("MTU negotiated")
		}
	}

	char, err := session.Characteristic(lookupCtx, c.opts.Service, c.opts.Characteristic)
	if err != nil {
		return lookupErr(lookupCtx, err)
	}

	props := char.Properties()
	if props.CanRead() {
		value, err := char.Read()
		if err != nil {
			logger.WithError(err).Warn("Initial read failed")
		} else {
			logger.WithField("value", string(value)).Info("Initial characteristic value")
		}
	}

	if props.CanNotify() {
		if err := char.Subscribe(func(data []byte) {
			c.notifications.ForceSend(append([]byte(nil), data...))
		}); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}
	} else {
		logger.WithField("properties", props).Warn("Characteristic does not support notifications")
	}

	c.char = char
	logger.WithField("properties", props).Info("Connected to server")
	return nil
}

func lookupErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: discovery did not complete: %w", device.ErrTimeout, err)
	}
	return err
}

func (c *Client) closeSession(disconnect bool) {
	if c.session != nil && disconnect {
		if err := c.session.Disconnect(); err != nil {
			c.logger.WithError(err).Debug("Disconnect failed")
		}
	}
	c.session = nil
	c.char = nil
}

func (c *Client) writeHeartbeat() {
	if c.char == nil || !c.char.Properties().CanWrite() {
		return
	}
	msg := wire.FormatHeartbeat(c.now().Sub(c.started))
	if err := c.char.Write([]byte(msg), c.opts.HeartbeatWithResponse); err != nil {
		c.logger.WithError(err).Warn("Heartbeat write failed")
		return
	}
	c.logger.WithField("value", msg).Debug("Heartbeat written")
}

func (c *Client) handleNotification(ctx context.Context, data []byte) {
	v, err := wire.DecodeDistance(data)
	if err != nil {
		c.logger.WithError(err).WithField("policy", c.opts.MalformedPolicy).Warn("Malformed notification")
	}
	reading, ok := c.opts.MalformedPolicy.Resolve(v, err)
	if !ok {
		return
	}

	snap := c.stats.Observe(reading)
	c.logger.WithFields(logrus.Fields{
		"current": snap.Current,
		"min":     snap.Min,
		"max":     snap.Max,
	}).Debug("Distance received")

	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			c.logger.WithError(err).Warn("Failed to publish snapshot")
		}
	}
}

func (c *Client) shutdown() {
	c.stopScan()
	c.closeSession(true)
	c.scans.Wait()

	snap := c.stats.Snapshot()
	c.logger.WithFields(logrus.Fields{
		"readings":              snap.Count,
		"min":                   snap.Min,
		"max":                   snap.Max,
		"dropped_notifications": c.notifications.Dropped(),
	}).Info("Client stopped")
}
