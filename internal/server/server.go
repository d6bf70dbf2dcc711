// Package server runs the peripheral side of the link: sample, denoise, gate and notify, while
// keeping advertising alive across peer disconnects.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/denoise"
	"github.com/srg/rangelink/internal/device"
	"github.com/srg/rangelink/internal/link"
	"github.com/srg/rangelink/internal/sensor"
	"github.com/srg/rangelink/internal/wire"
)

// Options configures a Server
type Options struct {
	Name           string
	Service        string
	Characteristic string

	// Period is the pause at the end of every cycle
	Period time.Duration
	// SettleDelay is the wait between a disconnect and re-advertising
	SettleDelay time.Duration

	Window           int
	WarmupCorrection bool
	SendInterval     time.Duration
	Threshold        float64
}

// Stats counts what the loop did
type Stats struct {
	Cycles         uint64
	SensorErrors   uint64
	Sent           uint64
	AboveThreshold uint64
	NotifyErrors   uint64
	Heartbeats     uint64
	Restarts       uint64
}

// Server owns the peripheral loop. All state is mutated by the loop goroutine only; the transport
// reports connects, disconnects and writes through the Peripheral's channels.
type Server struct {
	opts    Options
	periph  device.Peripheral
	sampler sensor.Sampler
	logger  *logrus.Logger

	filter *denoise.MovingAverage
	policy *SendPolicy
	state  link.State
	stats  Stats

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Server. It does not touch the transport until Run.
func New(opts Options, periph device.Peripheral, sampler sensor.Sampler, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	var filterOpts []denoise.Option
	if opts.WarmupCorrection {
		filterOpts = append(filterOpts, denoise.WithWarmupCorrection())
	}
	return &Server{
		opts:    opts,
		periph:  periph,
		sampler: sampler,
		logger:  logger,
		filter:  denoise.NewMovingAverage(opts.Window, filterOpts...),
		policy:  NewSendPolicy(opts.SendInterval, opts.Threshold),
		state:   link.Advertising,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Run registers the service, starts advertising and loops until ctx is done.
// Returns nil on cancellation.
func (s *Server) Run(ctx context.Context) error {
	if err := s.periph.Serve(device.ServiceDefinition{
		Service:        s.opts.Service,
		Characteristic: s.opts.Characteristic,
	}); err != nil {
		return err
	}
	if err := s.periph.StartAdvertising(ctx, s.opts.Name, s.opts.Service); err != nil {
		return err
	}
	defer s.periph.StopAdvertising()

	s.logger.WithFields(logrus.Fields{
		"name":    s.opts.Name,
		"service": s.opts.Service,
	}).Info("Waiting for clients...")

	for {
		if err := s.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logStats()
				return nil
			}
			return err
		}
		if err := s.sleep(ctx, s.opts.Period); err != nil {
			s.logStats()
			return nil
		}
	}
}

// Step runs one cycle: apply link events, log heartbeats, take a reading, and notify if the
// policy allows. Only context errors are returned; everything else is logged and absorbed.
func (s *Server) Step(ctx context.Context) error {
	s.stats.Cycles++

	if err := s.drainLinkEvents(ctx); err != nil {
		return err
	}
	s.drainWrites()

	raw, err := s.sampler.Measure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.stats.SensorErrors++
		s.logger.WithError(err).Warn("Sensor read failed, using 0")
		raw = 0
	}
	avg := s.filter.Push(raw)

	s.logger.WithFields(logrus.Fields{
		"raw":      raw,
		"denoised": avg,
	}).Debug("Distance sampled")

	if s.state != link.Connected {
		return nil
	}

	switch s.policy.Decide(avg, s.now()) {
	case DecisionSend:
		s.publish(avg)
	case DecisionAboveThreshold:
		s.stats.AboveThreshold++
		s.logger.WithField("denoised", avg).Debug("Distance at or above threshold, not sending")
	}
	return nil
}

// State returns the current link state
func (s *Server) State() link.State {
	return s.state
}

// Stats returns a copy of the loop counters
func (s *Server) Stats() Stats {
	return s.stats
}

func (s *Server) publish(avg float64) {
	msg := wire.EncodeDistance(avg)
	if err := s.periph.Notify(msg); err != nil {
		s.stats.NotifyErrors++
		s.logger.WithError(err).Warn("Failed to notify distance")
		return
	}
	s.stats.Sent++
	s.logger.WithField("value", string(msg)).Info("Notified distance")
}

func (s *Server) drainLinkEvents(ctx context.Context) error {
	for {
		select {
		case ev := <-s.periph.Events():
			if err := s.apply(ctx, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Server) apply(ctx context.Context, ev device.LinkEvent) error {
	var lev link.Event
	switch ev.Kind {
	case device.PeerConnected:
		lev = link.PeerConnected
	case device.PeerDisconnected:
		lev = link.PeerDisconnected
	default:
		return nil
	}

	next, action := link.Next(s.state, lev)
	logger := s.logger.WithFields(logrus.Fields{
		"peer":  ev.Address,
		"event": lev,
		"from":  s.state,
		"to":    next,
	})
	s.state = next

	switch action {
	case link.MarkConnected:
		logger.Info("Client connected")
	case link.RestartAdvertising:
		logger.Info("Client disconnected, restarting advertising")
		if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
			return err
		}
		if err := s.periph.StartAdvertising(ctx, s.opts.Name, s.opts.Service); err != nil {
			logger.WithError(err).Error("Failed to restart advertising")
			return nil
		}
		s.stats.Restarts++
	default:
		logger.Debug("Ignoring redundant link event")
	}
	return nil
}

func (s *Server) drainWrites() {
	for {
		select {
		case data := <-s.periph.Writes():
			s.stats.Heartbeats++
			fields := logrus.Fields{"value": string(data)}
			if uptime, err := wire.DecodeHeartbeat(data); err == nil {
				fields["client_uptime"] = uptime
			}
			s.logger.WithFields(fields).Info("Received write")
		default:
			return
		}
	}
}

func (s *Server) logStats() {
	s.logger.WithFields(logrus.Fields{
		"cycles":          s.stats.Cycles,
		"sent":            s.stats.Sent,
		"above_threshold": s.stats.AboveThreshold,
		"sensor_errors":   s.stats.SensorErrors,
		"notify_errors":   s.stats.NotifyErrors,
		"heartbeats":      s.stats.Heartbeats,
		"restarts":        s.stats.Restarts,
	}).Info("Server stopped")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
