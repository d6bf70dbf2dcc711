// Package forward publishes client snapshots to an MQTT broker.
package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/aggregate"
	"github.com/srg/rangelink/internal/groutine"
	"github.com/srg/rangelink/internal/ringchan"
)

// ErrStopped is returned by Connect after Close
var ErrStopped = errors.New("forwarder stopped")

// Options configures the MQTT forwarder
type Options struct {
	Broker         string
	ClientID       string
	Topic          string
	QoS            byte
	PublishTimeout time.Duration
	QueueCapacity  int
}

// Message is the JSON document published for every snapshot
type Message struct {
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Snapshot  aggregate.Snapshot `json:"snapshot"`
}

// publisher is the subset of mqtt.Client the forwarder uses
type publisher interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT queues snapshots and publishes them from its own goroutine, so a slow broker never
// blocks the client loop. When the queue is full the oldest snapshot is dropped.
type MQTT struct {
	opts   Options
	client publisher
	logger *logrus.Logger
	queue  *ringchan.RingChannel[aggregate.Snapshot]
	now    func() time.Time

	group    groutine.Group
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMQTT builds a forwarder with a paho client that reconnects on its own
func NewMQTT(opts Options, logger *logrus.Logger) *MQTT {
	if logger == nil {
		logger = logrus.New()
	}
	f := newForwarder(opts, nil, logger)

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", opts.Broker).Info("MQTT connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).WithField("broker", opts.Broker).Warn("MQTT connection lost")
	})

	f.client = mqtt.NewClient(co)
	return f
}

func newForwarder(opts Options, client publisher, logger *logrus.Logger) *MQTT {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 32
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &MQTT{
		opts:   opts,
		client: client,
		logger: logger,
		queue:  ringchan.New[aggregate.Snapshot](opts.QueueCapacity),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Connect waits for the first broker connection, then starts the publishing goroutine.
// paho keeps retrying in the background, so this returns only on success, ctx or Close.
func (f *MQTT) Connect(ctx context.Context) error {
	select {
	case <-f.stopCh:
		return ErrStopped
	default:
	}

	token := f.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.stopCh:
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	f.group.Go(ctx, "mqtt-forwarder", f.drain)
	return nil
}

// Publish enqueues snap; it never blocks
func (f *MQTT) Publish(_ context.Context, snap aggregate.Snapshot) error {
	if f.queue.ForceSend(snap) {
		f.logger.WithField("dropped_total", f.queue.Dropped()).Debug("MQTT queue full, dropped oldest snapshot")
	}
	return nil
}

func (f *MQTT) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case snap := <-f.queue.C():
			if err := f.send(snap); err != nil {
				f.logger.WithError(err).WithField("topic", f.opts.Topic).Warn("Failed to forward snapshot")
			}
		}
	}
}

func (f *MQTT) send(snap aggregate.Snapshot) error {
	if !f.client.IsConnected() {
		return errors.New("mqtt client not connected")
	}
	payload, err := json.Marshal(Message{
		Source:    f.opts.ClientID,
		Timestamp: f.now().UTC(),
		Snapshot:  snap,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	token := f.client.Publish(f.opts.Topic, f.opts.QoS, false, payload)
	if !token.WaitTimeout(f.opts.PublishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", f.opts.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	f.logger.WithField("topic", f.opts.Topic).Debug("Forwarded snapshot")
	return nil
}

// Close stops the publishing goroutine and disconnects. Safe to call more than once.
func (f *MQTT) Close() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.group.Wait()
	f.client.Disconnect(250)
}
