package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/rangelink/internal/client"
	"github.com/srg/rangelink/internal/forward"
	"github.com/srg/rangelink/pkg/config"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Discover the server and track distance readings",
	Long: `Scan for the link service, connect to the first matching server, subscribe to
distance notifications and print current, minimum and maximum distance after every
reading. Lost connections are recovered by rescanning.

When mqtt.broker is configured, every snapshot is also published as JSON.`,
	Args: cobra.NoArgs,
	RunE: runClient,
}

var (
	clientFormat           string
	clientDiscoveryTimeout time.Duration
	clientMalformed        string
	clientBroker           string
)

func init() {
	clientCmd.Flags().StringVarP(&clientFormat, "format", "f", "", "Output format (text, json)")
	clientCmd.Flags().DurationVar(&clientDiscoveryTimeout, "discovery-timeout", 0, "Bound on dial plus service lookup (0 waits indefinitely)")
	clientCmd.Flags().StringVar(&clientMalformed, "malformed", "", "Handling of malformed frames (zero, drop)")
	clientCmd.Flags().StringVar(&clientBroker, "mqtt-broker", "", "Forward snapshots to this MQTT broker, e.g. tcp://localhost:1883")
}

func runClient(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyClientFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := client.NewWriterSink(cmd.OutOrStdout(), cfg.Client.OutputFormat)
	if err != nil {
		return err
	}
	sinks := []client.Sink{out}

	if cfg.MQTT.Broker != "" {
		fwd := forward.NewMQTT(cfg.MQTTOptions(), logger)
		if err := fwd.Connect(ctx); err != nil {
			return err
		}
		defer fwd.Close()
		sinks = append(sinks, fwd)
	}

	central, err := newCentral(cfg.ScanOptions(), logger)
	if err != nil {
		return err
	}
	defer closeQuietly(central, logger)

	logger.WithFields(logrus.Fields{
		"service":           cfg.Link.Service,
		"discovery_timeout": cfg.Client.DiscoveryTimeout,
		"malformed_policy":  cfg.Client.MalformedPolicy,
	}).Info("Starting client")

	return client.New(cfg.ClientOptions(), central, logger, sinks...).Run(ctx)
}

func applyClientFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("format") {
		cfg.Client.OutputFormat = clientFormat
	}
	if cmd.Flags().Changed("discovery-timeout") {
		cfg.Client.DiscoveryTimeout = clientDiscoveryTimeout
	}
	if cmd.Flags().Changed("malformed") {
		cfg.Client.MalformedPolicy = clientMalformed
	}
	if cmd.Flags().Changed("mqtt-broker") {
		cfg.MQTT.Broker = clientBroker
	}
}

func closeQuietly(v any, logger *logrus.Logger) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.WithError(err).Warn("Failed to release BLE device")
	}
}
