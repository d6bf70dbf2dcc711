package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/rangelink/internal/server"
	"github.com/srg/rangelink/pkg/config"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the rangefinder peripheral",
	Long: `Advertise the link service, sample the rangefinder once per period and notify
the smoothed distance to the connected client.

A reading is sent at most once per send interval and only while it is below the
threshold. After a client disconnects, advertising restarts after a short settle delay.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverSimulate  bool
	serverThreshold float64
	serverName      string
)

func init() {
	serverCmd.Flags().BoolVar(&serverSimulate, "simulate", false, "Use a simulated rangefinder instead of GPIO")
	serverCmd.Flags().Float64Var(&serverThreshold, "threshold", 0, "Send only averages below this distance in cm (overrides config)")
	serverCmd.Flags().StringVar(&serverName, "name", "", "Advertised local name (overrides config)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServerFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sampler, err := newSampler(cfg.Sensor)
	if err != nil {
		return fmt.Errorf("failed to open rangefinder: %w", err)
	}
	periph, err := newPeripheral(cfg.PeripheralOptions(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := periph.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release BLE device")
		}
	}()

	logger.WithFields(logrus.Fields{
		"sensor":    cfg.Sensor.Mode,
		"window":    cfg.Filter.Window,
		"threshold": cfg.Server.Threshold,
	}).Info("Starting server")

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg.ServerOptions(), periph, sampler, logger).Run(ctx)
}

func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("simulate") && serverSimulate {
		cfg.Sensor.Mode = config.SensorSimulated
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Server.Threshold = serverThreshold
	}
	if cmd.Flags().Changed("name") {
		cfg.Link.Name = serverName
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
