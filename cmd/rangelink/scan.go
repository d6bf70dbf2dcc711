package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/rangelink/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby advertisers of the link service",
	Long: `Run a bounded scan and list the devices advertising the link service id with
their address, name and signal strength. Use --all to list every advertiser.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to client.scan_duration)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List all advertisers, not only the link service")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	central, err := newCentral(cfg.ScanOptions(), logger)
	if err != nil {
		return err
	}
	defer closeQuietly(central, logger)

	s, err := scanner.NewScanner(central, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := &scanner.ScanOptions{Duration: cfg.Client.ScanDuration}
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	if !scanAll {
		opts.ServiceUUIDs = []string{cfg.Link.Service}
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := s.Scan(ctx, opts, nil)
	if err != nil {
		return err
	}

	entries := make([]scanner.DeviceEntry, 0, len(devices))
	for _, e := range devices {
		entries = append(entries, e)
	}
	scanner.SortEntries(entries)

	if scanFormat == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), entries)
	}
	return displayDevicesTable(cmd.OutOrStdout(), entries)
}

func displayDevicesTable(out io.Writer, entries []scanner.DeviceEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(e.Services, ",")
		if len(services) > 40 {
			services = services[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, e.Address, e.RSSI, services)
	}

	return w.Flush()
}

func displayDevicesJSON(out io.Writer, entries []scanner.DeviceEntry) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}
