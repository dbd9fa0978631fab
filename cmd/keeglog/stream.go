package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/keeglog/internal/clock"
	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/streambus"
	"github.com/verte-zerg/keeglog/internal/telemetry"
)

var (
	streamDeviceID string
	streamRate     float64
	streamSeed     int64
	streamBusDir   string
)

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Publish a simulated Muse EEG stream",
		Args:  cobra.NoArgs,
		RunE:  runStreamCmd,
	}
	cmd.Flags().StringVar(&streamDeviceID, "device-id", "", "device id appended to the stream name")
	cmd.Flags().Float64Var(&streamRate, "rate", telemetry.MuseSampleRate, "samples per second")
	cmd.Flags().Int64Var(&streamSeed, "seed", 0, "noise seed (default: time based)")
	cmd.Flags().StringVar(&streamBusDir, "bus-dir", config.DefaultBusDir(), "stream advertisement directory")
	return cmd
}

func runStreamCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "device-id", &streamDeviceID, fileCfg.Session.DeviceID)
	applyStringConfig(cmd, "bus-dir", &streamBusDir, fileCfg.Bus.Dir)
	if streamRate <= 0 {
		return fmt.Errorf("--rate must be > 0")
	}
	logger, logCloser, err := openLogger(cmd, fileCfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	seed := streamSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	outlet, err := streambus.NewOutlet(streambus.NewDirectory(streamBusDir), telemetry.MuseInfo(streamDeviceID),
		streambus.OutletOptions{Clock: clock.Real(), Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	defer func() {
		_ = outlet.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := outlet.Info()
	fmt.Fprintf(cmd.OutOrStdout(), "Streaming %s (%d channels at %.0f Hz) on %s. Press Ctrl+C to stop.\n",
		info.Name, info.ChannelCount, streamRate, info.Addr)
	sim := telemetry.NewSimulator(outlet, streamRate, seed)
	if err := sim.Run(ctx); err != nil {
		return fmt.Errorf("stream stopped: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d samples.\n", sim.Sent())
	return nil
}
