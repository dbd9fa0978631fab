package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keeglog/internal/clock"
	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/marker"
	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/recorder"
	"github.com/verte-zerg/keeglog/internal/session"
	"github.com/verte-zerg/keeglog/internal/store"
	"github.com/verte-zerg/keeglog/internal/streambus"
	"github.com/verte-zerg/keeglog/internal/telemetry"
	"github.com/verte-zerg/keeglog/internal/tui"
)

const (
	defaultIterations = 4
	defaultTickMs     = 10
)

var (
	sessionIterations int
	sessionDeviceID   string
	sessionTickMs     int
	sessionDataDir    string
	busDir            string
)

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&sessionIterations, "iterations", defaultIterations, "passwords per training session")
	cmd.Flags().StringVar(&sessionDeviceID, "device-id", "", "only attach to EEG streams whose name contains this id")
	cmd.Flags().IntVar(&sessionTickMs, "tick-ms", defaultTickMs, "logic tick in milliseconds")
	cmd.Flags().StringVar(&sessionDataDir, "data-dir", config.DefaultDataDir(), "directory for session CSV files")
	cmd.Flags().StringVar(&busDir, "bus-dir", config.DefaultBusDir(), "stream advertisement directory")
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Type generated passwords while EEG is recorded",
		Args:  cobra.NoArgs,
		RunE:  runTrainCmd,
	}
	addSessionFlags(cmd)
	return cmd
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Type your stored password while EEG is recorded",
		Args:  cobra.NoArgs,
		RunE:  runPredictCmd,
	}
	addSessionFlags(cmd)
	return cmd
}

func runTrainCmd(cmd *cobra.Command, _ []string) error {
	return runSession(cmd, model.PurposeTraining)
}

func runPredictCmd(cmd *cobra.Command, _ []string) error {
	return runSession(cmd, model.PurposePrediction)
}

func applySessionConfig(cmd *cobra.Command, fileCfg config.FileConfig) error {
	applyIntConfig(cmd, "iterations", &sessionIterations, fileCfg.Session.Iterations)
	applyStringConfig(cmd, "device-id", &sessionDeviceID, fileCfg.Session.DeviceID)
	applyIntConfig(cmd, "tick-ms", &sessionTickMs, fileCfg.Session.TickMs)
	applyStringConfig(cmd, "data-dir", &sessionDataDir, fileCfg.Session.DataDir)
	applyStringConfig(cmd, "bus-dir", &busDir, fileCfg.Bus.Dir)
	if sessionIterations <= 0 {
		return fmt.Errorf("--iterations must be > 0")
	}
	if sessionTickMs <= 0 {
		return fmt.Errorf("--tick-ms must be > 0")
	}
	return nil
}

func runSession(cmd *cobra.Command, purpose model.Purpose) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applySessionConfig(cmd, fileCfg); err != nil {
		return err
	}
	logger, logCloser, err := openLogger(cmd, fileCfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	clk := clock.Real()
	dir := streambus.NewDirectory(busDir)
	entry := tui.NewEntry()
	opts := session.DefaultOptions()
	opts.Purpose = purpose
	opts.Iterations = sessionIterations
	opts.DeviceID = sessionDeviceID

	rt, err := session.New(opts, session.Deps{
		Profiles: profiles,
		Link:     telemetry.NewLink(telemetry.NewBusResolver(dir, clk), telemetry.TypeEEG, logger),
		OpenMarkers: func(name string) (marker.Publisher, error) {
			outlet, err := streambus.NewOutlet(dir, marker.StreamInfo(name), streambus.OutletOptions{Clock: clk, Logger: logger})
			if err != nil {
				return nil, err
			}
			return outlet, nil
		},
		Recorder: recorder.New(sessionDataDir, st, logger),
		Entry:    entry,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	m := tui.NewModel(rt, entry, time.Duration(sessionTickMs)*time.Millisecond, logger)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := program.Run()
	rt.Close()
	_, _ = rt.Tick()
	if runErr != nil {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	if err := m.Err(); err != nil {
		return err
	}

	files := rt.Files()
	if files.Telemetry == "" {
		logErrf("Session ended before it finished; nothing saved.\n")
		return nil
	}
	logErrf("Saved EEG data to: %s\n", files.Telemetry)
	logErrf("Saved Marker data to: %s\n", files.Markers)
	if v := rt.Verdict(); v != session.VerdictNone {
		logErrf("Password %s.\n", v)
	}
	return nil
}
