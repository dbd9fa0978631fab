// Package main provides the CLI entrypoint for keeglog.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/logging"
	"github.com/verte-zerg/keeglog/internal/profile"
)

var (
	logLevel string
	logFile  string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a missing stored password to 2 and everything else to 1.
func exitCode(err error) int {
	var missing *profile.MissingPasswordError
	if errors.As(err, &missing) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "keeglog",
		Short:        "Keystroke and EEG data collection sessions",
		SilenceUsage: true,
		RunE:         runTrainCmd,
	}
	addSessionFlags(rootCmd)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: info, debug or trace")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file (default: XDG data dir)")

	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newPredictCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newModeCmd())
	rootCmd.AddCommand(newSetpassCmd())
	rootCmd.AddCommand(newStreamCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// openLogger applies the [log] config section and opens the log file.
func openLogger(cmd *cobra.Command, fileCfg config.FileConfig) (*slog.Logger, io.Closer, error) {
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &logFile, fileCfg.Log.File)
	path := logFile
	if path == "" {
		path = config.DefaultLogPath()
	}
	f, err := logging.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewLogger(logLevel, f), f, nil
}

func openProfiles() (*config.TOMLStore, error) {
	s, err := config.OpenStore(config.DefaultProfilesPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open profiles: %w", err)
	}
	return s, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}
