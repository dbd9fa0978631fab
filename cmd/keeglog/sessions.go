package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/stats"
	"github.com/verte-zerg/keeglog/internal/statsui"
	"github.com/verte-zerg/keeglog/internal/store"
)

const defaultCurveWindow = 5

var (
	sessionsUser        string
	sessionsMode        string
	sessionsSince       string
	sessionsLast        int
	sessionsCurveWindow int
	sessionsTUI         bool
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Report recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().StringVar(&sessionsUser, "user", "", "participant filter")
	cmd.Flags().StringVar(&sessionsMode, "mode", "", "password mode filter")
	cmd.Flags().StringVar(&sessionsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&sessionsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&sessionsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&sessionsTUI, "tui", false, "browse the report interactively")
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	filter, err := sessionsFilter()
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

	if sessionsTUI {
		program := tea.NewProgram(statsui.NewModel(st, filter), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(context.Background(), st, filter)
	if err != nil {
		return err
	}
	return stats.WriteReport(cmd.OutOrStdout(), report, terminalWidth())
}

func sessionsFilter() (model.SessionFilter, error) {
	filter := model.SessionFilter{
		Participant: sessionsUser,
		Last:        sessionsLast,
		CurveWindow: sessionsCurveWindow,
	}
	if sessionsMode != "" {
		mode, err := model.ParseMode(sessionsMode)
		if err != nil {
			return filter, err
		}
		filter.Mode = mode
	}
	if sessionsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sessionsSince, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if sessionsLast < 0 {
		return filter, fmt.Errorf("--last must be >= 0")
	}
	return filter, nil
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
