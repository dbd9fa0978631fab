package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/profile"
)

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir+"/config")
	t.Setenv("XDG_DATA_HOME", dir+"/data")
	t.Setenv("XDG_RUNTIME_DIR", dir+"/run")
}

func TestExitCode(t *testing.T) {
	missing := fmt.Errorf("session: %w", &profile.MissingPasswordError{User: "ann", Mode: model.ModePinFixed4})
	if got := exitCode(missing); got != 2 {
		t.Fatalf("expected 2 for missing password, got %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"train", "predict", "user", "mode", "setpass", "stream", "sessions", "config"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %s", name)
		}
	}
	if root.Flags().Lookup("iterations") == nil {
		t.Fatalf("expected root to accept session flags")
	}
}

func TestUserAndModeCommands(t *testing.T) {
	isolate(t)
	out := runRoot(t, "user", "create", "ann")
	if !strings.Contains(out, "User ann created.") || !strings.Contains(out, "Active user set to: ann.") {
		t.Fatalf("unexpected create output: %q", out)
	}
	out = runRoot(t, "user", "create", "ann")
	if !strings.Contains(out, "User ann already exists.") {
		t.Fatalf("unexpected second create output: %q", out)
	}
	runRoot(t, "user", "create", "bob", "--activate=false")

	out = runRoot(t, "user", "list")
	if !strings.Contains(out, "Total users: 2") || !strings.Contains(out, "* ann") || !strings.Contains(out, "  bob") {
		t.Fatalf("unexpected list output: %q", out)
	}

	out = runRoot(t, "mode", "2")
	if !strings.Contains(out, "Active mode set to 2 (MIXED_FIXED_8).") {
		t.Fatalf("unexpected mode output: %q", out)
	}
	out = runRoot(t, "mode")
	if !strings.Contains(out, "Active mode: 2 (MIXED_FIXED_8)") {
		t.Fatalf("unexpected mode listing: %q", out)
	}

	profiles, err := openProfiles()
	if err != nil {
		t.Fatalf("open profiles: %v", err)
	}
	if user, err := profile.ActiveUser(profiles); err != nil || user != "ann" {
		t.Fatalf("expected active user ann, got %q (%v)", user, err)
	}
}

func TestUserActivateUnknown(t *testing.T) {
	isolate(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"user", "activate", "ghost"})
	err := cmd.Execute()
	if !errors.Is(err, profile.ErrUnknownUser) {
		t.Fatalf("expected unknown user error, got %v", err)
	}
}

func TestSessionsReportEmpty(t *testing.T) {
	isolate(t)
	sessionsUser, sessionsMode, sessionsSince, sessionsLast = "", "", "", 0
	out := runRoot(t, "sessions")
	if !strings.Contains(out, "No sessions found.") {
		t.Fatalf("unexpected report: %q", out)
	}
}

func TestSessionsFilter(t *testing.T) {
	sessionsUser, sessionsMode, sessionsSince, sessionsLast, sessionsCurveWindow = "ann", "1", "2026-01-02", 3, 5
	t.Cleanup(func() {
		sessionsUser, sessionsMode, sessionsSince, sessionsLast = "", "", "", 0
	})
	filter, err := sessionsFilter()
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if filter.Participant != "ann" || filter.Mode != model.ModePinFixed4 || filter.Last != 3 {
		t.Fatalf("unexpected filter: %+v", filter)
	}
	if filter.Since == nil || filter.Since.Day() != 2 || filter.Since.Month() != 1 {
		t.Fatalf("unexpected since: %v", filter.Since)
	}

	sessionsSince = "02/01/2026"
	if _, err := sessionsFilter(); err == nil {
		t.Fatalf("expected invalid date error")
	}
	sessionsSince, sessionsMode = "", "9"
	if _, err := sessionsFilter(); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}
