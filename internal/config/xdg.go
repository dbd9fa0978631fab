package config

import (
	"os"
	"path/filepath"
)

const appName = "keeglog"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appName, "config.toml")
}

// DefaultProfilesPath returns the path of the user profile store.
func DefaultProfilesPath() string {
	return filepath.Join(XDGConfigHome(), appName, "profiles.toml")
}

// DefaultDBPath returns the default path for the SQLite session index.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appName, appName+".db")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(XDGDataHome(), appName, appName+".log")
}

// DefaultDataDir is where session CSV files go unless configured.
func DefaultDataDir() string {
	return "session_data"
}

// DefaultBusDir returns the shared stream advertisement directory.
// Sources and subscribers must agree on it, so it lives under the runtime
// dir when one exists.
func DefaultBusDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName, "streams")
	}
	return filepath.Join(XDGDataHome(), appName, "streams")
}
