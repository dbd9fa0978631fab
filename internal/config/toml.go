// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Session SessionConfig `toml:"session"`
	Bus     BusConfig     `toml:"bus"`
	Log     LogConfig     `toml:"log"`
}

// SessionConfig maps session-related settings.
type SessionConfig struct {
	Iterations *int    `toml:"iterations"`
	DeviceID   *string `toml:"device-id"`
	TickMs     *int    `toml:"tick-ms"`
	DataDir    *string `toml:"data-dir"`
}

// BusConfig maps stream bus settings.
type BusConfig struct {
	Dir *string `toml:"dir"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Template is written by `keeglog config` when no config file exists yet.
const Template = `# keeglog configuration

[session]
# iterations = 10
# device-id = "00FE"
# tick-ms = 10
# data-dir = "session_data"

[bus]
# dir = "/run/user/1000/keeglog/streams"

[log]
# level = "info"   # info | debug | trace
# file = "keeglog.log"
`
