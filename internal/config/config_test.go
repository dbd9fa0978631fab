package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Iterations != nil || cfg.Log.Level != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[session]\niterations = 4\ndevice-id = \"00FE\"\ntick-ms = 20\n\n[bus]\ndir = \"/tmp/streams\"\n\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Iterations == nil || *cfg.Session.Iterations != 4 {
		t.Fatalf("unexpected iterations: %v", cfg.Session.Iterations)
	}
	if cfg.Session.DeviceID == nil || *cfg.Session.DeviceID != "00FE" {
		t.Fatalf("unexpected device id: %v", cfg.Session.DeviceID)
	}
	if cfg.Session.DataDir != nil {
		t.Fatalf("expected unset data dir")
	}
	if cfg.Bus.Dir == nil || *cfg.Bus.Dir != "/tmp/streams" {
		t.Fatalf("unexpected bus dir: %v", cfg.Bus.Dir)
	}
	if cfg.Log.Level == nil || *cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %v", cfg.Log.Level)
	}
}

func TestTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(Template), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("template should decode: %v", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profiles.toml")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.Get("Global", "active_user"); ok {
		t.Fatalf("expected empty store")
	}
	if err := s.Set("Global", "active_user", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("User_alice", "Password_1", "1234"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := reopened.Get("Global", "active_user"); !ok || v != "alice" {
		t.Fatalf("expected alice, got %q %v", v, ok)
	}
	if v, ok := reopened.Get("User_alice", "Password_1"); !ok || v != "1234" {
		t.Fatalf("expected stored password, got %q %v", v, ok)
	}
	if got := reopened.Sections(); !reflect.DeepEqual(got, []string{"Global", "User_alice"}) {
		t.Fatalf("unexpected sections: %v", got)
	}
}

func TestDefaultBusDirUsesRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/42")
	if got := DefaultBusDir(); got != filepath.Join("/run/user/42", "keeglog", "streams") {
		t.Fatalf("unexpected bus dir %q", got)
	}
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultBusDir(); got != filepath.Join("/data", "keeglog", "streams") {
		t.Fatalf("unexpected fallback bus dir %q", got)
	}
}
