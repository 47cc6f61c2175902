package config

import (
	"os"
	"path/filepath"
	"testing"
)

type testOptions struct {
	Config   string
	Port     int      `toml:"server.port" env:"PORT"`
	JobsFile string   `toml:"jobs.file" env:"JOBS_FILE"`
	Inputs   []string `toml:"jobs.inputs" env:"INPUTS"`
	Debug    bool     `toml:"debug" env:"DEBUG"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeConfig(t, `
debug = true

[server]
port = 9090

[jobs]
file = "custom.toml"
inputs = ["a.txt", "b.txt"]
`)

	opts := testOptions{Config: path, Port: 8070}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 9090 {
		t.Errorf("port = %d", opts.Port)
	}
	if opts.JobsFile != "custom.toml" {
		t.Errorf("jobs file = %q", opts.JobsFile)
	}
	if len(opts.Inputs) != 2 || opts.Inputs[0] != "a.txt" {
		t.Errorf("inputs = %v", opts.Inputs)
	}
	if !opts.Debug {
		t.Error("expected debug true")
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 9090\n")
	t.Setenv("PIPESHARD_PORT", "7000")
	t.Setenv("PIPESHARD_INPUTS", "x.txt, y.txt")

	opts := testOptions{Config: path}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 7000 {
		t.Errorf("expected env to override TOML, port = %d", opts.Port)
	}
	if len(opts.Inputs) != 2 || opts.Inputs[1] != "y.txt" {
		t.Errorf("inputs = %v", opts.Inputs)
	}
}

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	opts := testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8070}
	if err := LoadConfig(&opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if opts.Port != 8070 {
		t.Errorf("port = %d", opts.Port)
	}
}

func TestFlagName(t *testing.T) {
	cases := map[string]string{
		"Port":           "port",
		"JobsFile":       "jobs-file",
		"MetricsEnabled": "metrics-enabled",
	}
	for in, want := range cases {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{
		"top": "value",
		"server": map[string]any{
			"port": int64(9090),
		},
	}
	if got := lookupPath(doc, "top"); got != "value" {
		t.Errorf("top = %v", got)
	}
	if got := lookupPath(doc, "server.port"); got != int64(9090) {
		t.Errorf("server.port = %v", got)
	}
	if got := lookupPath(doc, "server.missing"); got != nil {
		t.Errorf("server.missing = %v", got)
	}
	if got := lookupPath(doc, "top.not-a-table"); got != nil {
		t.Errorf("top.not-a-table = %v", got)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"
format = "json"
pipe = "warn"
jobs = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("level=%q format=%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["pipe"] != "warn" || cfg.Modules["jobs"] != "error" {
		t.Errorf("modules = %v", cfg.Modules)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	cfg := LoadLoggingConfig("")
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
