package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// isolate points the default config location at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("LOCALAPPDATA", dir)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const sampleYAML = `
backend:
  base_url: http://10.0.0.2:8000
  api_prefix: dispensers
device:
  serial: FILE-1
poll:
  interval: 10s
`

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "aurora") {
		t.Errorf("GetConfigDir() = %v, should contain 'aurora'", configDir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.APIPrefix != "api" || cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Poll.Interval != 30*time.Second || cfg.Poll.Tick != 50*time.Millisecond {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	if cfg.Credential.Backend != "file" || cfg.Credential.Namespace != "aurora" || cfg.Credential.Key != "device_secret" {
		t.Errorf("Credential = %+v", cfg.Credential)
	}
	if runtime.GOOS == "linux" {
		want := filepath.Join(dir, "aurora", "credentials.yaml")
		if cfg.Credential.Path != want {
			t.Errorf("Credential.Path = %q, want %q", cfg.Credential.Path, want)
		}
	}
}

func TestLoad_DefaultCredentialPathPerBackend(t *testing.T) {
	isolate(t)

	t.Setenv("AURORA_CREDENTIAL_BACKEND", "SQLite")
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credential.Backend != "sqlite" || filepath.Base(cfg.Credential.Path) != "credentials.db" {
		t.Errorf("Credential = %+v", cfg.Credential)
	}

	t.Setenv("AURORA_CREDENTIAL_BACKEND", "keyring")
	cfg, err = Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Credential.Path != "" {
		t.Errorf("keyring backend should not get a path, got %q", cfg.Credential.Path)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Serial != "FILE-1" || cfg.Backend.APIPrefix != "dispensers" || cfg.Poll.Interval != 10*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("unset keys should keep defaults, timeout = %v", cfg.Backend.Timeout)
	}

	t.Setenv("AURORA_DEVICE_SERIAL", "ENV-1")
	t.Setenv("AURORA_POLL_INTERVAL", "45s")
	t.Setenv("AURORA_CREDENTIAL_WATCH", "true")
	cfg, err = Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Serial != "ENV-1" || cfg.Poll.Interval != 45*time.Second || !cfg.Credential.Watch {
		t.Errorf("env should override file: %+v", cfg)
	}
	if cfg.Backend.BaseURL != "http://10.0.0.2:8000" {
		t.Errorf("BaseURL = %q, want file value", cfg.Backend.BaseURL)
	}
}

func TestLoad_DefaultFileLocation(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only")
	}
	dir := isolate(t)
	if err := os.MkdirAll(filepath.Join(dir, "aurora"), 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "aurora"), "config.yaml", sampleYAML)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Serial != "FILE-1" {
		t.Errorf("default config file not read, serial = %q", cfg.Device.Serial)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := isolate(t)
	envPath := writeFile(t, dir, "aurora.env", "AURORA_LINK_INTERFACE=wlan0\nAURORA_STATUS_LISTEN=:2\n")

	t.Cleanup(func() { _ = os.Unsetenv("AURORA_LINK_INTERFACE") })
	t.Setenv("AURORA_STATUS_LISTEN", ":1")

	cfg, err := Load(Options{EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Link.Interface != "wlan0" {
		t.Errorf("Link.Interface = %q, want dotenv value", cfg.Link.Interface)
	}
	if cfg.Status.Listen != ":1" {
		t.Errorf("Status.Listen = %q, real environment should win over dotenv", cfg.Status.Listen)
	}
}

func TestLoad_FlagsWinOnlyWhenSet(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "config.yaml", sampleYAML)
	t.Setenv("AURORA_DEVICE_SERIAL", "ENV-1")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("serial", "", "")
	fs.Duration("interval", 30*time.Second, "")
	fs.String("unrelated", "", "")
	if err := fs.Parse([]string{"--serial=FLAG-1"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(Options{ConfigFile: path, Flags: fs})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Serial != "FLAG-1" {
		t.Errorf("Serial = %q, flag should win", cfg.Device.Serial)
	}
	if cfg.Poll.Interval != 10*time.Second {
		t.Errorf("Interval = %v, an unset flag must not override the file", cfg.Poll.Interval)
	}
}

func TestLoad_MissingExplicitFiles(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.yaml")}); err == nil {
		t.Error("Load() with a missing --config should fail")
	}
	if _, err := Load(Options{EnvFile: filepath.Join(dir, "nope.env")}); err == nil {
		t.Error("Load() with a missing --env-file should fail")
	}

	bad := writeFile(t, dir, "bad.yaml", "backend: [unclosed")
	if _, err := Load(Options{ConfigFile: bad}); err == nil {
		t.Error("Load() with malformed YAML should fail")
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Device.Serial = "SN-0001"
	cfg.Backend.BaseURL = "http://10.0.0.2:8000"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"discovery instead of base url", func(c *Config) { c.Backend.BaseURL = ""; c.Backend.Discover = true }, ""},
		{"empty serial", func(c *Config) { c.Device.Serial = " " }, "device.serial"},
		{"no backend", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base_url is required"},
		{"bad url", func(c *Config) { c.Backend.BaseURL = "ftp://x" }, "http or https"},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
		{"negative interval", func(c *Config) { c.Poll.Interval = -time.Second }, "poll.interval"},
		{"zero tick", func(c *Config) { c.Poll.Tick = 0 }, "poll.tick"},
		{"unknown credential backend", func(c *Config) { c.Credential.Backend = "vault" }, "credential.backend"},
		{"missing root ca", func(c *Config) { c.Backend.RootCAFile = "/nonexistent/ca.pem" }, "root_ca_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() on defaults should fail")
	}
	for _, want := range []string{"device.serial", "backend.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q should mention %s", err, want)
		}
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "sub", "config.yaml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# aurora-sync configuration") {
		t.Errorf("missing header:\n%s", data)
	}
	if !strings.Contains(string(data), "interval: 30s") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	cfg, err := Load(Options{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Serial != "CHANGE-ME" || cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("round trip = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("starter config should validate: %v", err)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Error("WriteDefault() should refuse to overwrite")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault(overwrite) error = %v", err)
	}
}

func TestCredentialOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Credential.Path = "/tmp/x.yaml"
	opts := cfg.CredentialOptions()
	if opts.Backend != "file" || opts.Path != "/tmp/x.yaml" || opts.Namespace != "aurora" || opts.Key != "device_secret" {
		t.Errorf("CredentialOptions() = %+v", opts)
	}
}
