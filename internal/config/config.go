package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aurora-dispenser/aurora-sync/internal/credential"
)

// EnvPrefix prefixes every environment override (AURORA_BACKEND_BASE_URL, ...).
const EnvPrefix = "AURORA"

// Config holds the startup parameters. It is read once and not modified
// afterwards.
type Config struct {
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Device     DeviceConfig     `mapstructure:"device" yaml:"device"`
	Poll       PollConfig       `mapstructure:"poll" yaml:"poll"`
	Credential CredentialConfig `mapstructure:"credential" yaml:"credential"`
	Link       LinkConfig       `mapstructure:"link" yaml:"link"`
	Status     StatusConfig     `mapstructure:"status" yaml:"status"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// BackendConfig locates the backend.
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	APIPrefix  string        `mapstructure:"api_prefix" yaml:"api_prefix"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RootCAFile string        `mapstructure:"root_ca_file" yaml:"root_ca_file"`
	Discover   bool          `mapstructure:"discover" yaml:"discover"`
}

// DeviceConfig identifies this dispenser.
type DeviceConfig struct {
	Serial string `mapstructure:"serial" yaml:"serial"`
}

// PollConfig controls the fetch loop.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Tick     time.Duration `mapstructure:"tick" yaml:"tick"`
}

// CredentialConfig selects where the device secret is kept.
type CredentialConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Path      string `mapstructure:"path" yaml:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Key       string `mapstructure:"key" yaml:"key"`
	Watch     bool   `mapstructure:"watch" yaml:"watch"`
}

// LinkConfig names the network interface whose state gates polling.
type LinkConfig struct {
	Interface string `mapstructure:"interface" yaml:"interface"`
}

// StatusConfig configures the status feed. Empty Listen disables it.
type StatusConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// FlagKeys maps CLI flag names to configuration keys.
var FlagKeys = map[string]string{
	"base-url":           "backend.base_url",
	"api-prefix":         "backend.api_prefix",
	"timeout":            "backend.timeout",
	"root-ca":            "backend.root_ca_file",
	"discover":           "backend.discover",
	"serial":             "device.serial",
	"interval":           "poll.interval",
	"credential-backend": "credential.backend",
	"credential-path":    "credential.path",
	"watch-credentials":  "credential.watch",
	"link-interface":     "link.interface",
	"status-listen":      "status.listen",
	"log-level":          "log.level",
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			APIPrefix: "api",
			Timeout:   5 * time.Second,
		},
		Poll: PollConfig{
			Interval: 30 * time.Second,
			Tick:     50 * time.Millisecond,
		},
		Credential: CredentialConfig{
			Backend:   credential.BackendFile,
			Namespace: credential.DefaultNamespace,
			Key:       credential.DefaultKey,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.api_prefix", d.Backend.APIPrefix)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.root_ca_file", d.Backend.RootCAFile)
	v.SetDefault("backend.discover", d.Backend.Discover)
	v.SetDefault("device.serial", d.Device.Serial)
	v.SetDefault("poll.interval", d.Poll.Interval)
	v.SetDefault("poll.tick", d.Poll.Tick)
	v.SetDefault("credential.backend", d.Credential.Backend)
	v.SetDefault("credential.path", d.Credential.Path)
	v.SetDefault("credential.namespace", d.Credential.Namespace)
	v.SetDefault("credential.key", d.Credential.Key)
	v.SetDefault("credential.watch", d.Credential.Watch)
	v.SetDefault("link.interface", d.Link.Interface)
	v.SetDefault("status.listen", d.Status.Listen)
	v.SetDefault("log.level", d.Log.Level)
}

// Options tells Load where to look.
type Options struct {
	// ConfigFile is an explicit YAML file; it must exist. When empty the
	// default path is used if present.
	ConfigFile string
	// EnvFile is an explicit dotenv file; it must exist. When empty ".env"
	// in the working directory is used if present.
	EnvFile string
	// Flags are bound per FlagKeys; only flags set on the command line
	// override other sources.
	Flags *pflag.FlagSet
}

// Load resolves the configuration from, lowest to highest precedence:
// defaults, the YAML file, the dotenv file, AURORA_* environment variables
// and command-line flags.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.Credential.Backend = strings.ToLower(strings.TrimSpace(cfg.Credential.Backend))
	if cfg.Credential.Path == "" && cfg.Credential.Backend != credential.BackendKeyring {
		path, err := defaultCredentialPath(cfg.Credential.Backend)
		if err != nil {
			return nil, err
		}
		cfg.Credential.Path = path
	}

	return &cfg, nil
}

// godotenv does not override variables already set in the environment.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		defaultPath, err := GetConfigPath()
		if err != nil {
			return nil
		}
		if _, err := os.Stat(defaultPath); err != nil {
			return nil
		}
		path = defaultPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings needed to run the sync client. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Device.Serial) == "" {
		errs = append(errs, errors.New("device.serial is required"))
	}
	if c.Backend.BaseURL == "" && !c.Backend.Discover {
		errs = append(errs, errors.New("backend.base_url is required unless backend.discover is enabled"))
	}
	if c.Backend.BaseURL != "" {
		if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.base_url %q must be an http or https URL", c.Backend.BaseURL))
		}
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval))
	}
	if c.Poll.Tick <= 0 {
		errs = append(errs, fmt.Errorf("poll.tick must be positive, got %s", c.Poll.Tick))
	}
	if !credential.ValidBackend(c.Credential.Backend) {
		errs = append(errs, fmt.Errorf("credential.backend %q is not one of %s",
			c.Credential.Backend, strings.Join(credential.Backends(), ", ")))
	}
	if c.Backend.RootCAFile != "" {
		if f, err := os.Open(c.Backend.RootCAFile); err != nil {
			errs = append(errs, fmt.Errorf("backend.root_ca_file is not readable: %w", err))
		} else {
			_ = f.Close()
		}
	}

	return errors.Join(errs...)
}

// CredentialOptions converts the credential section for credential.Open.
func (c *Config) CredentialOptions() credential.Options {
	return credential.Options{
		Backend:   c.Credential.Backend,
		Path:      c.Credential.Path,
		Namespace: c.Credential.Namespace,
		Key:       c.Credential.Key,
	}
}
