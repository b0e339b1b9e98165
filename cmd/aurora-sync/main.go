// Aurora-sync is the device-side sync client for an Aurora medication dispenser.
//
// It pairs the dispenser with its backend, polls the backend for the dosing
// schedule and reports dispensing events. The same binary carries the operator
// commands used to inspect a running client and to recover from a pairing
// conflict.
//
// Usage:
//
//	aurora-sync [command] [flags]
//
// See 'aurora-sync --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurora-dispenser/aurora-sync/internal/config"
	"github.com/aurora-dispenser/aurora-sync/internal/logging"
	"github.com/aurora-dispenser/aurora-sync/internal/version"
)

// errReported is returned by commands that already printed their failure.
var errReported = errors.New("command failed")

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	envFile    string

	// cfg is loaded once in PersistentPreRunE and read-only afterwards.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "aurora-sync",
	Short: "Aurora dispenser sync client",
	Long: `Device-side sync client for the Aurora medication dispenser.

Pairs the dispenser with its backend, keeps the dosing schedule in sync by
polling, and reports dispensing events.

Configuration is read from the config file, a .env file, AURORA_* environment
variables and flags, in increasing order of precedence.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{
			ConfigFile: configPath,
			EnvFile:    envFile,
			Flags:      cmd.Flags(),
		})
		if err != nil {
			return err
		}
		cfg = loaded
		return logging.Initialize(cfg.Log.Level)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: <config dir>/aurora/config.yaml)")
	pf.StringVar(&envFile, "env-file", "", "Dotenv file to load (default: ./.env if present)")
	pf.String("log-level", "", "Log level: debug, info, warn, error (default: silent)")

	pf.String("base-url", "", "Backend base URL, e.g. http://10.0.0.2:8000")
	pf.String("api-prefix", "api", "Backend API path prefix")
	pf.Duration("timeout", 5*time.Second, "Backend HTTP timeout")
	pf.String("root-ca", "", "PEM root CA for an https backend")
	pf.Bool("discover", false, "Locate the backend via mDNS when no base URL is set")
	pf.String("serial", "", "Device serial number")
	pf.String("credential-backend", "file", "Secret storage: file, keyring or sqlite")
	pf.String("credential-path", "", "Secret file or database path")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading so version works anywhere.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("aurora-sync %s\n", version.Full())
		fmt.Printf("  go:       %s\n", info.GoVersion)
		fmt.Printf("  platform: %s\n", info.Platform)
	},
}
