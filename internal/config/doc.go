// Package config loads the aurora-sync startup configuration.
//
// Values are layered with viper, lowest to highest precedence:
//
//  1. Built-in defaults (see Default)
//  2. The YAML config file
//  3. A dotenv file (.env in the working directory, or --env-file)
//  4. AURORA_* environment variables, with dots replaced by underscores
//     (backend.base_url becomes AURORA_BACKEND_BASE_URL)
//  5. Command-line flags that were explicitly set
//
// # Configuration File Location
//
// Unless --config names a file, the default location is used when present:
//   - Linux: $XDG_CONFIG_HOME/aurora/config.yaml or $HOME/.config/aurora/config.yaml
//   - macOS: $HOME/.config/aurora/config.yaml
//   - Windows: %LOCALAPPDATA%\aurora\config.yaml
//
// The file credential backend defaults to credentials.yaml in the same
// directory, and the sqlite backend to credentials.db.
//
// # Security
//
// The device secret is never part of this configuration. It lives in the
// credential store selected by credential.backend.
//
// # Usage Example
//
//	cfg, err := config.Load(config.Options{ConfigFile: path, Flags: cmd.Flags()})
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
