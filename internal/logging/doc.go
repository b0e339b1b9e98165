// Package logging provides structured logging for the aurora-sync daemon.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the sync client: plain leveled messages, backend HTTP results
// and poll cycle outcomes.
//
// # Log Levels
//
//   - Debug: HTTP results with truncated bodies, per-entry schedule dumps
//   - Info: pairing transitions, applied schedule versions, cycle outcomes
//   - Warn: failed cycles, dropped events
//   - Error: pairing conflicts and persistence failures that need an operator
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize(cfg.Log.Level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When no level is given and AURORA_LOG_LEVEL is unset the logger is a no-op,
// so one-shot CLI commands only print their own output.
//
// # Secrets
//
// The device secret must never be passed to a log call directly. Use
// MaskSecret to log a recognisable but non-reusable form.
package logging
