package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "AURORA_LOG_LEVEL"

// maxBodyLog is how much of an HTTP response body is written to the log.
const maxBodyLog = 200

// Initialize creates a new logger with the specified level.
// If level is empty, it checks AURORA_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built

	return nil
}

// InitializeFromEnv initializes the logger from the AURORA_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogHTTPResult logs the outcome of one backend round trip.
// The body is truncated so that large schedule payloads don't flood the log.
func LogHTTPResult(method, url string, statusCode int, body []byte) {
	Debug("HTTP result",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status_code", statusCode),
		zap.Int("body_length", len(body)),
		zap.String("body", truncate(body, maxBodyLog)),
	)
}

// LogCycle logs the outcome of one poll cycle.
func LogCycle(cycleID string, outcome string, err error) {
	fields := []zap.Field{
		zap.String("cycle_id", cycleID),
		zap.String("outcome", outcome),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		Warn("Poll cycle finished", fields...)
		return
	}
	Info("Poll cycle finished", fields...)
}

// LogSchedule writes the applied schedule at debug level, one entry per line.
func LogSchedule(version int64, lines []string) {
	l := GetLogger()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug("Schedule applied",
		zap.Int64("schedule_version", version),
		zap.Int("lines", len(lines)),
	)
	for _, line := range lines {
		l.Debug(line)
	}
}

// MaskSecret returns a form of the device secret that is safe to log.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return "<none>"
	case len(secret) <= 6:
		return strings.Repeat("*", len(secret))
	default:
		return secret[:2] + "…" + secret[len(secret)-2:]
	}
}

func truncate(data []byte, limit int) string {
	if len(data) <= limit {
		return asciiDump(data)
	}
	return asciiDump(data[:limit]) + "..."
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
