package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const formatConsole = "console"

// NewLogger returns a zap logger at the given level. The "console" format selects
// the human-readable development encoder; anything else logs JSON.
func NewLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(format), formatConsole) {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	return cfg.Build()
}

// ParseLevel maps a configured level name to a zap level; unknown names select info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
