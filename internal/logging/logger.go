// Package logging builds the process logger and the small helpers used to log
// outbound fetches and pipeline stages in a uniform shape.
package logging

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// LogRequest logs an outbound request. URLs never carry the token; it travels
// in a header.
func LogRequest(log *zap.Logger, source, method, url string, fields ...zap.Field) {
	log.Debug("request",
		append([]zap.Field{zap.String("source", source), zap.String("method", method), zap.String("url", url)}, fields...)...)
}

// LogResponse logs an outbound response.
func LogResponse(log *zap.Logger, source string, statusCode int, duration time.Duration, size int) {
	log.Debug("response",
		zap.String("source", source),
		zap.Int("status", statusCode),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.Int("size", size))
}

// LogError logs a failed operation.
func LogError(log *zap.Logger, source, operation string, err error) {
	log.Warn("operation failed",
		zap.String("source", source),
		zap.String("op", operation),
		zap.Error(err))
}

// LogTransform logs a pipeline stage that turned n inputs into m outputs.
func LogTransform(log *zap.Logger, stage string, inputCount, outputCount int, duration time.Duration) {
	log.Debug("transform",
		zap.String("stage", stage),
		zap.Int("in", inputCount),
		zap.Int("out", outputCount),
		zap.Int64("duration_ms", duration.Milliseconds()))
}
