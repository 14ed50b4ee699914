// Package observability provides structured logging, OTel tracing, and OTel
// metrics for the orchestration runtime, each with a no-op implementation
// for when the feature is disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a new logger carrying subject/event context fields.
func EnrichLogger(logger *slog.Logger, subject, eventType, eventID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("subject", subject),
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
	)
}

// LogExecuteStart logs the start of one orchestrator execute call.
func LogExecuteStart(logger *slog.Logger, subject string) {
	if logger == nil {
		return
	}
	logger.Info("execute starting", slog.String("subject", subject))
}

// LogExecuteComplete logs successful completion of an execute call.
func LogExecuteComplete(logger *slog.Logger, subject string, durationMs float64, emitted int) {
	if logger == nil {
		return
	}
	logger.Info("execute completed",
		slog.String("subject", subject),
		slog.Float64("duration_ms", durationMs),
		slog.Int("events_emitted", emitted),
	)
}

// LogExecuteViolation logs a violation thrown to the caller.
func LogExecuteViolation(logger *slog.Logger, subject string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("execute violated",
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
}

// LogSystemError logs a workflow-level error converted into system-error events.
func LogSystemError(logger *slog.Logger, subject string, err error) {
	if logger == nil {
		return
	}
	logger.Error("system error, record marked failure",
		slog.String("subject", subject),
		slog.String("error", err.Error()),
	)
}

// LogBenignMisroute logs a benign no-op outcome (misrouted or stale event).
func LogBenignMisroute(logger *slog.Logger, subject, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("benign misroute",
		slog.String("subject", subject),
		slog.String("reason", reason),
	)
}

// LogAbsorbedFailure logs an event received on a subject already in failure.
func LogAbsorbedFailure(logger *slog.Logger, subject string) {
	if logger == nil {
		return
	}
	logger.Warn("event received on subject already in failure, absorbed",
		slog.String("subject", subject),
	)
}

// TimedOperation measures the duration of an operation.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000.0
	}
}
