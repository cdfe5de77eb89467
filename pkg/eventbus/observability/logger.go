// Package observability provides structured logging, metrics and tracing
// for the event bus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds bus context to a logger.
// Returns a new logger with a bus_id field.
//
// Example:
//
//	enriched := EnrichLogger(logger, bus.ID())
//	enriched.Info("ready") // includes bus_id
func EnrichLogger(logger *slog.Logger, busID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("bus_id", busID))
}

// LogRegister logs a subscriber registration.
func LogRegister(logger *slog.Logger, subscriber string, bindings, sticky int) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber registered",
		slog.String("subscriber", subscriber),
		slog.Int("bindings", bindings),
		slog.Int("sticky_delivered", sticky),
	)
}

// LogUnregister logs removal of a subscriber's bindings.
func LogUnregister(logger *slog.Logger, subscriber string, removed int) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber unregistered",
		slog.String("subscriber", subscriber),
		slog.Int("removed", removed),
	)
}

// LogDeadEvent logs an event nobody handled.
func LogDeadEvent(logger *slog.Logger, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("dead event",
		slog.String("event_type", eventType),
	)
}

// LogDeliveryFailure logs a handler that panicked or returned an error.
// Failures never propagate to the publisher, so this is where they surface.
func LogDeliveryFailure(logger *slog.Logger, handler, eventType, delivery string, err error, panicked bool) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("handler", handler),
		slog.String("event_type", eventType),
		slog.String("delivery", delivery),
		slog.Bool("panicked", panicked),
		slog.String("error", err.Error()),
	)
}

// LogFailureSinkError logs a failure record that could not be stored (non-fatal).
func LogFailureSinkError(logger *slog.Logger, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failure record not saved",
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogSweep logs a sweep of collected subscribers.
func LogSweep(logger *slog.Logger, removed int) {
	if logger == nil || removed == 0 {
		return
	}
	logger.Debug("collected subscribers swept",
		slog.Int("removed", removed),
	)
}

// LogDropped logs work discarded at shutdown.
func LogDropped(logger *slog.Logger, where string, count int) {
	if logger == nil || count == 0 {
		return
	}
	logger.Warn("pending work dropped",
		slog.String("where", where),
		slog.Int("count", count),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
