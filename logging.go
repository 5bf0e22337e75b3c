// logging.go - structured logging for the rtxoff kernel.
//
// Package-level configuration, mirroring the teacher's
// SetStructuredLogger/getGlobalLogger global-with-RWMutex pattern:
// logging is cross-cutting kernel infrastructure, not per-Kernel config,
// so one process normally wants one logging sink regardless of how many
// Kernel instances it creates for testing.
//
// The dispatcher, NVIC delivery, and primitive wake paths never log
// while the kernel lock is held — the lock must never block on I/O.
// Events are emitted on a deferred, best-effort basis immediately after
// release.

package rtxoff

import (
	"log/slog"
	"sync"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

var globalLogger struct {
	sync.RWMutex
	logger *logiface.Logger[*logifaceslog.Event]
}

// SetLogger installs the process-wide structured logger, built over the
// given slog.Handler. Pass nil to disable logging.
func SetLogger(handler slog.Handler) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	if handler == nil {
		globalLogger.logger = nil
		return
	}
	globalLogger.logger = logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(handler))
}

func getLogger() *logiface.Logger[*logifaceslog.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// logDebug emits a debug-level event tagged by category, if a logger is
// installed. Safe to call with no logger configured (no-op).
func logDebug(category, msg string, fields map[string]any) {
	logAt(func(l *logiface.Logger[*logifaceslog.Event]) *logiface.Builder[*logifaceslog.Event] { return l.Debug() }, category, msg, fields)
}

// logInfo emits an info-level event tagged by category.
func logInfo(category, msg string, fields map[string]any) {
	logAt(func(l *logiface.Logger[*logifaceslog.Event]) *logiface.Builder[*logifaceslog.Event] { return l.Info() }, category, msg, fields)
}

// logWarning emits a warning-level event tagged by category.
func logWarning(category, msg string, fields map[string]any) {
	logAt(func(l *logiface.Logger[*logifaceslog.Event]) *logiface.Builder[*logifaceslog.Event] { return l.Warning() }, category, msg, fields)
}

func logAt(build func(*logiface.Logger[*logifaceslog.Event]) *logiface.Builder[*logifaceslog.Event], category, msg string, fields map[string]any) {
	logger := getLogger()
	if logger == nil {
		return
	}
	b := build(logger).Str("category", category)
	for k, v := range fields {
		b = b.Any(k, v)
	}
	b.Log(msg)
}
