package errors

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	debugAsserts atomic.Bool

	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// SetDebug toggles debug assertions. With assertions enabled, Invariant
// panics; otherwise it only logs.
func SetDebug(enabled bool) {
	debugAsserts.Store(enabled)
}

// Debug reports whether debug assertions are enabled.
func Debug() bool {
	return debugAsserts.Load()
}

// SetLogger configures the logger used for invariant reports.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

func invariantLogger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Invariant reports a host or extension contract violation such as a double
// free. It panics when debug assertions are enabled and is a logged no-op
// otherwise. A nil err is ignored.
func Invariant(err error) {
	if err == nil {
		return
	}
	if debugAsserts.Load() {
		panic(err)
	}
	invariantLogger().Error("invariant violated", zap.Error(err))
}
