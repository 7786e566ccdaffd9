package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// TestLogger writes through zaptest and keeps every message for assertions.
type TestLogger struct {
	*Logger
	logs    []string
	logLock *sync.Mutex
}

// NewTestLogger returns a debug-level logger bound to tb.
func NewTestLogger(tb zaptest.TestingT) *TestLogger {
	tl := &TestLogger{logLock: &sync.Mutex{}}
	base := zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel))
	capture := zap.Hooks(func(e zapcore.Entry) error {
		tl.logLock.Lock()
		defer tl.logLock.Unlock()
		tl.logs = append(tl.logs, e.Message)
		return nil
	})
	tl.Logger = &Logger{Logger: base.WithOptions(capture).Named(LoggerName)}
	return tl
}

// GetLogs returns captured logs
func (tl *TestLogger) GetLogs() []string {
	tl.logLock.Lock()
	defer tl.logLock.Unlock()
	return append([]string{}, tl.logs...)
}
