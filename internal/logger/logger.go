package logger

import (
	"strings"
	"sync"
)

// Log levels accepted in log.level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

type options struct {
	fileDir string
}

// Option configures the process logger on its first Get.
type Option func(*options)

// WithFileDir adds an hourly rolling log file under dir. Empty keeps stdout only.
func WithFileDir(dir string) Option {
	return func(o *options) { o.fileDir = strings.TrimSpace(dir) }
}

// Get returns the process logger. The first call fixes the level and
// options; later calls return the same instance.
func Get(level string, opts ...Option) *Logger {
	once.Do(func() {
		var o options
		for _, opt := range opts {
			opt(&o)
		}
		globalLogger = newZapLogger(strings.ToLower(strings.TrimSpace(level)), o)
	})
	return globalLogger
}

// Nop returns a logger that discards everything. Used by tests and optional components.
func Nop() *Logger {
	return newNopLogger()
}
