package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

const (
	defaultZapLevel = zapcore.InfoLevel
	logFilePrefix   = "coop_door.log"
)

func toZapLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

// newConsoleCore builds a console-encoded core on stdout with RFC3339 timestamps.
func newConsoleCore(level zapcore.Level) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	ws := zapcore.Lock(os.Stdout)
	return zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))
}

// newFileCore builds a JSON core on an hourly rolling file under dir.
func newFileCore(level zapcore.Level, dir string) (zapcore.Core, error) {
	w, err := newHourlyFile(dir, logFilePrefix)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.NewAtomicLevelAt(level)), nil
}

func newZapLogger(levelStr string, o options) *Logger {
	level := toZapLevel(levelStr)
	core := newConsoleCore(level)

	var fileErr error
	if o.fileDir != "" {
		fc, err := newFileCore(level, o.fileDir)
		if err != nil {
			fileErr = err
		} else {
			core = zapcore.NewTee(core, fc)
		}
	}

	l := &Logger{
		SugaredLogger: zap.New(core, zap.AddCaller()).Sugar().With("service", "coop_door"),
	}
	if fileErr != nil {
		l.Warnw("log_file_disabled", "dir", o.fileDir, "err", fileErr)
	}
	return l
}

func newNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}
