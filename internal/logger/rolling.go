package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const hourlySuffix = "2006-01-02-15"

// hourlyFile is a zapcore.WriteSyncer that starts a new file at every UTC
// hour: <dir>/<prefix>.YYYY-MM-DD-HH.
type hourlyFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	now    func() time.Time

	hour time.Time
	f    *os.File
}

func newHourlyFile(dir, prefix string) (*hourlyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %q: %w", dir, err)
	}
	return &hourlyFile{dir: dir, prefix: prefix, now: time.Now}, nil
}

func (w *hourlyFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Truncate(time.Hour)
	if w.f == nil || !hour.Equal(w.hour) {
		if err := w.openLocked(hour); err != nil {
			return 0, err
		}
	}
	return w.f.Write(p)
}

func (w *hourlyFile) openLocked(hour time.Time) error {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	name := filepath.Join(w.dir, w.prefix+"."+hour.Format(hourlySuffix))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", name, err)
	}
	w.f = f
	w.hour = hour
	return nil
}

func (w *hourlyFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *hourlyFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
