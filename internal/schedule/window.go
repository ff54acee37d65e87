package schedule

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoSunEvent  = errors.New("sun does not rise or set on this day")
	ErrEmptyTable  = errors.New("sun table has no entries")
	ErrInvalidSpan = errors.New("window closes before it opens")
)

// Window is the span of one local day during which the door should be open.
type Window struct {
	OpenAt  time.Time `json:"open_at"`
	CloseAt time.Time `json:"close_at"`
}

// Contains reports whether t falls in [OpenAt, CloseAt).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.OpenAt) && t.Before(w.CloseAt)
}

// Source computes the open window for the local day containing day.
type Source interface {
	Window(day time.Time) (Window, error)
}

// atOffset returns local midnight of day plus off, resolved in wall-clock
// terms so DST days keep their nominal HH:MM.
func atOffset(day time.Time, off time.Duration, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 0, 0, int(off/time.Second), 0, loc)
}

// FixedSource opens and closes at the same clock times every day.
type FixedSource struct {
	openAt  time.Duration
	closeAt time.Duration
	loc     *time.Location
}

func NewFixedSource(openAt, closeAt time.Duration, loc *time.Location) (*FixedSource, error) {
	if closeAt <= openAt {
		return nil, ErrInvalidSpan
	}
	return &FixedSource{openAt: openAt, closeAt: closeAt, loc: loc}, nil
}

func (s *FixedSource) Window(day time.Time) (Window, error) {
	return Window{
		OpenAt:  atOffset(day, s.openAt, s.loc),
		CloseAt: atOffset(day, s.closeAt, s.loc),
	}, nil
}

// SunSource opens at sunrise and closes at sunset, each shifted by an offset.
type SunSource struct {
	lat, lon    float64
	openOffset  time.Duration
	closeOffset time.Duration
	loc         *time.Location
}

func NewSunSource(lat, lon float64, openOffset, closeOffset time.Duration, loc *time.Location) *SunSource {
	return &SunSource{lat: lat, lon: lon, openOffset: openOffset, closeOffset: closeOffset, loc: loc}
}

func (s *SunSource) Window(day time.Time) (Window, error) {
	y, m, d := day.In(s.loc).Date()
	rise, set := sunrise.SunriseSunset(s.lat, s.lon, y, m, d)
	if rise.IsZero() || set.IsZero() {
		return Window{}, fmt.Errorf("%w: %04d-%02d-%02d at %.4f,%.4f", ErrNoSunEvent, y, m, d, s.lat, s.lon)
	}
	w := Window{
		OpenAt:  rise.Add(s.openOffset).In(s.loc),
		CloseAt: set.Add(s.closeOffset).In(s.loc),
	}
	if !w.CloseAt.After(w.OpenAt) {
		return Window{}, ErrInvalidSpan
	}
	return w, nil
}

// TableEntry is one day of a sun table, in seconds since local midnight.
type TableEntry struct {
	Sunrise int `yaml:"sunrise" json:"sunrise"`
	Sunset  int `yaml:"sunset" json:"sunset"`
}

// TableSource looks the window up in a per-day table indexed by day of year.
type TableSource struct {
	entries     []TableEntry
	openOffset  time.Duration
	closeOffset time.Duration
	loc         *time.Location
}

func NewTableSource(entries []TableEntry, openOffset, closeOffset time.Duration, loc *time.Location) (*TableSource, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTable
	}
	for i, e := range entries {
		if e.Sunset <= e.Sunrise {
			return nil, fmt.Errorf("sun table day %d: %w", i+1, ErrInvalidSpan)
		}
	}
	return &TableSource{entries: entries, openOffset: openOffset, closeOffset: closeOffset, loc: loc}, nil
}

// LoadTableSource reads a sun table file. The file is a YAML or JSON list of
// {sunrise, sunset} objects, one per day of the year.
func LoadTableSource(path string, openOffset, closeOffset time.Duration, loc *time.Location) (*TableSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sun table %s: %w", path, err)
	}
	var entries []TableEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse sun table %s: %w", path, err)
	}
	return NewTableSource(entries, openOffset, closeOffset, loc)
}

func (s *TableSource) Window(day time.Time) (Window, error) {
	idx := day.In(s.loc).YearDay() - 1
	if idx >= len(s.entries) {
		idx = len(s.entries) - 1
	}
	e := s.entries[idx]
	return Window{
		OpenAt:  atOffset(day, time.Duration(e.Sunrise)*time.Second+s.openOffset, s.loc),
		CloseAt: atOffset(day, time.Duration(e.Sunset)*time.Second+s.closeOffset, s.loc),
	}, nil
}
