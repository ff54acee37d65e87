package sensor

import (
	"math"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/models"
)

// RawSample is one undebounced read of the sensors.
type RawSample struct {
	Light        float64
	HasLight     bool
	OpenSwitch   bool
	ClosedSwitch bool
}

// rawPosition maps the limit switches to a position. Both switches active is
// a conflict and reads as Unknown.
func (r RawSample) rawPosition() (models.Position, bool) {
	switch {
	case r.OpenSwitch && r.ClosedSwitch:
		return models.PositionUnknown, true
	case r.OpenSwitch:
		return models.PositionOpen, false
	case r.ClosedSwitch:
		return models.PositionClosed, false
	default:
		return models.PositionUnknown, false
	}
}

// Fusion turns raw samples into a debounced SensorReading.
// It is driven from the control loop only and is not safe for concurrent use.
type Fusion struct {
	cfg      config.SensorConfig
	light    lightFilter
	position positionDebouncer

	lastSample time.Time
	conflict   bool
}

func NewFusion(cfg config.SensorConfig) *Fusion {
	return &Fusion{
		cfg: cfg,
		light: lightFilter{
			alpha:     cfg.LightAlpha,
			window:    cfg.LightSamples,
			tolerance: cfg.LightTolerance,
		},
		position: positionDebouncer{
			hold:     cfg.PositionDebounce,
			samples:  cfg.PositionDebounceSamples,
			accepted: models.PositionUnknown,
		},
	}
}

// Observe folds a successful sample in and returns the current reading.
func (f *Fusion) Observe(now time.Time, raw RawSample) models.SensorReading {
	f.lastSample = now
	if raw.HasLight {
		f.light.add(raw.Light)
	}
	pos, conflict := raw.rawPosition()
	f.conflict = conflict
	f.position.add(now, pos)
	return f.Reading(now)
}

// Miss records a failed sample. Nothing is folded in; the reading goes stale
// once no sample has succeeded for StaleAfter.
func (f *Fusion) Miss(now time.Time) models.SensorReading {
	return f.Reading(now)
}

// Reading returns the fused reading as of now without sampling.
func (f *Fusion) Reading(now time.Time) models.SensorReading {
	r := models.SensorReading{
		LightLevel:  f.light.value,
		LightStable: f.light.stable(),
		Position:    f.position.current(),
		Conflict:    f.conflict,
		Timestamp:   now,
	}
	if f.stale(now) {
		r.Stale = true
		r.LightStable = false
		r.Position = models.PositionUnknown
	}
	return r
}

func (f *Fusion) stale(now time.Time) bool {
	if f.lastSample.IsZero() {
		return true
	}
	return now.Sub(f.lastSample) > f.cfg.StaleAfter
}

// lightFilter smooths light with an exponential moving average and calls the
// reading stable once the last window raw samples agree within tolerance.
type lightFilter struct {
	alpha     float64
	window    int
	tolerance float64

	value   float64
	seeded  bool
	history []float64
}

func (l *lightFilter) add(v float64) {
	if !l.seeded {
		l.value = v
		l.seeded = true
	} else {
		l.value = l.alpha*v + (1-l.alpha)*l.value
	}
	l.history = append(l.history, v)
	if len(l.history) > l.window {
		l.history = l.history[len(l.history)-l.window:]
	}
}

func (l *lightFilter) stable() bool {
	if len(l.history) < l.window {
		return false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range l.history {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi-lo <= l.tolerance
}

// positionDebouncer accepts a new position only after it has been seen on
// `samples` consecutive samples spanning at least `hold`. While a change is
// pending the position reads Unknown.
type positionDebouncer struct {
	hold    time.Duration
	samples int

	accepted models.Position
	pending  models.Position
	since    time.Time
	count    int
}

func (p *positionDebouncer) add(now time.Time, pos models.Position) {
	if pos == p.accepted {
		p.pending = ""
		p.count = 0
		return
	}
	if pos != p.pending {
		p.pending = pos
		p.since = now
		p.count = 0
	}
	p.count++
	if p.count >= p.samples && now.Sub(p.since) >= p.hold {
		p.accepted = pos
		p.pending = ""
		p.count = 0
	}
}

func (p *positionDebouncer) current() models.Position {
	if p.pending != "" {
		return models.PositionUnknown
	}
	return p.accepted
}
