package schedule

import (
	"fmt"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/logger"
	"coop_door/internal/models"
)

// Planner resolves the decision instant and the latest reading into a
// TargetState. Source errors are absorbed: the last good window is reused,
// and without one the door is kept closed.
type Planner struct {
	source   Source
	light    *LightPolicy
	governor *Governor
	loc      *time.Location
	log      *logger.Logger

	window    Window
	windowDay string
	haveWin   bool
}

func NewPlanner(source Source, light *LightPolicy, governor *Governor, loc *time.Location, log *logger.Logger) *Planner {
	if log == nil {
		log = logger.Nop()
	}
	return &Planner{source: source, light: light, governor: governor, loc: loc, log: log}
}

// FromConfig builds the planner selected by cfg.Schedule.Mode.
func FromConfig(sc config.ScheduleConfig, lc config.LightConfig, log *logger.Logger) (*Planner, error) {
	loc, err := sc.Location()
	if err != nil {
		return nil, err
	}

	var src Source
	switch sc.Mode {
	case config.ScheduleFixed:
		open, err := config.ParseClock(sc.OpenAt)
		if err != nil {
			return nil, err
		}
		closeAt, err := config.ParseClock(sc.CloseAt)
		if err != nil {
			return nil, err
		}
		if src, err = NewFixedSource(open, closeAt, loc); err != nil {
			return nil, err
		}
	case config.ScheduleSun:
		src = NewSunSource(sc.Latitude, sc.Longitude, sc.OpenOffset, sc.CloseOffset, loc)
	case config.ScheduleTable:
		if src, err = LoadTableSource(sc.TableFile, sc.OpenOffset, sc.CloseOffset, loc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", sc.Mode)
	}

	var light *LightPolicy
	if lc.Enabled {
		light = NewLightPolicy(lc)
	}
	return NewPlanner(src, light, NewGovernor(sc.DeadZone, loc), loc, log), nil
}

// Target implements the controller's schedule boundary.
func (p *Planner) Target(now time.Time, r models.SensorReading) models.TargetState {
	w, ok := p.windowFor(now)
	if !ok {
		return models.TargetClosed
	}

	proposal := models.TargetClosed
	if w.Contains(now) {
		proposal = models.TargetOpen
	}
	if p.light != nil {
		if lt, ok := p.light.Propose(r); ok {
			proposal = lt
		}
	}
	return p.governor.Apply(now, proposal, w)
}

// Window returns today's window as last computed.
func (p *Planner) Window() (Window, bool) {
	return p.window, p.haveWin
}

func (p *Planner) windowFor(now time.Time) (Window, bool) {
	day := now.In(p.loc).Format(dayLayout)
	if p.haveWin && day == p.windowDay {
		return p.window, true
	}
	w, err := p.source.Window(now)
	if err != nil {
		p.log.Warnw("schedule_window_failed", "day", day, "err", err)
		if !p.haveWin {
			return Window{}, false
		}
		// shift the last good window onto today
		days := daysBetween(p.window.OpenAt.In(p.loc), now.In(p.loc))
		w = Window{OpenAt: p.window.OpenAt.AddDate(0, 0, days), CloseAt: p.window.CloseAt.AddDate(0, 0, days)}
	}
	p.window, p.windowDay, p.haveWin = w, day, true
	return w, true
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
