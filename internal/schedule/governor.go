package schedule

import (
	"time"

	"coop_door/internal/models"
)

const dayLayout = "2006-01-02"

// Governor damps target changes. A new proposal must hold for the dead zone
// before it is adopted, and each local day allows at most one opening and one
// closing.
type Governor struct {
	deadZone time.Duration
	loc      *time.Location

	target  models.TargetState
	day     string
	opened  bool
	closed  bool
	pending models.TargetState
	since   time.Time
}

func NewGovernor(deadZone time.Duration, loc *time.Location) *Governor {
	return &Governor{deadZone: deadZone, loc: loc}
}

// Apply folds proposal in and returns the governed target. w is the current
// day's window; it is used to prime the caps on the first call.
func (g *Governor) Apply(now time.Time, proposal models.TargetState, w Window) models.TargetState {
	day := now.In(g.loc).Format(dayLayout)
	if g.target == "" {
		g.target = proposal
		g.day = day
		g.opened = !now.Before(w.OpenAt)
		g.closed = !now.Before(w.CloseAt)
		return g.target
	}
	if day != g.day {
		g.day = day
		g.opened, g.closed = false, false
		g.pending = ""
	}

	if proposal == g.target || g.exhausted(proposal) {
		g.pending = ""
		return g.target
	}
	if proposal != g.pending {
		g.pending = proposal
		g.since = now
	}
	if now.Sub(g.since) >= g.deadZone {
		g.target = proposal
		g.pending = ""
		if proposal == models.TargetOpen {
			g.opened = true
		} else {
			g.closed = true
		}
	}
	return g.target
}

func (g *Governor) exhausted(to models.TargetState) bool {
	if to == models.TargetOpen {
		return g.opened
	}
	return g.closed
}

// Target returns the last governed target, empty before the first Apply.
func (g *Governor) Target() models.TargetState {
	return g.target
}
