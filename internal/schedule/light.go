package schedule

import (
	"coop_door/internal/config"
	"coop_door/internal/models"
)

// LightPolicy proposes a target from ambient light with a two-threshold band.
// Between the thresholds it keeps its previous proposal.
type LightPolicy struct {
	openAbove  float64
	closeBelow float64

	last models.TargetState
}

func NewLightPolicy(cfg config.LightConfig) *LightPolicy {
	return &LightPolicy{openAbove: cfg.OpenAbove, closeBelow: cfg.CloseBelow}
}

// Propose returns the light-based target and true, or false when the reading
// cannot be trusted (stale, unstable) or no threshold has been crossed yet.
func (l *LightPolicy) Propose(r models.SensorReading) (models.TargetState, bool) {
	if r.Stale || !r.LightStable {
		return "", false
	}
	switch {
	case r.LightLevel >= l.openAbove:
		l.last = models.TargetOpen
	case r.LightLevel <= l.closeBelow:
		l.last = models.TargetClosed
	}
	if l.last == "" {
		return "", false
	}
	return l.last, true
}
