package controller

import (
	"context"
	"fmt"
	"time"

	"coop_door/internal/models"
)

// resumeCheck re-verifies the physical position after a restart before the
// persisted state is trusted.
type resumeCheck struct {
	from  models.DoorState // persisted state, empty on first boot
	until time.Time
}

// Start loads the persisted state, rebuilds the escalation window from the
// event log (ignoring faults before the last reset), stops the motor and arms the resume check. A persisted Faulted
// state is kept as is.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	now := c.now()

	snap, found, err := c.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("load door state: %w", err)
	}
	c.snap = snap
	c.rebuildFaultWindow(ctx, now)

	if err := c.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
		c.log.Warnw("boot_stop_failed", "err", err)
	}

	c.started = true
	if found && snap.State == models.StateFaulted {
		c.log.Warnw("boot_faulted", "cause", snap.FaultCause, "disabled", snap.Disabled)
		return nil
	}
	c.resume = &resumeCheck{from: snap.State, until: now.Add(c.cfg.ResumeWindow)}
	c.log.Infow("boot_resume_check", "persisted", snap.State, "found", found, "until", c.resume.until)
	return nil
}

func (c *Controller) rebuildFaultWindow(ctx context.Context, now time.Time) {
	if c.events == nil {
		return
	}
	from := now.Add(-c.cfg.FaultWindow)
	if c.snap.FaultsResetAt.After(from) {
		from = c.snap.FaultsResetAt
	}
	evs, err := c.events.List(ctx, from, now, models.EventFault)
	if err != nil {
		c.log.Warnw("fault_window_rebuild_failed", "err", err)
		return
	}
	c.faultTimes = c.faultTimes[:0]
	for _, e := range evs {
		// a fault in the same instant as the reset was counted before it
		if !e.OccurredAt.After(c.snap.FaultsResetAt) {
			continue
		}
		c.faultTimes = append(c.faultTimes, e.OccurredAt)
	}
}

// stepResume resolves the resume check from the debounced position.
//
// An interrupted move whose destination is already reached is adopted without
// moving; otherwise it restarts from a clean stop once the window expires,
// unless the door never left its origin and the target no longer wants the
// destination.
// A settled or missing state adopts any known position; an unknown position
// at the end of the window is a power-loss fault.
func (c *Controller) stepResume(ctx context.Context, now time.Time, fault models.FaultKind, faulted bool) {
	rc := c.resume
	if faulted {
		c.resume = nil
		c.enterFault(ctx, now, driverFault(fault))
		return
	}

	settled, known := c.reading.Position.Settled()
	if c.reading.Conflict {
		known = false
	}
	expired := !now.Before(rc.until)

	if dest, moving := rc.from.Destination(); moving {
		atOrigin := known && settled == dest.Opposite().Settled()
		switch {
		case known && settled == dest.Settled():
			c.resume = nil
			c.restore(ctx, now, rc.from, settled, "destination reached before restart")
		case expired && atOrigin && c.target != "" && c.target != dest:
			c.resume = nil
			c.restore(ctx, now, rc.from, settled, "target changed while interrupted at origin")
		case expired:
			if c.pending {
				return
			}
			c.log.Infow("resume_restart_move", "target", dest, "position", c.reading.Position)
			if c.startMove(ctx, now, dest) {
				c.resume = nil
			}
		}
		return
	}

	switch {
	case known && settled == rc.from:
		c.resume = nil
		c.log.Infow("resume_confirmed", "state", settled)
	case known:
		c.resume = nil
		c.restore(ctx, now, rc.from, settled, "position differs from persisted state")
	case expired:
		c.resume = nil
		c.enterFault(ctx, now, models.FaultPowerLoss)
	}
}

func (c *Controller) restore(ctx context.Context, now time.Time, from, to models.DoorState, why string) {
	next := c.snap.Clone()
	next.State = to
	next.Motion = nil
	next.FaultCause = ""
	next.UpdatedAt = now
	_ = c.commit(ctx, next)
	c.log.Infow("door_restored", "from", from, "to", to, "reason", why)
	c.appendEvent(ctx, now, models.EventRestore, why, map[string]any{
		"from":     from,
		"to":       to,
		"position": c.reading.Position,
	})
}
