package controller

import (
	"context"
	"fmt"
	"time"

	"coop_door/internal/models"
)

// startMove persists the transit state first, then energises the motor. A
// failed write aborts the move before anything is sent and returns false.
func (c *Controller) startMove(ctx context.Context, now time.Time, target models.TargetState) bool {
	from := c.snap.State
	motion := models.Motion{
		Direction: target.Direction(),
		Since:     now,
		Deadline:  now.Add(c.cfg.MoveDeadline),
	}
	next := c.snap.Clone()
	next.State = target.Transit()
	next.Motion = &motion
	next.FaultCause = ""
	next.UpdatedAt = now

	if err := c.states.Save(ctx, next); err != nil {
		c.persistErr = err
		c.log.Errorw("persist_failed", "state", next.State, "err", err)
		return false
	}
	c.persistErr = nil
	c.snap = next
	c.mismatchSince = time.Time{}
	c.recordTransition(ctx, now, from, next.State)

	cmd := models.MoveCommand{Direction: motion.Direction, Deadline: motion.Deadline}
	if err := c.driver.Send(ctx, cmd); err != nil {
		c.log.Errorw("actuator_send_failed", "direction", cmd.Direction, "err", err)
		c.enterFault(ctx, now, models.FaultStallTimeout)
		return true
	}
	c.appendEvent(ctx, now, models.EventCommand, string(cmd.Direction), map[string]any{
		"direction": cmd.Direction,
		"deadline":  cmd.Deadline,
		"target":    target,
	})
	return true
}

// supervise watches an in-flight move. The move is never cancelled for a
// changed target; it ends at the destination, on a fault or at the deadline.
func (c *Controller) supervise(ctx context.Context, now time.Time, fault models.FaultKind, faulted bool) {
	dest, _ := c.snap.State.Destination()
	r := c.reading
	var deadline time.Time
	if c.snap.Motion != nil {
		deadline = c.snap.Motion.Deadline
	}

	switch {
	case faulted:
		c.enterFault(ctx, now, driverFault(fault))
	case r.Position == dest.Position() && !r.Conflict:
		c.settle(ctx, now, dest)
	case !now.Before(deadline):
		c.enterFault(ctx, now, models.FaultStallTimeout)
	case r.Stale:
		c.enterFault(ctx, now, models.FaultSensorMismatch)
	case r.Conflict || r.Position == dest.Opposite().Position():
		if c.mismatchSince.IsZero() {
			c.mismatchSince = now
			return
		}
		if now.Sub(c.mismatchSince) > c.cfg.MismatchWindow {
			c.enterFault(ctx, now, models.FaultSensorMismatch)
		}
	default:
		c.mismatchSince = time.Time{}
	}
}

// settle completes a move: the motor is stopped and the fault counters reset.
func (c *Controller) settle(ctx context.Context, now time.Time, dest models.TargetState) {
	if err := c.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
		c.log.Warnw("actuator_stop_failed", "err", err)
	}
	from := c.snap.State
	next := c.snap.Clone()
	next.State = dest.Settled()
	next.Motion = nil
	next.FaultCause = ""
	next.Faults = nil
	next.Disabled = false
	next.FaultsResetAt = now
	next.UpdatedAt = now
	c.faultTimes = nil
	c.mismatchSince = time.Time{}

	_ = c.commit(ctx, next)
	c.recordTransition(ctx, now, from, next.State)
}

// enterFault halts the motor, counts the fault and escalates to the disabled
// sub-mode when the rolling window fills. There is no automatic retry.
func (c *Controller) enterFault(ctx context.Context, now time.Time, kind models.FaultKind) {
	if err := c.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
		c.log.Errorw("actuator_stop_failed", "err", err)
	}

	from := c.snap.State
	next := c.snap.Clone()
	next.State = models.StateFaulted
	next.Motion = nil
	next.FaultCause = kind
	next.UpdatedAt = now

	rec := next.Fault(kind)
	rec.Count++
	rec.LastOccurred = now
	next.Faults = upsertFault(next.Faults, rec)

	c.faultTimes = append(pruneBefore(c.faultTimes, now.Add(-c.cfg.FaultWindow)), now)
	if len(c.faultTimes) >= c.cfg.FaultThreshold && !next.Disabled {
		next.Disabled = true
		c.log.Errorw("door_disabled", "faults_in_window", len(c.faultTimes), "window", c.cfg.FaultWindow)
	}
	c.mismatchSince = time.Time{}

	_ = c.commit(ctx, next)
	c.log.Errorw("door_fault", "kind", kind, "from", from, "count", rec.Count, "disabled", next.Disabled)
	c.appendEvent(ctx, now, models.EventFault, fmt.Sprintf("%s while %s", kind, from), map[string]any{
		"kind":     kind,
		"from":     from,
		"count":    rec.Count,
		"disabled": next.Disabled,
	})
}

// driverFault maps an asynchronous driver signal to a fault kind. Anything
// other than a supply loss is treated as a stall.
func driverFault(kind models.FaultKind) models.FaultKind {
	if kind == models.FaultPowerLoss {
		return kind
	}
	return models.FaultStallTimeout
}

func upsertFault(faults []models.FaultRecord, rec models.FaultRecord) []models.FaultRecord {
	for i := range faults {
		if faults[i].Kind == rec.Kind {
			faults[i] = rec
			return faults
		}
	}
	return append(faults, rec)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
