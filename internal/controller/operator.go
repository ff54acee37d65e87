package controller

import (
	"context"
	"fmt"

	"coop_door/internal/models"
)

// Recover clears a Faulted state. The motor is stopped, the sensors are
// sampled once more and a known position is accepted as ground truth. The
// door is not moved and the fault counters are kept.
func (c *Controller) Recover(ctx context.Context) (models.DoorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return models.DoorStatus{}, err
	}
	if c.snap.State != models.StateFaulted {
		return models.DoorStatus{}, ErrNotFaulted
	}
	now := c.now()

	if err := c.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
		return models.DoorStatus{}, fmt.Errorf("stop before recovery: %w", err)
	}
	c.sample(ctx, now)

	settled, known := c.reading.Position.Settled()
	if !known || c.reading.Conflict {
		c.log.Warnw("recovery_rejected", "position", c.reading.Position, "conflict", c.reading.Conflict)
		return models.DoorStatus{}, ErrPositionUnknown
	}

	cause := c.snap.FaultCause
	next := c.snap.Clone()
	next.State = settled
	next.FaultCause = ""
	next.Motion = nil
	next.UpdatedAt = now
	if err := c.apply(ctx, next); err != nil {
		return models.DoorStatus{}, err
	}
	c.resume = nil

	c.log.Infow("door_recovered", "state", settled, "cause", cause)
	c.appendEvent(ctx, now, models.EventRecovery, fmt.Sprintf("recovered to %s", settled), map[string]any{
		"cause":    cause,
		"position": c.reading.Position,
	})
	c.notify(true)
	return c.status(), nil
}

// ClearFaults resets the fault counters and leaves the disabled sub-mode.
// It does not leave the Faulted state; use Recover for that.
func (c *Controller) ClearFaults(ctx context.Context) (models.DoorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return models.DoorStatus{}, err
	}
	now := c.now()

	next := c.snap.Clone()
	next.Faults = nil
	next.Disabled = false
	next.FaultsResetAt = now
	next.UpdatedAt = now
	if err := c.apply(ctx, next); err != nil {
		return models.DoorStatus{}, err
	}
	c.faultTimes = nil

	c.log.Infow("faults_cleared")
	c.appendEvent(ctx, now, models.EventRecovery, "fault counters cleared", nil)
	c.notify(true)
	return c.status(), nil
}

// SetOverride pins the target for the rest of the local day. Override moves
// run in the disabled sub-mode but never from Faulted.
func (c *Controller) SetOverride(ctx context.Context, target models.TargetState) (models.DoorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !target.Valid() {
		return models.DoorStatus{}, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if err := c.ready(); err != nil {
		return models.DoorStatus{}, err
	}
	if c.snap.State == models.StateFaulted {
		return models.DoorStatus{}, ErrFaulted
	}
	now := c.now()

	next := c.snap.Clone()
	next.Override = target
	next.OverrideDay = c.day(now)
	next.UpdatedAt = now
	if err := c.apply(ctx, next); err != nil {
		return models.DoorStatus{}, err
	}
	c.target = target

	c.log.Infow("override_set", "target", target, "day", next.OverrideDay)
	c.appendEvent(ctx, now, models.EventOverride, fmt.Sprintf("override %s", target), map[string]any{
		"target": target,
		"day":    next.OverrideDay,
	})
	c.notify(true)
	return c.status(), nil
}

// ClearOverride returns control to the schedule.
func (c *Controller) ClearOverride(ctx context.Context) (models.DoorStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return models.DoorStatus{}, err
	}
	if c.snap.Override == "" {
		return c.status(), nil
	}
	now := c.now()

	next := c.snap.Clone()
	next.Override, next.OverrideDay = "", ""
	next.UpdatedAt = now
	if err := c.apply(ctx, next); err != nil {
		return models.DoorStatus{}, err
	}

	c.log.Infow("override_cleared")
	c.appendEvent(ctx, now, models.EventOverride, "override cleared", nil)
	c.notify(true)
	return c.status(), nil
}

// ready refuses operator commands before Start and while a write is pending.
func (c *Controller) ready() error {
	if !c.started {
		return ErrNotStarted
	}
	if c.pending {
		return ErrPersistPending
	}
	return nil
}

// apply writes next and adopts it only when the write succeeds.
func (c *Controller) apply(ctx context.Context, next models.DoorSnapshot) error {
	if err := c.states.Save(ctx, next); err != nil {
		c.persistErr = err
		c.log.Errorw("persist_failed", "state", next.State, "err", err)
		return fmt.Errorf("save door state: %w", err)
	}
	c.persistErr = nil
	c.snap = next
	return nil
}
