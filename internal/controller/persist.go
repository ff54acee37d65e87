package controller

import (
	"context"
	"fmt"
	"time"

	"coop_door/internal/models"
)

// commit adopts next as the current state and writes it. On failure the state
// is kept in memory and marked pending; flushPending retries it on later ticks.
func (c *Controller) commit(ctx context.Context, next models.DoorSnapshot) error {
	c.snap = next
	if err := c.states.Save(ctx, next); err != nil {
		c.pending = true
		c.persistErr = err
		c.log.Errorw("persist_failed", "state", next.State, "err", err)
		return err
	}
	c.pending = false
	c.persistErr = nil
	c.pendingLogged = false
	return nil
}

// flushPending retries a pending write up to PersistAttempts times. If every
// attempt fails the tick continues supervising motion but starts nothing new.
// The ERROR event is written once per pending episode.
func (c *Controller) flushPending(ctx context.Context, now time.Time) {
	if !c.pending {
		return
	}
	var err error
	for attempt := 1; attempt <= c.cfg.PersistAttempts; attempt++ {
		if err = c.states.Save(ctx, c.snap); err == nil {
			c.pending = false
			c.persistErr = nil
			c.pendingLogged = false
			c.log.Infow("persist_recovered", "state", c.snap.State, "attempt", attempt)
			return
		}
	}
	c.persistErr = err
	c.log.Errorw("persist_retry_failed", "state", c.snap.State, "attempts", c.cfg.PersistAttempts, "err", err)
	if c.pendingLogged {
		return
	}
	c.pendingLogged = true
	c.appendEvent(ctx, now, models.EventError, "state write failed", map[string]any{
		"state": c.snap.State,
		"err":   err.Error(),
	})
}

func (c *Controller) recordTransition(ctx context.Context, now time.Time, from, to models.DoorState) {
	c.log.Infow("door_transition", "from", from, "to", to, "target", c.target)
	c.appendEvent(ctx, now, models.EventTransition, fmt.Sprintf("%s -> %s", from, to), map[string]any{
		"from":   from,
		"to":     to,
		"target": c.target,
	})
}

// appendEvent writes to the event log. The log is advisory; failures are only logged.
func (c *Controller) appendEvent(ctx context.Context, now time.Time, typ, desc string, meta map[string]any) {
	if c.events == nil {
		return
	}
	err := c.events.Append(ctx, models.DoorEvent{
		OccurredAt:  now,
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		c.log.Warnw("event_append_failed", "type", typ, "err", err)
	}
}
