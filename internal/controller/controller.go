package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"coop_door/internal/actuator"
	"coop_door/internal/config"
	"coop_door/internal/logger"
	"coop_door/internal/models"
	"coop_door/internal/repository"
	"coop_door/internal/sensor"
)

var (
	ErrFaulted         = errors.New("door is faulted; recover first")
	ErrNotFaulted      = errors.New("door is not faulted")
	ErrPositionUnknown = errors.New("door position unknown")
	ErrPersistPending  = errors.New("state write pending; retry later")
	ErrNotStarted      = errors.New("controller not started")
	ErrInvalidTarget   = errors.New("invalid target")
)

// Planner resolves the decision instant and the latest reading into a target.
type Planner interface {
	Target(now time.Time, r models.SensorReading) models.TargetState
}

// Observer receives the door status after every tick and operator action.
// changed is true when the state, faults or override moved. Implementations
// must not block.
type Observer interface {
	Publish(status models.DoorStatus, changed bool)
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Driver    actuator.Driver
	Sampler   sensor.Sampler
	Fusion    *sensor.Fusion
	Planner   Planner
	States    repository.StateRepo
	Events    repository.EventRepo
	Log       *logger.Logger
	Observers []Observer
	Location  *time.Location   // calendar day for overrides
	Now       func() time.Time // wall clock for Run and operator commands
}

// Controller is the door state machine. Every method is serialized on one
// mutex; Tick is the only place automatic decisions are made.
type Controller struct {
	mu sync.Mutex

	cfg       config.ControllerConfig
	driver    actuator.Driver
	sampler   sensor.Sampler
	fusion    *sensor.Fusion
	planner   Planner
	states    repository.StateRepo
	events    repository.EventRepo
	log       *logger.Logger
	observers []Observer
	loc       *time.Location
	now       func() time.Time

	started bool
	snap    models.DoorSnapshot
	reading models.SensorReading
	target  models.TargetState

	pending       bool  // snap not yet persisted
	persistErr    error // last failed write
	pendingLogged bool  // ERROR event written for the current pending episode

	faultTimes    []time.Time // rolling escalation window
	mismatchSince time.Time
	resume        *resumeCheck
}

func New(cfg config.ControllerConfig, d Deps) *Controller {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Controller{
		cfg:       cfg,
		driver:    d.Driver,
		sampler:   d.Sampler,
		fusion:    d.Fusion,
		planner:   d.Planner,
		states:    d.States,
		events:    d.Events,
		log:       d.Log.Named("controller"),
		observers: d.Observers,
		loc:       d.Location,
		now:       d.Now,
	}
}

// Run ticks at the given interval until ctx is canceled, then stops the motor.
// An interrupted move is picked up by the resume check on the next start.
func (c *Controller) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-t.C:
			c.Tick(ctx, c.now())
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
		c.log.Errorw("shutdown_stop_failed", "err", err)
		return
	}
	c.log.Infow("controller_stopped", "state", c.snap.State)
}

// Tick runs one control cycle: flush a pending write, sample, merge the
// latched driver fault, evaluate the schedule, then decide.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	before := c.snap.Clone()

	c.flushPending(ctx, now)
	c.sample(ctx, now)
	fault, faulted := c.driver.PollFault()
	c.target = c.evaluateTarget(ctx, now)

	if c.resume != nil {
		c.stepResume(ctx, now, fault, faulted)
	} else {
		c.step(ctx, now, fault, faulted)
	}

	c.notify(changed(before, c.snap))
}

func (c *Controller) sample(ctx context.Context, now time.Time) {
	raw, err := c.sampler.Sample(ctx)
	if err != nil {
		c.log.Warnw("sensor_sample_failed", "err", err)
		c.reading = c.fusion.Miss(now)
		return
	}
	c.reading = c.fusion.Observe(now, raw)
}

// evaluateTarget asks the planner every tick so its hysteresis stays fed,
// then applies a same-day override. An override from an earlier day lapses.
func (c *Controller) evaluateTarget(ctx context.Context, now time.Time) models.TargetState {
	planned := c.planner.Target(now, c.reading)
	if c.snap.Override == "" {
		return planned
	}
	if c.snap.OverrideDay == c.day(now) {
		return c.snap.Override
	}
	if !c.pending {
		next := c.snap.Clone()
		next.Override, next.OverrideDay = "", ""
		next.UpdatedAt = now
		if c.commit(ctx, next) == nil {
			c.log.Infow("override_lapsed", "day", c.day(now))
		}
	}
	return planned
}

func (c *Controller) step(ctx context.Context, now time.Time, fault models.FaultKind, faulted bool) {
	switch c.snap.State {
	case models.StateFaulted:
		if faulted {
			c.log.Warnw("driver_fault_while_faulted", "kind", fault)
		}
	case models.StateOpening, models.StateClosing:
		c.supervise(ctx, now, fault, faulted)
	case models.StateOpen, models.StateClosed:
		if faulted {
			c.enterFault(ctx, now, driverFault(fault))
			return
		}
		c.maybeMove(ctx, now)
	}
}

// maybeMove starts a move when the target differs from the settled state.
func (c *Controller) maybeMove(ctx context.Context, now time.Time) {
	if c.pending || c.target == "" || c.target.Settled() == c.snap.State {
		return
	}
	if c.snap.Disabled && !c.overrideActive(now) {
		return
	}
	c.startMove(ctx, now, c.target)
}

func (c *Controller) overrideActive(now time.Time) bool {
	return c.snap.Override != "" && c.snap.OverrideDay == c.day(now)
}

func (c *Controller) day(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// Status returns the read-only view of the controller.
func (c *Controller) Status() models.DoorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

func (c *Controller) status() models.DoorStatus {
	s := c.snap.Clone()
	st := models.DoorStatus{
		State:      s.State,
		Verifying:  c.resume != nil,
		Target:     c.target,
		Reading:    c.reading,
		Motion:     s.Motion,
		FaultCause: s.FaultCause,
		Faults:     s.Faults,
		Disabled:   s.Disabled,
		UpdatedAt:  s.UpdatedAt,
	}
	if c.overrideActive(c.now()) {
		st.Override = s.Override
	}
	if c.persistErr != nil {
		st.PersistError = c.persistErr.Error()
	}
	return st
}

func (c *Controller) notify(changed bool) {
	if len(c.observers) == 0 {
		return
	}
	st := c.status()
	for _, o := range c.observers {
		o.Publish(st, changed)
	}
}

func changed(a, b models.DoorSnapshot) bool {
	if a.State != b.State || a.FaultCause != b.FaultCause || a.Disabled != b.Disabled ||
		a.Override != b.Override || len(a.Faults) != len(b.Faults) {
		return true
	}
	for i := range a.Faults {
		if a.Faults[i] != b.Faults[i] {
			return true
		}
	}
	return false
}
