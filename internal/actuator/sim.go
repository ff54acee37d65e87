package actuator

import (
	"context"
	"math"
	"sync"
	"time"

	"coop_door/internal/models"
	"coop_door/internal/sensor"
)

// ----------- Simulation constants -----------
const (
	switchBand   = 0.02  // fraction of travel within which a limit switch is pressed
	noonLux      = 400.0 // simulated light at solar noon
	nightLux     = 0.5   // simulated light floor
	dayStartHour = 5.0   // simulated dawn
	dayEndHour   = 21.0  // simulated dusk
	stallAfter   = 0.5   // fraction of travel at which a jam stops the door
)

// SimDoor is a simulated door with a reversing motor, two limit switches and
// a light sensor following a synthetic day curve. It implements both Driver
// and sensor.Sampler so the controller can run without hardware.
type SimDoor struct {
	mu sync.Mutex

	travel time.Duration
	now    func() time.Time

	position  float64 // 0 closed, 1 open
	direction models.Direction
	updatedAt time.Time

	jammed   bool
	failSend error
	latch    FaultLatch
	sends    []models.MoveCommand
}

// NewSimDoor returns a closed simulated door taking travel to move end to end.
func NewSimDoor(travel time.Duration, now func() time.Time) *SimDoor {
	if now == nil {
		now = time.Now
	}
	return &SimDoor{
		travel:    travel,
		now:       now,
		direction: models.DirectionStop,
		updatedAt: now(),
	}
}

func (s *SimDoor) Send(ctx context.Context, cmd models.MoveCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.sends = append(s.sends, cmd)
	if s.failSend != nil && cmd.Direction != models.DirectionStop {
		return s.failSend
	}
	s.direction = cmd.Direction
	return nil
}

func (s *SimDoor) PollFault() (models.FaultKind, bool) {
	s.mu.Lock()
	s.advance(s.now())
	s.mu.Unlock()
	return s.latch.Take()
}

func (s *SimDoor) Sample(ctx context.Context) (sensor.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return sensor.RawSample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.advance(now)
	return sensor.RawSample{
		Light:        simulatedLux(now),
		HasLight:     true,
		OpenSwitch:   s.position >= 1-switchBand,
		ClosedSwitch: s.position <= switchBand,
	}, nil
}

// advance moves the door for the time elapsed since the last update.
// The motor cuts out at either end stop; a jam halts it mid-travel and
// latches a stall.
func (s *SimDoor) advance(now time.Time) {
	elapsed := now.Sub(s.updatedAt)
	s.updatedAt = now
	if elapsed <= 0 || s.direction == models.DirectionStop {
		return
	}
	step := float64(elapsed) / float64(s.travel)
	switch s.direction {
	case models.DirectionExtend:
		s.position = math.Min(s.position+step, 1)
	case models.DirectionRetract:
		s.position = math.Max(s.position-step, 0)
	}
	if s.jammed && math.Abs(s.position-stallAfter) < step+switchBand {
		s.position = stallAfter
		s.direction = models.DirectionStop
		s.latch.Raise(models.FaultStallTimeout)
	}
}

// Jam makes the next move stall halfway.
func (s *SimDoor) Jam(jammed bool) {
	s.mu.Lock()
	s.jammed = jammed
	s.mu.Unlock()
}

// FailSends makes every non-stop command return err.
func (s *SimDoor) FailSends(err error) {
	s.mu.Lock()
	s.failSend = err
	s.mu.Unlock()
}

// SetPosition places the door (0 closed, 1 open) without moving the motor.
func (s *SimDoor) SetPosition(p float64) {
	s.mu.Lock()
	s.advance(s.now())
	s.position = math.Max(0, math.Min(1, p))
	s.mu.Unlock()
}

// InjectFault latches an asynchronous fault as the motor driver would.
func (s *SimDoor) InjectFault(kind models.FaultKind) {
	s.latch.Raise(kind)
}

// Sent returns the commands received so far.
func (s *SimDoor) Sent() []models.MoveCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MoveCommand(nil), s.sends...)
}

// simulatedLux is a half-sine between dawn and dusk.
func simulatedLux(now time.Time) float64 {
	h := float64(now.Hour()) + float64(now.Minute())/60
	if h <= dayStartHour || h >= dayEndHour {
		return nightLux
	}
	phase := (h - dayStartHour) / (dayEndHour - dayStartHour)
	return nightLux + (noonLux-nightLux)*math.Sin(math.Pi*phase)
}
