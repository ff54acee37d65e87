package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"coop_door/internal/models"
)

var (
	ErrCommandRejected  = errors.New("actuator rejected command")
	ErrUnknownDirection = errors.New("unknown move direction")
)

// Driver is the boundary to the physical mechanism.
//
// Send issues one command; PollFault returns the latest asynchronous fault
// signal (overcurrent, stall, supply loss) raised since the last poll.
type Driver interface {
	Send(ctx context.Context, cmd models.MoveCommand) error
	PollFault() (models.FaultKind, bool)
}

// FaultLatch is a single-slot cell for asynchronous fault signals. Raise may
// be called from any goroutine (edge watcher, interrupt handler); the control
// loop drains it once per tick with Take. The latest signal wins.
type FaultLatch struct {
	mu   sync.Mutex
	kind models.FaultKind
	set  bool
}

func (l *FaultLatch) Raise(kind models.FaultKind) {
	l.mu.Lock()
	l.kind = kind
	l.set = true
	l.mu.Unlock()
}

func (l *FaultLatch) Take() (models.FaultKind, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.set {
		return "", false
	}
	kind := l.kind
	l.kind, l.set = "", false
	return kind, true
}

// Guard wraps a Driver and enforces the command discipline: one outstanding
// command at a time and an explicit Stop before any new Extend or Retract.
type Guard struct {
	driver  Driver
	mu      sync.Mutex
	current models.Direction
}

func NewGuard(d Driver) *Guard {
	return &Guard{driver: d, current: models.DirectionStop}
}

// Send forwards cmd, inserting a Stop first when the motor may be running.
func (g *Guard) Send(ctx context.Context, cmd models.MoveCommand) error {
	switch cmd.Direction {
	case models.DirectionStop, models.DirectionExtend, models.DirectionRetract:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, cmd.Direction)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cmd.Direction != models.DirectionStop && g.current != models.DirectionStop {
		if err := g.driver.Send(ctx, models.MoveCommand{Direction: models.DirectionStop}); err != nil {
			return fmt.Errorf("stop before %s: %w", cmd.Direction, err)
		}
		g.current = models.DirectionStop
	}

	err := g.driver.Send(ctx, cmd)
	if err != nil && cmd.Direction == models.DirectionStop {
		// motor state unknown; keep the previous direction so the next move stops first
		return err
	}
	// a failed move may still have energised the motor
	g.current = cmd.Direction
	return err
}

func (g *Guard) PollFault() (models.FaultKind, bool) {
	return g.driver.PollFault()
}

// Current returns the last direction sent.
func (g *Guard) Current() models.Direction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
