package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/logger"
	"coop_door/internal/models"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// edgePoll bounds each WaitForEdge call so Close can stop the watcher.
const edgePoll = 500 * time.Millisecond

// GPIODriver drives a reversing motor through two relays (extend, retract)
// and watches an optional active-low overcurrent line from the motor driver.
// periph must be initialised (host.Init) before construction.
type GPIODriver struct {
	extend  gpio.PinIO
	retract gpio.PinIO
	fault   gpio.PinIO

	on, off gpio.Level

	latch FaultLatch
	log   *logger.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewGPIODriver(hw config.HardwareConfig, log *logger.Logger) (*GPIODriver, error) {
	d := &GPIODriver{
		on:   gpio.High,
		off:  gpio.Low,
		log:  log,
		stop: make(chan struct{}),
	}
	if hw.RelayActiveLow {
		d.on, d.off = gpio.Low, gpio.High
	}

	var err error
	if d.extend, err = d.outputPin(hw.ExtendPin); err != nil {
		return nil, err
	}
	if d.retract, err = d.outputPin(hw.RetractPin); err != nil {
		return nil, err
	}

	if hw.FaultPin != "" {
		p := gpioreg.ByName(hw.FaultPin)
		if p == nil {
			return nil, fmt.Errorf("fault pin %q not found", hw.FaultPin)
		}
		if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, fmt.Errorf("configure fault pin %s: %w", hw.FaultPin, err)
		}
		d.fault = p
		d.wg.Add(1)
		go d.watchFault()
	}
	return d, nil
}

func (d *GPIODriver) outputPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("relay pin %q not found", name)
	}
	if err := p.Out(d.off); err != nil {
		return nil, fmt.Errorf("configure relay %s: %w", name, err)
	}
	return p, nil
}

// Send switches the relays. Both relays are released before the active one is
// energised so the H-bridge never sees both directions at once.
func (d *GPIODriver) Send(ctx context.Context, cmd models.MoveCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.extend.Out(d.off); err != nil {
		return fmt.Errorf("%w: release extend: %v", ErrCommandRejected, err)
	}
	if err := d.retract.Out(d.off); err != nil {
		return fmt.Errorf("%w: release retract: %v", ErrCommandRejected, err)
	}

	var pin gpio.PinIO
	switch cmd.Direction {
	case models.DirectionStop:
		return nil
	case models.DirectionExtend:
		pin = d.extend
	case models.DirectionRetract:
		pin = d.retract
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, cmd.Direction)
	}
	if err := pin.Out(d.on); err != nil {
		return fmt.Errorf("%w: energise %s: %v", ErrCommandRejected, cmd.Direction, err)
	}
	return nil
}

func (d *GPIODriver) PollFault() (models.FaultKind, bool) {
	return d.latch.Take()
}

// watchFault latches a stall on every falling edge of the overcurrent line.
func (d *GPIODriver) watchFault() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		if d.fault.WaitForEdge(edgePoll) && d.fault.Read() == gpio.Low {
			d.log.Warnw("actuator_overcurrent", "pin", d.fault.Name())
			d.latch.Raise(models.FaultStallTimeout)
		}
	}
}

// Close releases both relays and stops the fault watcher.
func (d *GPIODriver) Close() error {
	close(d.stop)
	if d.fault != nil {
		_ = d.fault.In(gpio.PullUp, gpio.NoEdge) // unblocks WaitForEdge
	}
	d.wg.Wait()
	return d.Send(context.Background(), models.MoveCommand{Direction: models.DirectionStop})
}
