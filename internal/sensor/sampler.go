package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"coop_door/internal/config"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Sampler reads the raw sensors once. It is polled at the tick interval.
type Sampler interface {
	Sample(ctx context.Context) (RawSample, error)
}

var ErrPinNotFound = errors.New("gpio pin not found")

// GPIOSampler reads two active-low limit switches and an optional light level
// from a sysfs IIO attribute (e.g. /sys/bus/iio/devices/iio:device0/in_illuminance_raw).
// periph must be initialised (host.Init) before construction.
type GPIOSampler struct {
	openPin   gpio.PinIO
	closedPin gpio.PinIO

	lightFile  string
	lightScale float64
}

func NewGPIOSampler(hw config.HardwareConfig) (*GPIOSampler, error) {
	openPin, err := inputPin(hw.OpenSwitchPin)
	if err != nil {
		return nil, err
	}
	closedPin, err := inputPin(hw.ClosedSwitchPin)
	if err != nil {
		return nil, err
	}
	scale := hw.LightScale
	if scale == 0 {
		scale = 1
	}
	return &GPIOSampler{
		openPin:    openPin,
		closedPin:  closedPin,
		lightFile:  hw.LightFile,
		lightScale: scale,
	}, nil
}

func inputPin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrPinNotFound, name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure input %s: %w", name, err)
	}
	return p, nil
}

// Sample reads both switches and, when configured, the light level.
func (s *GPIOSampler) Sample(ctx context.Context) (RawSample, error) {
	if err := ctx.Err(); err != nil {
		return RawSample{}, err
	}
	raw := RawSample{
		OpenSwitch:   s.openPin.Read() == gpio.Low,
		ClosedSwitch: s.closedPin.Read() == gpio.Low,
	}
	if s.lightFile == "" {
		return raw, nil
	}
	lux, err := ReadLightFile(s.lightFile)
	if err != nil {
		return RawSample{}, err
	}
	raw.Light = lux * s.lightScale
	raw.HasLight = true
	return raw, nil
}

// ReadLightFile parses a single numeric value from a sysfs attribute.
func ReadLightFile(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read light sensor %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse light sensor %s: %w", path, err)
	}
	return v, nil
}
