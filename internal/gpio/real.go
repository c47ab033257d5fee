//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pwmFrequency matches the analog-write frequency of the charger's
// original driver board; the opto front-end is tuned for it.
const pwmFrequency = 490 * physic.Hertz

// RealCurtailment reads the curtailment line from actual hardware using
// the Linux GPIO character device.
type RealCurtailment struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealCurtailment requests the curtailment pin as an input with
// pull-up (the line idles high; the supply pulls it low to curtail).
// onEdge is invoked from the event goroutine on every falling edge.
func NewRealCurtailment(pin int, onEdge func()) (*RealCurtailment, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
			onEdge()
		}))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request curtailment pin %d: %w", pin, err)
	}

	return &RealCurtailment{chip: chip, line: line}, nil
}

// Level returns true while curtailment is active.
// The line is active-low: raw 0 = curtailing, raw 1 = idle.
func (c *RealCurtailment) Level() (bool, error) {
	raw, err := c.line.Value()
	if err != nil {
		return false, fmt.Errorf("read curtailment pin: %w", err)
	}
	return raw == 0, nil
}

// Close releases the curtailment line.
func (c *RealCurtailment) Close() error {
	var errs []error

	if c.line != nil {
		if err := c.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close curtailment pin: %w", err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealCharger drives the PWM pin via the host PWM controller and the
// inverter enable line via the GPIO character device.
type RealCharger struct {
	chip     *gpiocdev.Chip
	inverter *gpiocdev.Line
	pwm      pgpio.PinIO
}

// NewRealCharger initializes the outputs. The inverter enable line is
// driven high (enabled) immediately; the PWM pin is not written until the
// first SetDuty.
func NewRealCharger(pwmPin, inverterPin int) (*RealCharger, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	pwm := gpioreg.ByName(fmt.Sprintf("GPIO%d", pwmPin))
	if pwm == nil {
		return nil, fmt.Errorf("pwm pin GPIO%d not found", pwmPin)
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	inverter, err := chip.RequestLine(inverterPin, gpiocdev.AsOutput(1))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request inverter pin %d: %w", inverterPin, err)
	}

	return &RealCharger{chip: chip, inverter: inverter, pwm: pwm}, nil
}

// SetDuty writes the commanded duty to the PWM pin. The downstream driver
// hardware is inverting, so the complement on the 0-255 scale is written.
func (c *RealCharger) SetDuty(duty int) error {
	if duty < 0 {
		duty = 0
	}
	if duty > DutyScale {
		duty = DutyScale
	}

	raw := DutyScale - duty
	d := pgpio.Duty(int64(raw) * int64(pgpio.DutyMax) / DutyScale)
	if err := c.pwm.PWM(d, pwmFrequency); err != nil {
		return fmt.Errorf("write pwm: %w", err)
	}
	return nil
}

// SetInverter drives the inverter enable line.
func (c *RealCharger) SetInverter(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := c.inverter.SetValue(v); err != nil {
		return fmt.Errorf("write inverter enable: %w", err)
	}
	return nil
}

// Close releases output resources. The inverter enable line is left at
// its last driven value so a process restart does not re-enable a
// tripped inverter by side effect.
func (c *RealCharger) Close() error {
	var errs []error

	if err := c.pwm.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt pwm: %w", err))
	}
	if c.inverter != nil {
		if err := c.inverter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close inverter pin: %w", err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
