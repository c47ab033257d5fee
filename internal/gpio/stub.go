//go:build !linux

package gpio

import "errors"

// RealCurtailment is not available on non-Linux platforms.
type RealCurtailment struct{}

// NewRealCurtailment returns an error on non-Linux platforms.
func NewRealCurtailment(pin int, onEdge func()) (*RealCurtailment, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Level is not implemented on non-Linux platforms.
func (c *RealCurtailment) Level() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealCurtailment) Close() error {
	return nil
}

// RealCharger is not available on non-Linux platforms.
type RealCharger struct{}

// NewRealCharger returns an error on non-Linux platforms.
func NewRealCharger(pwmPin, inverterPin int) (*RealCharger, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetDuty is not implemented on non-Linux platforms.
func (c *RealCharger) SetDuty(duty int) error {
	return errors.New("gpio: not supported")
}

// SetInverter is not implemented on non-Linux platforms.
func (c *RealCharger) SetInverter(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealCharger) Close() error {
	return nil
}
