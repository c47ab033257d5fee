// Package gpio provides the hardware boundary for the charge limiter.
// The real implementations use the Linux GPIO character device for the
// curtailment input and inverter enable line, and the host PWM controller
// for the charge-current output. Fake implementations allow testing
// without hardware.
package gpio

// Default pin assignments (BCM numbering)
const (
	DefaultPinCurtail  = 17 // curtailment input, active-low
	DefaultPinPWM      = 18 // charge-current PWM output (hardware PWM capable)
	DefaultPinInverter = 27 // inverter enable output, high = enabled
)

// DutyScale is the full-scale value of the commanded duty.
const DutyScale = 255

// Curtailment reads the curtailment input line.
//
// The line is active-low: implementations return the logical value
// (true = curtailment currently active). Real implementations also
// deliver falling-edge notifications to the callback supplied at
// construction; the callback runs on the event goroutine and must do
// minimal work.
type Curtailment interface {
	// Level returns true while curtailment is active.
	Level() (bool, error)

	// Close releases the input line.
	Close() error
}

// Charger drives the charge-current PWM and the inverter enable line.
type Charger interface {
	// SetDuty writes the commanded duty on the 0-255 scale. The driver
	// hardware is inverting, so implementations write DutyScale - duty.
	SetDuty(duty int) error

	// SetInverter drives the inverter enable line.
	SetInverter(on bool) error

	// Close releases output resources. The inverter enable line keeps its
	// last driven value.
	Close() error
}
