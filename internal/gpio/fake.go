package gpio

import "errors"

// FakeCurtailment is a test double that returns scripted level readings.
type FakeCurtailment struct {
	// Levels contains scripted logical levels (true = curtailment active).
	// Each call to Level() consumes the next entry; when exhausted, the
	// last entry repeats.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Level()
	ReadError error

	// edge, if set, simulates a falling-edge notification delivered
	// before the corresponding sample is read.
	edge func()
}

// NewFakeCurtailment creates a FakeCurtailment with the given levels.
func NewFakeCurtailment(levels []bool) *FakeCurtailment {
	return &FakeCurtailment{Levels: levels}
}

// OnEdge registers the edge callback, mirroring the real constructor.
func (f *FakeCurtailment) OnEdge(fn func()) {
	f.edge = fn
}

// FireEdge invokes the registered edge callback, simulating a falling
// edge between level reads.
func (f *FakeCurtailment) FireEdge() {
	if f.edge != nil {
		f.edge()
	}
}

// Level returns the next scripted level.
func (f *FakeCurtailment) Level() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}

	return level, nil
}

// Close marks the input as closed.
func (f *FakeCurtailment) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the input to the beginning of the script.
func (f *FakeCurtailment) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeCharger records output writes for test assertions.
type FakeCharger struct {
	// Duties contains every commanded duty passed to SetDuty, in order.
	Duties []int

	// Raw contains the corresponding inverted values as they would reach
	// the hardware (DutyScale - duty).
	Raw []int

	// InverterWrites contains every value passed to SetInverter, in order.
	InverterWrites []bool

	// Closed tracks if Close was called
	Closed bool

	// DutyError, if set, will be returned by SetDuty()
	DutyError error

	// InverterError, if set, will be returned by SetInverter()
	InverterError error
}

// NewFakeCharger creates a FakeCharger for testing.
func NewFakeCharger() *FakeCharger {
	return &FakeCharger{}
}

// SetDuty records the commanded duty and its inverted hardware value.
func (f *FakeCharger) SetDuty(duty int) error {
	if f.DutyError != nil {
		return f.DutyError
	}
	f.Duties = append(f.Duties, duty)
	f.Raw = append(f.Raw, DutyScale-duty)
	return nil
}

// SetInverter records the enable write.
func (f *FakeCharger) SetInverter(on bool) error {
	if f.InverterError != nil {
		return f.InverterError
	}
	f.InverterWrites = append(f.InverterWrites, on)
	return nil
}

// Close marks the charger as closed.
func (f *FakeCharger) Close() error {
	f.Closed = true
	return nil
}

// LastDuty returns the most recent commanded duty, or -1 if none.
func (f *FakeCharger) LastDuty() int {
	if len(f.Duties) == 0 {
		return -1
	}
	return f.Duties[len(f.Duties)-1]
}
