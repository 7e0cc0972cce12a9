package core

// InputPin is a digital input. Implementations are sampled from interrupt
// context and must not block. machine.Pin satisfies it.
type InputPin interface {
	Get() bool
}

// OutputPin is a digital output driven from interrupt context.
// machine.Pin satisfies it.
type OutputPin interface {
	High()
	Low()
}

// Sensor is an input pin together with the level that means "asserted".
type Sensor struct {
	Pin       InputPin
	ActiveLow bool
}

// Active reports whether the sensor is asserted. A sensor without a pin is
// never asserted.
func (s Sensor) Active() bool {
	if s.Pin == nil {
		return false
	}
	return s.Pin.Get() != s.ActiveLow
}

// StepTimer is the periodic hardware timer that paces step pulses.
//
// Init puts the timer in clear-on-compare mode with no clock source, a zero
// compare value and the compare interrupt enabled, and silences any other
// periodic source that would add jitter to the pulse train.
//
// Program selects the clock divisor and compare count. The engine calls it
// inside a critical section so both registers change together.
//
// Stop removes the clock source so no further ticks fire. It is called from
// the tick handler itself and must not re-enable interrupts.
type StepTimer interface {
	Init()
	Program(d Divisor, count uint8)
	Stop()
}

// Delay busy-waits for a fixed number of microseconds. It is used from
// interrupt context, so it must not yield or depend on other interrupts.
type Delay func(us uint32)

// ChangeInterrupts enables the edge interrupts feeding a Capture.
type ChangeInterrupts interface {
	// EnableButtons enables the group change interrupt of the button pins.
	EnableButtons()
	// EnableRotary enables the edge interrupt of the encoder's primary line.
	EnableRotary()
}
