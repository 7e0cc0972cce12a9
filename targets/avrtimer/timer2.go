// Package avrtimer drives the ATmega328P's Timer2 as the step timer.
// Registers are passed in so the sequence can run against fakes on a host.
package avrtimer

import "powerfeed/core"

// Timer2 register bits
const (
	WGM21  = 1 << 1 // TCCR2A: clear timer on compare match
	OCIE2A = 1 << 1 // TIMSK2: compare match A interrupt
	OCF2A  = 1 << 1 // TIFR2: compare match A pending, cleared by writing one
	TOIE0  = 1 << 0 // TIMSK0: timer0 overflow interrupt
	CSMask = 0b111  // TCCR2B: clock select
)

// Register8 is an 8-bit I/O register. *volatile.Register8 implements it.
type Register8 interface {
	Get() uint8
	Set(value uint8)
	SetBits(value uint8)
	ClearBits(value uint8)
}

// Registers are the registers Timer2 touches.
type Registers struct {
	TCCR2A Register8
	TCCR2B Register8
	TCNT2  Register8
	OCR2A  Register8
	TIMSK2 Register8
	TIFR2  Register8
	TIMSK0 Register8
}

// Timer2 implements core.StepTimer with Timer2 in CTC mode. Writing a clock
// select starts it, clearing the clock select stops it.
type Timer2 struct {
	regs Registers
}

// New wraps the Timer2 registers.
func New(regs Registers) *Timer2 {
	return &Timer2{regs: regs}
}

// Init leaves the timer stopped in CTC mode with no compare match pending
// and the compare interrupt enabled.
func (t *Timer2) Init() {
	r := t.regs
	r.TCCR2A.Set(WGM21)
	r.TCCR2B.Set(0)
	r.TCNT2.Set(0)
	r.OCR2A.Set(0)
	r.TIFR2.Set(OCF2A)
	r.TIMSK2.SetBits(OCIE2A)

	// Timer0 overflow ticks the runtime clock and stretches step pulses
	r.TIMSK0.ClearBits(TOIE0)
}

// Program writes the compare count and then starts the clock.
func (t *Timer2) Program(d core.Divisor, count uint8) {
	t.regs.OCR2A.Set(count)
	t.regs.TCNT2.Set(0)
	t.regs.TCCR2B.Set(d.Select & CSMask)
}

// Stop removes the clock source.
func (t *Timer2) Stop() {
	t.regs.TCCR2B.ClearBits(CSMask)
}
