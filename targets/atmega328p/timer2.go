//go:build atmega328p

package main

import (
	"device/avr"
	"runtime/interrupt"

	"powerfeed/core"
	"powerfeed/targets/avrtimer"
)

var stepEngine *core.Engine

func init() {
	interrupt.New(avr.IRQ_TIMER2_COMPA, func(interrupt.Interrupt) {
		if stepEngine != nil {
			stepEngine.Tick()
		}
	})
}

func newStepTimer() *avrtimer.Timer2 {
	return avrtimer.New(avrtimer.Registers{
		TCCR2A: avr.TCCR2A,
		TCCR2B: avr.TCCR2B,
		TCNT2:  avr.TCNT2,
		OCR2A:  avr.OCR2A,
		TIMSK2: avr.TIMSK2,
		TIFR2:  avr.TIFR2,
		TIMSK0: avr.TIMSK0,
	})
}
