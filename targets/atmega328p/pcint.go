//go:build atmega328p

package main

import (
	"device/avr"
	"runtime/interrupt"

	"powerfeed/core"
)

const (
	pcicrPCIE0 = 1 << 0 // PB0..PB5: buttons and rotary push
	pcicrPCIE2 = 1 << 2 // PD0..PD7: rotary

	buttonMask = 0b00111111
	rotaryMask = 0b10000000 // PD7, rotary A
)

// pinChange routes the pin change interrupts to the capture layer.
type pinChange struct{}

var inputCapture *core.Capture

func init() {
	interrupt.New(avr.IRQ_PCINT0, func(interrupt.Interrupt) {
		if inputCapture != nil {
			inputCapture.HandleButtons()
		}
	})
	interrupt.New(avr.IRQ_PCINT2, func(interrupt.Interrupt) {
		if inputCapture != nil {
			inputCapture.HandleRotary()
		}
	})
}

// EnableButtons implements core.ChangeInterrupts.
func (pinChange) EnableButtons() {
	avr.PCMSK0.Set(buttonMask)
	avr.PCICR.SetBits(pcicrPCIE0)
}

// EnableRotary implements core.ChangeInterrupts.
func (pinChange) EnableRotary() {
	avr.PCMSK2.Set(rotaryMask)
	avr.PCICR.SetBits(pcicrPCIE2)
}
