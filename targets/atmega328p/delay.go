//go:build atmega328p

package main

import "device/avr"

// busyDelay spins for roughly us microseconds at 16MHz. It runs inside
// interrupt handlers with Timer0 disabled, so it cannot use the runtime
// clock.
func busyDelay(us uint32) {
	for ; us > 0; us-- {
		// 12 nops plus loop overhead is about 16 cycles
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
		avr.Asm("nop")
	}
}
