//go:build atmega328p

package main

import "machine"

// arduinoPins maps Arduino Uno digital pin numbers to port pins.
var arduinoPins = [...]machine.Pin{
	machine.PD0, machine.PD1, machine.PD2, machine.PD3,
	machine.PD4, machine.PD5, machine.PD6, machine.PD7,
	machine.PB0, machine.PB1, machine.PB2, machine.PB3,
	machine.PB4, machine.PB5,
}

// digitalPin returns the port pin behind Arduino pin n.
func digitalPin(n uint8) machine.Pin {
	if int(n) >= len(arduinoPins) {
		return machine.NoPin
	}
	return arduinoPins[n]
}

func configureInput(n uint8, pullup bool) machine.Pin {
	p := digitalPin(n)
	mode := machine.PinInput
	if pullup {
		mode = machine.PinInputPullup
	}
	p.Configure(machine.PinConfig{Mode: mode})
	return p
}

func configureOutput(n uint8) machine.Pin {
	p := digitalPin(n)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return p
}
