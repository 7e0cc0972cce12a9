// Package config holds the machine configuration of the power feed: pin
// assignments, lead screw geometry, feed rates and timer constants.
package config

import (
	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
)

// Pins are Arduino digital pin numbers.
type Pins struct {
	Step      uint8 // step pulse output
	Direction uint8 // direction output
	Enable    uint8 // driver enable output

	FastLeft     uint8
	SlowLeft     uint8
	SlowRight    uint8
	FastRight    uint8
	Stop         uint8 // also the emergency stop input
	RotarySwitch uint8
	RotaryA      uint8 // encoder direction line
	RotaryB      uint8 // encoder valid-edge line
	Endstop      uint8
}

// Geometry describes the lead screw and motor.
type Geometry struct {
	UMPerRotation    uint32 // table travel per lead screw rotation
	StepsPerRotation uint32 // motor steps per rotation, microstepping included
}

// FeedRates are in micrometers per second.
type FeedRates struct {
	Precision uint32 // default precision move rate
	Rapid     uint32 // rapid move rate
	Adjust    uint32 // change per encoder detent
}

// DivisorOption is one prescaler of the step timer.
type DivisorOption struct {
	Select uint8  // clock-select bits
	Factor uint16 // clock denominator
}

// DisplayConfig configures the I2C character LCD.
type DisplayConfig struct {
	Enabled bool
	Address uint8
	Width   uint8
	Height  uint8
}

// LinkConfig configures the serial command link.
type LinkConfig struct {
	Enabled bool
	Baud    uint32
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Pins     Pins
	Geometry Geometry
	Feed     FeedRates

	PulseWidthUS    uint32 // step pulse width
	ButtonSettleUS  uint32 // settle time before sampling buttons
	EncoderPolarity int8   // +1 or -1
	EndstopTicks    uint16 // consecutive ticks before an endstop stop
	AllowBackAway   bool   // allow moving away from a triggered endstop

	EndstopActiveLow bool // endstop input asserts low
	ButtonsActiveLow bool // buttons pull the input low
	DirectionCWHigh  bool // direction output is high for clockwise travel
	EnableActiveLow  bool // driver enable input asserts low

	ClockHz  uint32          // system clock
	Divisors []DivisorOption // fastest first

	Display DisplayConfig
	Link    LinkConfig
}

// FieldError reports an invalid configuration field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return "invalid config: " + e.Field }

// Code maps the error onto the link-facing code.
func (e *FieldError) Code() errcode.Code { return errcode.InvalidParams }

// Default returns the configuration of the reference build: an Arduino Uno
// at 16MHz driving a 2mm pitch lead screw with 12800 microsteps per turn.
func Default() *MachineConfig {
	return &MachineConfig{
		Pins: Pins{
			Step:         3,
			Direction:    4,
			Enable:       5,
			FastLeft:     13,
			SlowLeft:     12,
			SlowRight:    11,
			FastRight:    10,
			Stop:         9,
			RotarySwitch: 8,
			RotaryA:      7,
			RotaryB:      6,
			Endstop:      2,
		},
		Geometry: Geometry{
			UMPerRotation:    2000,
			StepsPerRotation: 12800,
		},
		Feed: FeedRates{
			Precision: 1000,
			Rapid:     7000,
			Adjust:    50,
		},
		PulseWidthUS:     4,
		ButtonSettleUS:   1000,
		EncoderPolarity:  -1,
		EndstopTicks:     100,
		AllowBackAway:    true,
		EndstopActiveLow: false,
		ButtonsActiveLow: true,
		DirectionCWHigh:  true,
		EnableActiveLow:  true,
		ClockHz:          16000000,
		Divisors:         DefaultDivisors(),
		Display: DisplayConfig{
			Enabled: true,
			Address: 0x27,
			Width:   16,
			Height:  2,
		},
		Link: LinkConfig{
			Enabled: false,
			Baud:    115200,
		},
	}
}

// DefaultDivisors returns the timer 2 prescalers of the ATmega328P from /32
// upward. /1 and /8 are too fine for any useful feed rate.
func DefaultDivisors() []DivisorOption {
	return []DivisorOption{
		{Select: 0b011, Factor: 32},
		{Select: 0b100, Factor: 64},
		{Select: 0b101, Factor: 128},
		{Select: 0b110, Factor: 256},
		{Select: 0b111, Factor: 1024},
	}
}

// StepsPerMM is the number of steps that move the table 1mm.
func (c *MachineConfig) StepsPerMM() uint32 {
	if c.Geometry.UMPerRotation == 0 {
		return 0
	}
	return c.Geometry.StepsPerRotation * 1000 / c.Geometry.UMPerRotation
}

// Validate checks the configuration for values the firmware cannot run with.
func (c *MachineConfig) Validate() error {
	switch {
	case c.StepsPerMM() == 0:
		return &FieldError{Field: "Geometry"}
	case c.Feed.Rapid == 0:
		return &FieldError{Field: "Feed.Rapid"}
	case c.Feed.Adjust == 0 || c.Feed.Adjust > c.Feed.Rapid:
		return &FieldError{Field: "Feed.Adjust"}
	case c.Feed.Precision < c.Feed.Adjust || c.Feed.Precision > c.Feed.Rapid:
		return &FieldError{Field: "Feed.Precision"}
	case c.EncoderPolarity != 1 && c.EncoderPolarity != -1:
		return &FieldError{Field: "EncoderPolarity"}
	case c.EndstopTicks == 0:
		return &FieldError{Field: "EndstopTicks"}
	case c.ClockHz == 0:
		return &FieldError{Field: "ClockHz"}
	}
	if _, err := c.DivisorTable(); err != nil {
		return &FieldError{Field: "Divisors"}
	}
	return nil
}

// EngineConfig derives the timing engine constants.
func (c *MachineConfig) EngineConfig() core.EngineConfig {
	return core.EngineConfig{
		StepsPerMM:    c.StepsPerMM(),
		PulseWidthUS:  c.PulseWidthUS,
		EndstopTicks:  c.EndstopTicks,
		AllowBackAway: c.AllowBackAway,
	}
}

// DivisorTable derives the step timer's divisor table from the clock.
func (c *MachineConfig) DivisorTable() (core.DivisorTable, error) {
	options := make([]core.Divisor, len(c.Divisors))
	for i, d := range c.Divisors {
		options[i] = core.DivisorFor(c.ClockHz, d.Select, d.Factor)
	}
	return core.NewDivisorTable(options...)
}

// CaptureConfig derives the input capture constants.
func (c *MachineConfig) CaptureConfig() core.CaptureConfig {
	return core.CaptureConfig{
		SettleUS: c.ButtonSettleUS,
		Polarity: c.EncoderPolarity,
	}
}

// ControlConfig derives the control loop feed rates.
func (c *MachineConfig) ControlConfig() control.Config {
	return control.Config{
		PrecisionUMs: c.Feed.Precision,
		RapidUMs:     c.Feed.Rapid,
		AdjustUMs:    c.Feed.Adjust,

		DirectionCWHigh: c.DirectionCWHigh,
		EnableActiveLow: c.EnableActiveLow,
	}
}
