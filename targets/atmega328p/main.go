//go:build atmega328p

// Firmware for the lead screw power feed on an Arduino Uno.
package main

import (
	"machine"

	"powerfeed/config"
	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/display"
	"powerfeed/link"
)

var uart = machine.Serial

func main() {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		halt()
	}

	uart.Configure(machine.UARTConfig{BaudRate: cfg.Link.Baud})
	core.SetDebugWriter(func(msg string) {
		uart.Write([]byte(msg))
		uart.Write([]byte("\r\n"))
	})
	core.LogInfo("powerfeed starting")

	table, err := cfg.DivisorTable()
	if err != nil {
		core.LogError("bad divisor table")
		halt()
	}

	pins := cfg.Pins
	pullup := cfg.ButtonsActiveLow

	stepPin := configureOutput(pins.Step)
	dirPin := configureOutput(pins.Direction)
	enablePin := configureOutput(pins.Enable)
	if cfg.EnableActiveLow {
		enablePin.High() // disabled until the controller starts
	}

	buttonSensor := func(n uint8) core.Sensor {
		return core.Sensor{Pin: configureInput(n, pullup), ActiveLow: cfg.ButtonsActiveLow}
	}
	stop := buttonSensor(pins.Stop)

	engine := core.NewEngine(cfg.EngineConfig(), table, core.EngineHardware{
		Timer: newStepTimer(),
		Step:  stepPin,
		Endstop: core.Sensor{
			Pin:       configureInput(pins.Endstop, cfg.EndstopActiveLow),
			ActiveLow: cfg.EndstopActiveLow,
		},
		EmergencyStop: stop,
		Delay:         busyDelay,
	})
	stepEngine = engine

	// The LCD driver sleeps during set up, so it has to run before the
	// step timer silences Timer0
	var panel *display.Panel
	if cfg.Display.Enabled {
		panel = startPanel(cfg.Display)
	}
	engine.Init()

	capture := core.NewCapture(cfg.CaptureConfig(), core.CaptureHardware{
		Buttons: []core.ButtonInput{
			{Button: core.ButtonFastLeft, Sensor: buttonSensor(pins.FastLeft)},
			{Button: core.ButtonSlowLeft, Sensor: buttonSensor(pins.SlowLeft)},
			{Button: core.ButtonSlowRight, Sensor: buttonSensor(pins.SlowRight)},
			{Button: core.ButtonFastRight, Sensor: buttonSensor(pins.FastRight)},
			{Button: core.ButtonStop, Sensor: stop},
			{Button: core.ButtonRotary, Sensor: buttonSensor(pins.RotarySwitch)},
		},
		RotaryPrimary: configureInput(pins.RotaryA, true),
		RotaryGate:    configureInput(pins.RotaryB, true),
		Delay:         busyDelay,
		Interrupts:    pinChange{},
	})
	inputCapture = capture
	capture.Init()

	ctl := control.New(cfg.ControlConfig(), engine, capture, control.Outputs{
		Direction: dirPin,
		Enable:    enablePin,
	})

	if panel != nil {
		ctl.SetSink(panel)
	}

	var l *link.Link
	if cfg.Link.Enabled {
		l = link.New(uart, ctl, engine)
		core.SetDebugWriter(l.LogWriter())
	}

	ctl.Start()

	var rx [32]byte
	for {
		if l != nil {
			n := 0
			for n < len(rx) && uart.Buffered() > 0 {
				b, err := uart.ReadByte()
				if err != nil {
					break
				}
				rx[n] = b
				n++
			}
			if n > 0 {
				l.Receive(rx[:n])
			}
		}
		ctl.Step()
	}
}

func startPanel(dc config.DisplayConfig) *display.Panel {
	err := machine.I2C0.Configure(machine.I2CConfig{Frequency: 100 * machine.KHz})
	if err != nil {
		core.LogError("i2c configure failed")
		return nil
	}
	lcd, err := display.NewLCD(machine.I2C0, display.Config{
		Address: dc.Address,
		Width:   dc.Width,
		Height:  dc.Height,
	})
	if err != nil {
		core.LogError("lcd configure failed")
		return nil
	}
	return display.NewPanel(lcd, dc.Width)
}

// halt parks the firmware after a fatal start up error.
func halt() {
	for {
	}
}
