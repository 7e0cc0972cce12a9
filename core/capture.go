package core

// ButtonInput binds a button bit to the sensor that reports it.
type ButtonInput struct {
	Button Buttons
	Sensor Sensor
}

// CaptureConfig holds the input capture constants.
type CaptureConfig struct {
	SettleUS uint32 // busy wait before sampling the button group
	Polarity int8   // +1 or -1, flips the encoder's sense of rotation
}

// CaptureHardware is the hardware sampled by a Capture.
type CaptureHardware struct {
	Buttons       []ButtonInput
	RotaryPrimary InputPin // direction line
	RotaryGate    InputPin // valid-edge line
	Delay         Delay
	Interrupts    ChangeInterrupts
}

// Capture accumulates button presses and encoder detents from interrupt
// handlers until the foreground loop drains them.
type Capture struct {
	cfg CaptureConfig
	hw  CaptureHardware

	// Shared with interrupt handlers
	buttons Buttons
	rotary  int
}

// NewCapture creates an input capture layer.
func NewCapture(cfg CaptureConfig, hw CaptureHardware) *Capture {
	if hw.Delay == nil {
		hw.Delay = func(uint32) {}
	}
	if cfg.Polarity == 0 {
		cfg.Polarity = 1
	}
	return &Capture{cfg: cfg, hw: hw}
}

// Init enables the button group and rotary interrupts.
func (c *Capture) Init() {
	LogDebug("attaching control interrupts")
	if c.hw.Interrupts == nil {
		return
	}
	c.hw.Interrupts.EnableButtons()
	c.hw.Interrupts.EnableRotary()
}

// HandleButtons runs on any edge in the button group. It waits for the
// contacts to settle and then samples every button, so one interrupt may
// register several buttons.
func (c *Capture) HandleButtons() {
	c.hw.Delay(c.cfg.SettleUS)

	var pressed Buttons
	for _, b := range c.hw.Buttons {
		if b.Sensor.Active() {
			pressed |= b.Button
		}
	}
	c.buttons |= pressed
}

// HandleRotary runs on edges of the encoder's primary line. Only edges
// seen while the gate line is low count, giving one count per detent.
func (c *Capture) HandleRotary() {
	if c.hw.RotaryGate == nil || c.hw.RotaryPrimary == nil {
		return
	}
	if c.hw.RotaryGate.Get() {
		return
	}
	if c.hw.RotaryPrimary.Get() {
		c.rotary += int(c.cfg.Polarity)
	} else {
		c.rotary -= int(c.cfg.Polarity)
	}
}

// DrainButtons returns the buttons pressed since the last drain and
// clears the set.
func (c *Capture) DrainButtons() Buttons {
	state := disableInterrupts()
	b := c.buttons
	c.buttons = ButtonsNone
	restoreInterrupts(state)
	return b
}

// DrainRotary returns the net encoder detents since the last drain and
// resets the counter.
func (c *Capture) DrainRotary() int {
	state := disableInterrupts()
	d := c.rotary
	c.rotary = 0
	restoreInterrupts(state)
	return d
}
