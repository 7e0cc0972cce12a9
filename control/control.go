// Package control implements the foreground loop of the power feed: it
// turns button presses and encoder detents into feed rate and direction
// changes, and turns automatic stops into operator-visible modes.
package control

import (
	"powerfeed/core"
)

// Mode is the operating mode shown to the operator.
type Mode uint8

const (
	ModePrecision Mode = iota // moving at the adjustable precision rate
	ModeRapid                 // moving at the rapid rate
	ModeStop                  // stopped
	ModeEndstop               // stopped by the end-of-travel sensor
)

func (m Mode) String() string {
	switch m {
	case ModePrecision:
		return "precision"
	case ModeRapid:
		return "rapid"
	case ModeStop:
		return "stop"
	case ModeEndstop:
		return "endstop"
	default:
		return "unknown"
	}
}

// Moving reports whether the mode drives the motor.
func (m Mode) Moving() bool {
	return m == ModePrecision || m == ModeRapid
}

// Config holds the feed rates in micrometers per second.
type Config struct {
	PrecisionUMs uint32 // default precision rate
	RapidUMs     uint32
	AdjustUMs    uint32 // precision rate change per encoder detent

	DirectionCWHigh bool // direction output level for clockwise travel
	EnableActiveLow bool // driver enable input asserts low
}

// FeedEngine is the part of the timing engine the controller drives.
// *core.Engine implements it.
type FeedEngine interface {
	Reconfigure(rateUMs uint32) error
	Stop()
	SetDirection(d core.Direction)
	StopReason() core.StopReason
	ClearStopReason()
}

// Inputs is the drained side of the input capture layer.
// *core.Capture implements it.
type Inputs interface {
	DrainButtons() core.Buttons
	DrainRotary() int
}

// Outputs are the driver control lines besides the step pulse.
type Outputs struct {
	Direction core.OutputPin
	Enable    core.OutputPin // optional
}

// Status is what the operator sees.
type Status struct {
	Mode         Mode
	Direction    core.Direction
	RateUMs      uint32          // rate of the current or last move
	PrecisionUMs uint32          // precision rate the next precision move uses
	Stop         core.StopReason // cause of the last automatic stop
	RateError    bool            // the last requested rate was unreachable
}

// StatusSink displays status changes.
type StatusSink interface {
	Show(s Status) error
}

// Controller is the foreground control loop.
type Controller struct {
	cfg     Config
	engine  FeedEngine
	inputs  Inputs
	outputs Outputs
	sink    StatusSink

	status Status
	shown  Status
	dirty  bool
}

// New creates a controller in the stopped mode.
func New(cfg Config, engine FeedEngine, inputs Inputs, outputs Outputs) *Controller {
	c := &Controller{
		cfg:     cfg,
		engine:  engine,
		inputs:  inputs,
		outputs: outputs,
		dirty:   true,
	}
	c.status = Status{
		Mode:         ModeStop,
		Direction:    core.DirectionNone,
		PrecisionUMs: cfg.PrecisionUMs,
	}
	return c
}

// SetSink installs the status display. A nil sink discards updates.
func (c *Controller) SetSink(sink StatusSink) {
	c.sink = sink
	c.dirty = true
}

// Start enables the stepper driver and shows the initial status.
func (c *Controller) Start() {
	if c.outputs.Enable != nil {
		if c.cfg.EnableActiveLow {
			c.outputs.Enable.Low()
		} else {
			c.outputs.Enable.High()
		}
	}
	c.engine.Stop()
	core.LogInfo("power feed ready")
	c.flush()
}

// Step runs one iteration of the control loop.
func (c *Controller) Step() {
	c.checkStop()

	buttons := c.inputs.DrainButtons()
	if buttons != core.ButtonsNone {
		c.handleButtons(buttons)
	}

	if detents := c.inputs.DrainRotary(); detents != 0 {
		c.AdjustRate(detents)
	}

	c.flush()
}

// checkStop turns an automatic stop into the matching mode.
func (c *Controller) checkStop() {
	reason := c.engine.StopReason()
	if reason == core.StopNone || !c.status.Mode.Moving() {
		return
	}

	c.status.Stop = reason
	if reason == core.StopEndstop {
		c.setMode(ModeEndstop)
		core.LogInfo("stopped at endstop")
	} else {
		c.setMode(ModeStop)
		core.LogInfo("emergency stop")
	}
}

func (c *Controller) handleButtons(b core.Buttons) {
	if core.LogEnabled(core.LevelDebug) {
		core.LogDebug("buttons: " + b.String())
	}

	switch {
	case b.Has(core.ButtonStop):
		c.Halt()
		return
	case b.Has(core.ButtonFastLeft):
		c.move(core.DirectionCCW, ModeRapid, c.cfg.RapidUMs)
	case b.Has(core.ButtonFastRight):
		c.move(core.DirectionCW, ModeRapid, c.cfg.RapidUMs)
	case b.Has(core.ButtonSlowLeft):
		c.move(core.DirectionCCW, ModePrecision, c.status.PrecisionUMs)
	case b.Has(core.ButtonSlowRight):
		c.move(core.DirectionCW, ModePrecision, c.status.PrecisionUMs)
	}

	if b.Has(core.ButtonRotary) {
		c.ResetRate()
	}
}

// Jog starts a move at the precision or rapid rate.
func (c *Controller) Jog(dir core.Direction, rapid bool) error {
	if dir == core.DirectionNone {
		c.Halt()
		return nil
	}
	var err error
	if rapid {
		err = c.move(dir, ModeRapid, c.cfg.RapidUMs)
	} else {
		err = c.move(dir, ModePrecision, c.status.PrecisionUMs)
	}
	c.flush()
	return err
}

// SetFeed starts a precision move at an explicit rate. On success the rate
// becomes the precision rate.
func (c *Controller) SetFeed(dir core.Direction, rateUMs uint32) error {
	if dir == core.DirectionNone || rateUMs == 0 {
		c.Halt()
		return nil
	}
	err := c.move(dir, ModePrecision, rateUMs)
	if err == nil {
		c.status.PrecisionUMs = rateUMs
	}
	c.flush()
	return err
}

// Halt stops the motor.
func (c *Controller) Halt() {
	c.engine.Stop()
	c.status.Direction = core.DirectionNone
	c.setMode(ModeStop)
	c.flush()
}

// ClearStop acknowledges an automatic stop or a rate error.
func (c *Controller) ClearStop() {
	c.engine.ClearStopReason()
	c.status.Stop = core.StopNone
	c.status.RateError = false
	if c.status.Mode == ModeEndstop {
		c.status.Mode = ModeStop
	}
	c.dirty = true
	c.flush()
}

// AdjustRate changes the precision rate by a number of encoder detents,
// clamped to [adjust step, rapid rate]. A running precision move picks up
// the new rate immediately.
func (c *Controller) AdjustRate(detents int) {
	rate := int64(c.status.PrecisionUMs) + int64(detents)*int64(c.cfg.AdjustUMs)
	if rate < int64(c.cfg.AdjustUMs) {
		rate = int64(c.cfg.AdjustUMs)
	}
	if rate > int64(c.cfg.RapidUMs) {
		rate = int64(c.cfg.RapidUMs)
	}
	c.setPrecision(uint32(rate))
}

// ResetRate restores the default precision rate.
func (c *Controller) ResetRate() {
	c.setPrecision(c.cfg.PrecisionUMs)
}

func (c *Controller) setPrecision(rate uint32) {
	if rate == c.status.PrecisionUMs {
		return
	}
	c.status.PrecisionUMs = rate
	c.dirty = true
	core.LogValue(core.LevelDebug, "precision rate (um/s)", int64(rate))

	if c.status.Mode == ModePrecision {
		c.move(c.status.Direction, ModePrecision, rate)
	}
}

// move sets the direction outputs before the engine starts ticking in the
// new direction, then reconfigures the rate.
func (c *Controller) move(dir core.Direction, mode Mode, rate uint32) error {
	c.setDirection(dir)
	c.engine.SetDirection(dir)

	err := c.engine.Reconfigure(rate)
	c.status.RateUMs = rate
	c.dirty = true
	if err != nil {
		c.status.RateError = true
		c.status.Direction = core.DirectionNone
		c.setMode(ModeStop)
		return err
	}

	c.status.RateError = false
	c.status.Stop = core.StopNone
	c.status.Direction = dir
	c.setMode(mode)
	return nil
}

func (c *Controller) setDirection(dir core.Direction) {
	if c.outputs.Direction == nil || dir == core.DirectionNone {
		return
	}
	if (dir == core.DirectionCW) == c.cfg.DirectionCWHigh {
		c.outputs.Direction.High()
	} else {
		c.outputs.Direction.Low()
	}
}

func (c *Controller) setMode(m Mode) {
	if c.status.Mode == m {
		return
	}
	c.status.Mode = m
	c.dirty = true
	core.LogInfo("mode: " + m.String())
}

// Status returns the current status.
func (c *Controller) Status() Status {
	return c.status
}

// flush pushes the status to the sink when it changed.
func (c *Controller) flush() {
	if c.sink == nil {
		return
	}
	if !c.dirty && c.status == c.shown {
		return
	}
	if err := c.sink.Show(c.status); err != nil {
		core.LogError("status display failed")
		return
	}
	c.shown = c.status
	c.dirty = false
}
