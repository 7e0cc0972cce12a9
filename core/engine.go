package core

// Step-pulse timing engine
// Turns a feed rate into a timer divisor and compare count, and decides on
// every compare match whether to pulse, hold, or stop for a safety input.

import (
	"powerfeed/errcode"
)

// EngineConfig holds the build-time constants the engine consumes.
type EngineConfig struct {
	StepsPerMM    uint32 // steps to move the table 1mm
	PulseWidthUS  uint32 // minimum step pulse width
	EndstopTicks  uint16 // consecutive asserted samples before an endstop stop
	AllowBackAway bool   // permit moving away from a triggered endstop
}

// EngineHardware is the hardware the engine drives.
type EngineHardware struct {
	Timer         StepTimer
	Step          OutputPin
	Endstop       Sensor
	EmergencyStop Sensor
	Delay         Delay
}

// Plan is the timer setting that realises a feed rate.
type Plan struct {
	RateUMs uint32  // requested rate in um/s
	DelayUS int64   // wanted time between step pulses
	Index   int     // index of the selected divisor
	Divisor Divisor // selected divisor
	Count   uint8   // compare count
}

// ActualUS is the interval the programmed timer really produces.
func (p Plan) ActualUS() int64 {
	return int64(p.Count) * int64(p.Divisor.TickUS)
}

// VarianceUS is the truncation error of the plan (never positive).
func (p Plan) VarianceUS() int64 {
	return p.ActualUS() - p.DelayUS
}

// PlanFeed computes the divisor and compare count for rateUMs without
// touching hardware. On failure the returned plan still carries DelayUS.
func PlanFeed(cfg EngineConfig, table DivisorTable, rateUMs uint32) (Plan, error) {
	p := Plan{RateUMs: rateUMs, Index: -1}
	if rateUMs == 0 || cfg.StepsPerMM == 0 {
		return p, errcode.InvalidParams
	}

	p.DelayUS = 1000000000/(int64(rateUMs)*int64(cfg.StepsPerMM)) - int64(cfg.PulseWidthUS)

	if p.DelayUS < table.MinUS() {
		return p, errcode.RateTooFast
	}

	idx, ok := table.Select(p.DelayUS)
	if !ok {
		return p, errcode.RateTooSlow
	}

	p.Index = idx
	p.Divisor = table.At(idx)
	// Truncates; the error is bounded by one tick and only logged.
	p.Count = uint8(p.DelayUS / int64(p.Divisor.TickUS))
	if p.Count == 0 {
		return p, errcode.BadDivisorTable
	}
	return p, nil
}

// Engine owns the step timer and the stop state machine.
//
// The engine is either running or stopped. Tick is the single transition
// function and runs in the timer interrupt; everything else runs in the
// foreground and touches shared fields only inside a critical section.
type Engine struct {
	cfg   EngineConfig
	table DivisorTable
	hw    EngineHardware

	// Owned by the tick handler
	stopReason    StopReason
	stopDirection Direction
	endstopCount  uint16
	running       bool
	divisor       Divisor
	count         uint8

	// Owned by the foreground loop, read by the tick handler
	desired Direction
}

// NewEngine creates an engine. Call Init before the first Reconfigure.
func NewEngine(cfg EngineConfig, table DivisorTable, hw EngineHardware) *Engine {
	if hw.Delay == nil {
		hw.Delay = func(uint32) {}
	}
	return &Engine{
		cfg:           cfg,
		table:         table,
		hw:            hw,
		stopReason:    StopNone,
		stopDirection: DirectionNone,
		desired:       DirectionNone,
	}
}

// Init configures the timer and leaves it stopped with no stop reason.
func (e *Engine) Init() {
	state := disableInterrupts()
	e.hw.Timer.Init()
	e.running = false
	e.stopReason = StopNone
	e.stopDirection = DirectionNone
	e.endstopCount = 0
	restoreInterrupts(state)

	LogDebug("step timer initialised")
}

// Plan computes the timer setting for rateUMs.
func (e *Engine) Plan(rateUMs uint32) (Plan, error) {
	return PlanFeed(e.cfg, e.table, rateUMs)
}

// Reconfigure sets the timer up for a new feed rate in micrometers/second.
//
// A zero rate stops the timer and succeeds. A rate the timer cannot produce
// stops the timer and returns errcode.RateTooFast or errcode.RateTooSlow;
// no clamped rate is ever substituted. A successful non-zero reconfigure
// clears the stop reason.
func (e *Engine) Reconfigure(rateUMs uint32) error {
	if rateUMs == 0 {
		LogInfo("zero feed rate requested: stopping")
		e.Stop()
		return nil
	}

	p, err := e.Plan(rateUMs)
	if err != nil {
		switch err {
		case errcode.RateTooFast:
			LogValue(LevelError, "no divisor fast enough for step delay (us)", p.DelayUS)
		case errcode.RateTooSlow:
			LogValue(LevelError, "no divisor slow enough for step delay (us)", p.DelayUS)
		default:
			LogError("invalid feed configuration")
		}
		e.Stop()
		RecordEvent(EvtRateUnreachable, rateUMs, 0)
		return err
	}

	LogValue(LevelDebug, "new step delay (us)", p.DelayUS)
	LogValue(LevelInfo, "selected divisor", int64(p.Divisor.Factor))
	LogValue(LevelInfo, "selected compare value", int64(p.Count))
	LogValue(LevelInfo, "actual step delay (us)", p.ActualUS())
	LogValue(LevelInfo, "step delay variance (us)", p.VarianceUS())

	state := disableInterrupts()
	e.hw.Timer.Program(p.Divisor, p.Count)
	e.divisor = p.Divisor
	e.count = p.Count
	e.running = true
	e.stopReason = StopNone
	restoreInterrupts(state)

	RecordEvent(EvtReconfigure, uint32(p.Divisor.Factor), uint32(p.Count))
	return nil
}

// Stop halts the timer immediately. The stop reason is left untouched.
func (e *Engine) Stop() {
	state := disableInterrupts()
	e.hw.Timer.Stop()
	e.running = false
	restoreInterrupts(state)

	RecordEvent(EvtStop, 0, 0)
}

// Tick runs once per compare match and reports whether a step pulse was
// emitted. Order matters: endstop, then emergency stop, then the pulse.
func (e *Engine) Tick() bool {
	if e.hw.Endstop.Active() {
		if e.endstopCount < e.cfg.EndstopTicks {
			e.endstopCount++
		}
	} else {
		e.endstopCount = 0
		// Sensor released: nothing to back away from any more.
		e.stopDirection = DirectionNone
	}

	if e.endstopCount >= e.cfg.EndstopTicks {
		e.endstopCount = 0

		if e.stopDirection == DirectionNone {
			e.stopDirection = e.desired
			RecordEvent(EvtEndstopLatch, uint32(e.stopDirection), 0)
		}

		// Still driving into the obstruction.
		if !e.cfg.AllowBackAway || e.desired == e.stopDirection {
			e.halt(StopEndstop)
			RecordEvent(EvtEndstopStop, uint32(e.stopDirection), 0)
			return false
		}
	}

	if e.hw.EmergencyStop.Active() {
		e.halt(StopEmergency)
		RecordEvent(EvtEmergencyStop, 0, 0)
		return false
	}

	e.hw.Step.High()
	e.hw.Delay(e.cfg.PulseWidthUS)
	e.hw.Step.Low()
	return true
}

// halt stops the timer from within the tick handler.
func (e *Engine) halt(reason StopReason) {
	e.hw.Timer.Stop()
	e.running = false
	e.stopReason = reason
}

// SetDirection records the direction the foreground loop is driving in.
// It takes effect on the next tick, so set it before reconfiguring.
func (e *Engine) SetDirection(d Direction) {
	state := disableInterrupts()
	e.desired = d
	restoreInterrupts(state)
}

// Direction returns the direction last set by SetDirection.
func (e *Engine) Direction() Direction {
	state := disableInterrupts()
	d := e.desired
	restoreInterrupts(state)
	return d
}

// StopReason returns the cause of the most recent automatic stop.
func (e *Engine) StopReason() StopReason {
	state := disableInterrupts()
	r := e.stopReason
	restoreInterrupts(state)
	return r
}

// ClearStopReason acknowledges an automatic stop.
func (e *Engine) ClearStopReason() {
	state := disableInterrupts()
	e.stopReason = StopNone
	restoreInterrupts(state)
}

// StopDirection returns the direction latched when the endstop triggered,
// or DirectionNone while the sensor is released.
func (e *Engine) StopDirection() Direction {
	state := disableInterrupts()
	d := e.stopDirection
	restoreInterrupts(state)
	return d
}

// Running reports whether the step timer is ticking.
func (e *Engine) Running() bool {
	state := disableInterrupts()
	r := e.running
	restoreInterrupts(state)
	return r
}

// Programmed returns the divisor and compare count last written to the
// timer and whether it is currently running.
func (e *Engine) Programmed() (Divisor, uint8, bool) {
	state := disableInterrupts()
	d, c, r := e.divisor, e.count, e.running
	restoreInterrupts(state)
	return d, c, r
}

// Table returns the divisor table the engine plans against.
func (e *Engine) Table() DivisorTable {
	return e.table
}
