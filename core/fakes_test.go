package core

// fakeTimer records what the engine writes to the step timer.
type fakeTimer struct {
	inits    int
	stops    int
	programs []programCall
	running  bool
}

type programCall struct {
	divisor Divisor
	count   uint8
}

func (t *fakeTimer) Init() {
	t.inits++
	t.running = false
}

func (t *fakeTimer) Program(d Divisor, count uint8) {
	t.programs = append(t.programs, programCall{divisor: d, count: count})
	t.running = true
}

func (t *fakeTimer) Stop() {
	t.stops++
	t.running = false
}

type fakePin struct {
	level bool
}

func (p *fakePin) Get() bool { return p.level }

type fakeOutput struct {
	level  bool
	pulses int
}

func (o *fakeOutput) High() {
	o.level = true
	o.pulses++
}

func (o *fakeOutput) Low() { o.level = false }

type fakeDelay struct {
	calls []uint32
}

func (d *fakeDelay) wait(us uint32) { d.calls = append(d.calls, us) }

type fakeInterrupts struct {
	buttons bool
	rotary  bool
}

func (f *fakeInterrupts) EnableButtons() { f.buttons = true }
func (f *fakeInterrupts) EnableRotary()  { f.rotary = true }

const testClockHz = 16000000

// testTable is the timer 2 prescaler table of a 16MHz ATmega328P.
func testTable() DivisorTable {
	t, err := NewDivisorTable(
		DivisorFor(testClockHz, 0b011, 32),
		DivisorFor(testClockHz, 0b100, 64),
		DivisorFor(testClockHz, 0b101, 128),
		DivisorFor(testClockHz, 0b110, 256),
		DivisorFor(testClockHz, 0b111, 1024),
	)
	if err != nil {
		panic(err)
	}
	return t
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		StepsPerMM:    6400,
		PulseWidthUS:  4,
		EndstopTicks:  100,
		AllowBackAway: true,
	}
}

type engineRig struct {
	engine  *Engine
	timer   *fakeTimer
	step    *fakeOutput
	endstop *fakePin
	estop   *fakePin
	delay   *fakeDelay
}

// newEngineRig builds an initialised engine with both safety inputs released.
// The endstop is active high and the emergency stop active low.
func newEngineRig(cfg EngineConfig) *engineRig {
	r := &engineRig{
		timer:   &fakeTimer{},
		step:    &fakeOutput{},
		endstop: &fakePin{level: false},
		estop:   &fakePin{level: true},
		delay:   &fakeDelay{},
	}
	r.engine = NewEngine(cfg, testTable(), EngineHardware{
		Timer:         r.timer,
		Step:          r.step,
		Endstop:       Sensor{Pin: r.endstop},
		EmergencyStop: Sensor{Pin: r.estop, ActiveLow: true},
		Delay:         r.delay.wait,
	})
	r.engine.Init()
	return r
}
