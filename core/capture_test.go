package core

import "testing"

type captureRig struct {
	capture *Capture
	pins    map[Buttons]*fakePin
	primary *fakePin
	gate    *fakePin
	delay   *fakeDelay
	irq     *fakeInterrupts
}

// newCaptureRig wires every button to an active-low pin, all released.
func newCaptureRig(polarity int8) *captureRig {
	r := &captureRig{
		pins:    make(map[Buttons]*fakePin),
		primary: &fakePin{},
		gate:    &fakePin{level: true},
		delay:   &fakeDelay{},
		irq:     &fakeInterrupts{},
	}
	var inputs []ButtonInput
	for _, b := range []Buttons{ButtonFastLeft, ButtonSlowLeft, ButtonSlowRight, ButtonFastRight, ButtonStop, ButtonRotary} {
		pin := &fakePin{level: true}
		r.pins[b] = pin
		inputs = append(inputs, ButtonInput{Button: b, Sensor: Sensor{Pin: pin, ActiveLow: true}})
	}
	r.capture = NewCapture(CaptureConfig{SettleUS: 1000, Polarity: polarity}, CaptureHardware{
		Buttons:       inputs,
		RotaryPrimary: r.primary,
		RotaryGate:    r.gate,
		Delay:         r.delay.wait,
		Interrupts:    r.irq,
	})
	return r
}

// detent simulates one primary-line edge with the gate low.
func (r *captureRig) detent(primary bool) {
	r.gate.level = false
	r.primary.level = primary
	r.capture.HandleRotary()
	r.gate.level = true
}

func TestCaptureInit(t *testing.T) {
	r := newCaptureRig(1)
	r.capture.Init()
	if !r.irq.buttons || !r.irq.rotary {
		t.Errorf("interrupts enabled: buttons=%v rotary=%v", r.irq.buttons, r.irq.rotary)
	}
}

func TestDrainButtonsTwice(t *testing.T) {
	r := newCaptureRig(1)

	r.pins[ButtonSlowRight].level = false
	r.capture.HandleButtons()
	r.pins[ButtonSlowRight].level = true

	if got := r.capture.DrainButtons(); got != ButtonSlowRight {
		t.Errorf("first drain = %v, want slow_right", got)
	}
	if got := r.capture.DrainButtons(); got != ButtonsNone {
		t.Errorf("second drain = %v, want none", got)
	}
}

func TestButtonsAccumulate(t *testing.T) {
	r := newCaptureRig(1)

	r.pins[ButtonFastLeft].level = false
	r.capture.HandleButtons()
	r.pins[ButtonFastLeft].level = true

	r.pins[ButtonStop].level = false
	r.capture.HandleButtons()
	r.pins[ButtonStop].level = true

	got := r.capture.DrainButtons()
	if got != ButtonFastLeft|ButtonStop {
		t.Errorf("drain = %v, want fast_left|stop", got)
	}
}

func TestButtonsSampledTogether(t *testing.T) {
	r := newCaptureRig(1)

	r.pins[ButtonSlowLeft].level = false
	r.pins[ButtonRotary].level = false
	r.capture.HandleButtons()

	if got := r.capture.DrainButtons(); got != ButtonSlowLeft|ButtonRotary {
		t.Errorf("drain = %v", got)
	}
}

func TestButtonsSettleBeforeSampling(t *testing.T) {
	r := newCaptureRig(1)

	// Contact bounces open during the settle wait.
	pin := r.pins[ButtonFastRight]
	pin.level = false
	r.capture.hw.Delay = func(us uint32) {
		r.delay.wait(us)
		pin.level = true
	}
	r.capture.HandleButtons()

	if len(r.delay.calls) != 1 || r.delay.calls[0] != 1000 {
		t.Fatalf("settle delay calls = %v", r.delay.calls)
	}
	if got := r.capture.DrainButtons(); got != ButtonsNone {
		t.Errorf("drain = %v, want none", got)
	}
}

func TestDrainRotary(t *testing.T) {
	r := newCaptureRig(1)

	for i := 0; i < 5; i++ {
		r.detent(true)
	}
	if got := r.capture.DrainRotary(); got != 5 {
		t.Errorf("drain = %d, want 5", got)
	}
	if got := r.capture.DrainRotary(); got != 0 {
		t.Errorf("second drain = %d, want 0", got)
	}

	r.detent(true)
	r.detent(false)
	r.detent(false)
	r.detent(false)
	if got := r.capture.DrainRotary(); got != -2 {
		t.Errorf("mixed drain = %d, want -2", got)
	}
}

func TestRotaryGate(t *testing.T) {
	r := newCaptureRig(1)

	r.gate.level = true
	r.primary.level = true
	for i := 0; i < 4; i++ {
		r.capture.HandleRotary()
	}
	if got := r.capture.DrainRotary(); got != 0 {
		t.Errorf("edges with the gate high counted: %d", got)
	}
}

func TestRotaryPolarity(t *testing.T) {
	r := newCaptureRig(-1)

	r.detent(true)
	r.detent(true)
	r.detent(false)
	if got := r.capture.DrainRotary(); got != -1 {
		t.Errorf("drain = %d, want -1", got)
	}
}

func TestCaptureCriticalSections(t *testing.T) {
	criticalDepth, criticalMax = 0, 0

	r := newCaptureRig(1)
	r.detent(true)
	r.capture.HandleButtons()
	r.capture.DrainButtons()
	r.capture.DrainRotary()

	if criticalDepth != 0 || criticalMax != 1 {
		t.Errorf("depth=%d max=%d", criticalDepth, criticalMax)
	}
}
