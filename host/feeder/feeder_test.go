package feeder

import (
	"net"
	"sync"
	"testing"
	"time"

	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
	"powerfeed/link"
)

type fakeController struct {
	mu     sync.Mutex
	status control.Status
	halts  int
	clears int
	err    error
	log    func(string)
}

func (c *fakeController) Status() control.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) SetFeed(dir core.Direction, rate uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.log != nil {
		c.log("set feed")
	}
	if c.err != nil {
		return c.err
	}
	c.status.Mode = control.ModePrecision
	c.status.Direction = dir
	c.status.RateUMs = rate
	c.status.PrecisionUMs = rate
	return nil
}

func (c *fakeController) Jog(dir core.Direction, rapid bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Direction = dir
	if rapid {
		c.status.Mode = control.ModeRapid
	} else {
		c.status.Mode = control.ModePrecision
	}
	return nil
}

func (c *fakeController) Halt() {
	c.mu.Lock()
	c.halts++
	c.status.Mode = control.ModeStop
	c.mu.Unlock()
}

func (c *fakeController) ClearStop() {
	c.mu.Lock()
	c.clears++
	c.mu.Unlock()
}

type planner struct {
	table core.DivisorTable
}

func (p planner) Plan(rate uint32) (core.Plan, error) {
	return core.PlanFeed(core.EngineConfig{StepsPerMM: 6400, PulseWidthUS: 4}, p.table, rate)
}

// startDevice runs a link on one end of a pipe and returns a client
// connected to the other end.
func startDevice(t *testing.T, ctl *fakeController) *Client {
	t.Helper()
	table, err := core.NewDivisorTable(
		core.DivisorFor(16000000, 0b011, 32),
		core.DivisorFor(16000000, 0b100, 64),
		core.DivisorFor(16000000, 0b101, 128),
		core.DivisorFor(16000000, 0b110, 256),
		core.DivisorFor(16000000, 0b111, 1024),
	)
	if err != nil {
		t.Fatal(err)
	}

	hostEnd, devEnd := net.Pipe()
	dev := link.New(devEnd, ctl, planner{table: table})
	ctl.log = dev.LogWriter()
	go func() {
		defer devEnd.Close()
		buf := make([]byte, 64)
		for {
			n, err := devEnd.Read(buf)
			if err != nil {
				return
			}
			dev.Receive(buf[:n])
		}
	}()

	c := NewClient(hostEnd)
	c.Timeout = 2 * time.Second
	t.Cleanup(func() { c.Close() })
	if err := c.Identify(); err != nil {
		t.Fatalf("Identify: %v", err)
	}
	return c
}

func TestIdentifyDownloadsDictionary(t *testing.T) {
	c := startDevice(t, &fakeController{})

	d := c.Dictionary()
	for _, name := range []string{"identify_response", "identify", "get_status", "set_feed", "jog", "stop", "clear_stop", "plan_feed", "get_events", "status", "plan", "result", "log", "event"} {
		if _, ok := d.ID(name); !ok {
			t.Errorf("dictionary has no %s", name)
		}
	}
	if id, _ := d.ID("identify"); id != identifyID {
		t.Errorf("identify id = %d", id)
	}
	m, _ := d.Lookup(identifyResponseID)
	if m.Format != "offset=%u data=%*s" {
		t.Errorf("identify_response format = %q", m.Format)
	}
	if len(c.RawDictionary()) <= identifyChunk {
		t.Errorf("dictionary only %d bytes, expected several chunks", len(c.RawDictionary()))
	}
}

func TestStatus(t *testing.T) {
	ctl := &fakeController{status: control.Status{
		Mode:         control.ModeEndstop,
		Direction:    core.DirectionCCW,
		RateUMs:      7000,
		PrecisionUMs: 250,
		Stop:         core.StopEndstop,
		RateError:    true,
	}}
	c := startDevice(t, ctl)

	s, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s != ctl.status {
		t.Errorf("Status() = %+v, want %+v", s, ctl.status)
	}
}

func TestSetFeedAndLog(t *testing.T) {
	ctl := &fakeController{}
	c := startDevice(t, ctl)

	logs := make(chan string, 4)
	c.SetLogFunc(func(s string) { logs <- s })

	if err := c.SetFeed(core.DirectionCW, 1500); err != nil {
		t.Fatal(err)
	}
	s, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if s.RateUMs != 1500 || s.Direction != core.DirectionCW {
		t.Errorf("after SetFeed: %+v", s)
	}

	select {
	case msg := <-logs:
		if msg != "set feed" {
			t.Errorf("log = %q", msg)
		}
	case <-time.After(time.Second):
		t.Error("device log line never arrived")
	}
}

func TestSetFeedError(t *testing.T) {
	ctl := &fakeController{err: errcode.RateTooFast}
	c := startDevice(t, ctl)

	err := c.SetFeed(core.DirectionCW, 30000)
	if errcode.Of(err) != errcode.RateTooFast {
		t.Errorf("SetFeed error = %v, want rate_too_fast", err)
	}
}

func TestBadDirectionReported(t *testing.T) {
	c := startDevice(t, &fakeController{})

	err := c.Jog(core.Direction(7), false)
	if errcode.Of(err) != errcode.InvalidParams {
		t.Errorf("Jog error = %v, want invalid_params", err)
	}
}

func TestStopAndClear(t *testing.T) {
	ctl := &fakeController{}
	c := startDevice(t, ctl)

	if err := c.Jog(core.DirectionCCW, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearStop(); err != nil {
		t.Fatal(err)
	}
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.halts != 1 || ctl.clears != 1 {
		t.Errorf("halts=%d clears=%d", ctl.halts, ctl.clears)
	}
	if ctl.status.Mode != control.ModeStop {
		t.Errorf("mode = %v", ctl.status.Mode)
	}
}

func TestPlanFeed(t *testing.T) {
	c := startDevice(t, &fakeController{})

	p, err := c.PlanFeed(50)
	if err != nil {
		t.Fatal(err)
	}
	if p.Err() != nil {
		t.Fatalf("plan error: %v", p.Err())
	}
	if p.DelayUS != 3121 || p.Divisor != 256 || p.Count != 195 || p.ActualUS != 3120 {
		t.Errorf("PlanFeed(50) = %+v", p)
	}

	p, err = c.PlanFeed(26042)
	if err != nil {
		t.Fatal(err)
	}
	if p.Code != errcode.RateTooFast {
		t.Errorf("PlanFeed(26042) code = %q", p.Code)
	}

	p, err = c.PlanFeed(9)
	if err != nil {
		t.Fatal(err)
	}
	if p.Code != errcode.RateTooSlow {
		t.Errorf("PlanFeed(9) code = %q", p.Code)
	}
}

func TestEvents(t *testing.T) {
	c := startDevice(t, &fakeController{})

	core.ClearEvents()
	core.RecordEvent(core.EvtReconfigure, 32, 76)
	core.RecordEvent(core.EvtEndstopStop, uint32(core.DirectionCW), 0)

	events, err := c.Events()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != core.EvtReconfigure || events[0].Value1 != 32 || events[0].Value2 != 76 {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Kind != core.EvtEndstopStop || events[1].Seq != events[0].Seq+1 {
		t.Errorf("event 1 = %+v", events[1])
	}
}

func TestCommandsNeedDictionary(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer devEnd.Close()
	c := NewClient(hostEnd)
	defer c.Close()

	if err := c.Stop(); err == nil {
		t.Error("Stop without dictionary succeeded")
	}
}
