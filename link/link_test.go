package link

import (
	"bytes"
	"strings"
	"testing"

	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
	"powerfeed/protocol"
)

type fakeController struct {
	status control.Status
	feeds  []uint32
	jogs   []bool
	halts  int
	clears int
	err    error
}

func (c *fakeController) Status() control.Status { return c.status }

func (c *fakeController) SetFeed(dir core.Direction, rate uint32) error {
	c.feeds = append(c.feeds, rate)
	c.status.Direction = dir
	return c.err
}

func (c *fakeController) Jog(dir core.Direction, rapid bool) error {
	c.jogs = append(c.jogs, rapid)
	c.status.Direction = dir
	return c.err
}

func (c *fakeController) Halt()      { c.halts++ }
func (c *fakeController) ClearStop() { c.clears++ }

type planner struct {
	table core.DivisorTable
}

func (p planner) Plan(rate uint32) (core.Plan, error) {
	return core.PlanFeed(core.EngineConfig{StepsPerMM: 6400, PulseWidthUS: 4}, p.table, rate)
}

type response struct {
	name string
	args []byte
}

type rig struct {
	out  bytes.Buffer
	ctl  *fakeController
	link *Link
	seq  uint8
}

func newRig(t *testing.T) *rig {
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
	r := &rig{ctl: &fakeController{}, seq: protocol.MessageDest}
	r.link = New(&r.out, r.ctl, planner{table: table})
	return r
}

// call sends one command and returns the responses, acks excluded.
func (r *rig) call(t *testing.T, name string, args []byte) []response {
	id, ok := r.link.Registry().ID(name)
	if !ok {
		t.Fatalf("no command %q", name)
	}
	payload := protocol.AppendVLQUint(nil, uint32(id))
	payload = append(payload, args...)
	r.link.Receive(protocol.AppendBlock(nil, r.seq, payload))
	r.seq = protocol.NextSeq(r.seq)

	var out []response
	var dec protocol.Decoder
	dec.Feed(r.out.Bytes(), func(f protocol.Frame) {
		if len(f.Payload) == 0 {
			return
		}
		p := f.Payload
		rid, err := protocol.ReadVLQUint(&p)
		if err != nil {
			t.Fatalf("bad response: %v", err)
		}
		c, _ := r.link.Registry().Lookup(uint16(rid))
		out = append(out, response{name: c.Name, args: append([]byte(nil), p...)})
	})
	r.out.Reset()
	return out
}

func readResult(t *testing.T, resp response) (string, string) {
	if resp.name != MsgResult {
		t.Fatalf("response %q, want result", resp.name)
	}
	args := resp.args
	cmd, _ := protocol.ReadVLQString(&args)
	code, _ := protocol.ReadVLQString(&args)
	return cmd, code
}

func uints(t *testing.T, args []byte, n int) []uint32 {
	var vals []uint32
	for i := 0; i < n; i++ {
		v, err := protocol.ReadVLQUint(&args)
		if err != nil {
			t.Fatalf("arg %d: %v", i, err)
		}
		vals = append(vals, v)
	}
	return vals
}

func TestBootstrapIDs(t *testing.T) {
	r := newRig(t)
	if id, _ := r.link.Registry().ID(MsgIdentifyResponse); id != 0 {
		t.Errorf("identify_response id = %d", id)
	}
	if id, _ := r.link.Registry().ID(MsgIdentify); id != 1 {
		t.Errorf("identify id = %d", id)
	}
}

func TestIdentify(t *testing.T) {
	r := newRig(t)

	var dict []byte
	for {
		args := protocol.AppendVLQUint(nil, uint32(len(dict)))
		args = protocol.AppendVLQUint(args, 40)
		resps := r.call(t, MsgIdentify, args)
		if len(resps) != 1 || resps[0].name != MsgIdentifyResponse {
			t.Fatalf("responses = %+v", resps)
		}
		p := resps[0].args
		offset, _ := protocol.ReadVLQUint(&p)
		chunk, err := protocol.ReadVLQBytes(&p)
		if err != nil {
			t.Fatal(err)
		}
		if offset != uint32(len(dict)) {
			t.Fatalf("offset = %d", offset)
		}
		if len(chunk) == 0 {
			break
		}
		dict = append(dict, chunk...)
	}

	if !bytes.Equal(dict, r.link.Registry().Dictionary()) {
		t.Errorf("downloaded dictionary differs:\n%s", dict)
	}
	if !strings.Contains(string(dict), "set_feed dir=%c rate=%u") {
		t.Errorf("dictionary lacks set_feed:\n%s", dict)
	}
}

func TestGetStatus(t *testing.T) {
	r := newRig(t)
	r.ctl.status = control.Status{
		Mode:         control.ModeEndstop,
		Direction:    core.DirectionCCW,
		RateUMs:      1000,
		PrecisionUMs: 1200,
		Stop:         core.StopEndstop,
	}

	resps := r.call(t, MsgGetStatus, nil)
	if len(resps) != 1 || resps[0].name != MsgStatus {
		t.Fatalf("responses = %+v", resps)
	}
	got := uints(t, resps[0].args, 6)
	want := []uint32{uint32(control.ModeEndstop), uint32(core.DirectionCCW), 1000, 1200, uint32(core.StopEndstop), 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status arg %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSetFeed(t *testing.T) {
	r := newRig(t)

	args := protocol.AppendVLQUint(nil, uint32(core.DirectionCW))
	args = protocol.AppendVLQUint(args, 1500)
	resps := r.call(t, MsgSetFeed, args)
	if len(resps) != 1 {
		t.Fatalf("responses = %+v", resps)
	}
	if cmd, code := readResult(t, resps[0]); cmd != MsgSetFeed || code != "ok" {
		t.Errorf("result = %s %s", cmd, code)
	}
	if len(r.ctl.feeds) != 1 || r.ctl.feeds[0] != 1500 || r.ctl.status.Direction != core.DirectionCW {
		t.Errorf("controller = %+v", r.ctl)
	}

	r.ctl.err = errcode.RateTooFast
	args = protocol.AppendVLQUint(nil, uint32(core.DirectionCW))
	args = protocol.AppendVLQUint(args, 90000)
	resps = r.call(t, MsgSetFeed, args)
	if _, code := readResult(t, resps[0]); code != "rate_too_fast" {
		t.Errorf("code = %s", code)
	}
}

func TestBadDirection(t *testing.T) {
	r := newRig(t)

	args := protocol.AppendVLQUint(nil, 7)
	args = protocol.AppendVLQUint(args, 1)
	resps := r.call(t, MsgJog, args)
	if len(resps) != 1 {
		t.Fatalf("responses = %+v", resps)
	}
	if cmd, code := readResult(t, resps[0]); cmd != MsgJog || code != "invalid_params" {
		t.Errorf("result = %s %s", cmd, code)
	}
	if len(r.ctl.jogs) != 0 {
		t.Error("jog ran with a bad direction")
	}
}

func TestJogStopClear(t *testing.T) {
	r := newRig(t)

	args := protocol.AppendVLQUint(nil, uint32(core.DirectionCCW))
	args = protocol.AppendVLQUint(args, 1)
	r.call(t, MsgJog, args)
	if len(r.ctl.jogs) != 1 || !r.ctl.jogs[0] {
		t.Errorf("jogs = %v", r.ctl.jogs)
	}

	if cmd, code := readResult(t, r.call(t, MsgStop, nil)[0]); cmd != MsgStop || code != "ok" {
		t.Errorf("stop result = %s %s", cmd, code)
	}
	r.call(t, MsgClearStop, nil)
	if r.ctl.halts != 1 || r.ctl.clears != 1 {
		t.Errorf("halts=%d clears=%d", r.ctl.halts, r.ctl.clears)
	}
}

func TestPlanFeed(t *testing.T) {
	r := newRig(t)

	resps := r.call(t, MsgPlanFeed, protocol.AppendVLQUint(nil, 50))
	if len(resps) != 1 || resps[0].name != MsgPlan {
		t.Fatalf("responses = %+v", resps)
	}
	p := resps[0].args
	rate, _ := protocol.ReadVLQUint(&p)
	delay, _ := protocol.ReadVLQInt(&p)
	divisor, _ := protocol.ReadVLQUint(&p)
	count, _ := protocol.ReadVLQUint(&p)
	actual, _ := protocol.ReadVLQInt(&p)
	code, _ := protocol.ReadVLQString(&p)
	if rate != 50 || delay != 3121 || divisor != 256 || count != 195 || actual != 3120 || code != "ok" {
		t.Errorf("plan = %d %d %d %d %d %s", rate, delay, divisor, count, actual, code)
	}

	resps = r.call(t, MsgPlanFeed, protocol.AppendVLQUint(nil, 1))
	p = resps[0].args
	for i := 0; i < 5; i++ {
		protocol.ReadVLQUint(&p)
	}
	if code, _ := protocol.ReadVLQString(&p); code != "rate_too_slow" {
		t.Errorf("code = %s", code)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := newRig(t)

	r.link.Receive(protocol.AppendBlock(nil, protocol.MessageDest, protocol.AppendVLQUint(nil, 200)))
	var names []string
	var dec protocol.Decoder
	dec.Feed(r.out.Bytes(), func(f protocol.Frame) {
		if len(f.Payload) == 0 {
			return
		}
		p := f.Payload
		id, _ := protocol.ReadVLQUint(&p)
		c, _ := r.link.Registry().Lookup(uint16(id))
		cmd, _ := protocol.ReadVLQString(&p)
		code, _ := protocol.ReadVLQString(&p)
		names = append(names, c.Name+" "+cmd+" "+code)
	})
	if len(names) != 1 || names[0] != "result unknown unknown_command" {
		t.Errorf("responses = %q", names)
	}
}

func TestLogWriter(t *testing.T) {
	r := newRig(t)
	w := r.link.LogWriter()

	w("[INF] mode: precision")
	w(strings.Repeat("x", 200))

	var msgs []string
	var dec protocol.Decoder
	dec.Feed(r.out.Bytes(), func(f protocol.Frame) {
		p := f.Payload
		id, _ := protocol.ReadVLQUint(&p)
		if c, _ := r.link.Registry().Lookup(uint16(id)); c.Name != MsgLog {
			t.Errorf("message %q", c.Name)
		}
		s, _ := protocol.ReadVLQString(&p)
		msgs = append(msgs, s)
	})
	if len(msgs) != 2 || msgs[0] != "[INF] mode: precision" {
		t.Fatalf("msgs = %q", msgs)
	}
	if len(msgs[1]) != protocol.PayloadMax-2 {
		t.Errorf("long message is %d bytes", len(msgs[1]))
	}
}

func TestGetEvents(t *testing.T) {
	core.ClearEvents()
	defer core.ClearEvents()
	core.RecordEvent(core.EvtEndstopStop, 1, 0)
	core.RecordEvent(core.EvtEmergencyStop, 0, 0)

	r := newRig(t)
	resps := r.call(t, MsgGetEvents, nil)
	if len(resps) != 3 {
		t.Fatalf("responses = %+v", resps)
	}
	for i, kind := range []uint32{core.EvtEndstopStop, core.EvtEmergencyStop} {
		if resps[i].name != MsgEvent {
			t.Fatalf("response %d = %q", i, resps[i].name)
		}
		if got := uints(t, resps[i].args, 4); got[0] != kind || got[1] != uint32(i+1) {
			t.Errorf("event %d = %v", i, got)
		}
	}
	if cmd, code := readResult(t, resps[2]); cmd != MsgGetEvents || code != "ok" {
		t.Errorf("result = %s %s", cmd, code)
	}
}
