// Package link is the device side of the serial command link. It exposes
// the controller to a host: status queries, moves, stops and offline feed
// planning.
package link

import (
	"io"

	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
	"powerfeed/protocol"
)

// Message names
const (
	MsgIdentifyResponse = "identify_response"
	MsgIdentify         = "identify"
	MsgGetStatus        = "get_status"
	MsgSetFeed          = "set_feed"
	MsgJog              = "jog"
	MsgStop             = "stop"
	MsgClearStop        = "clear_stop"
	MsgPlanFeed         = "plan_feed"
	MsgGetEvents        = "get_events"

	MsgStatus = "status"
	MsgPlan   = "plan"
	MsgResult = "result"
	MsgLog    = "log"
	MsgEvent  = "event"
)

// Controller is the part of the control loop the link drives.
// *control.Controller implements it.
type Controller interface {
	Status() control.Status
	SetFeed(dir core.Direction, rateUMs uint32) error
	Jog(dir core.Direction, rapid bool) error
	Halt()
	ClearStop()
}

// Planner computes timer settings for a feed rate. *core.Engine implements it.
type Planner interface {
	Plan(rateUMs uint32) (core.Plan, error)
}

// Link binds the command registry to a transport.
type Link struct {
	reg       *Registry
	transport *protocol.Transport
	ctl       Controller
	planner   Planner

	sending bool
	args    [protocol.PayloadMax]byte
	logArgs [protocol.PayloadMax]byte
}

// New creates a link writing to out.
func New(out io.Writer, ctl Controller, planner Planner) *Link {
	l := &Link{
		reg:     NewRegistry(),
		ctl:     ctl,
		planner: planner,
	}
	l.transport = protocol.NewTransport(out, l.reg.Dispatch)
	l.transport.SetErrorCallback(l.commandFailed)
	l.transport.SetResetCallback(func() {
		core.LogDebug("host reconnected")
	})
	l.registerCommands()
	return l
}

// registerCommands registers every message. identify_response and identify
// come first so a host can bootstrap with fixed ids 0 and 1.
func (l *Link) registerCommands() {
	l.reg.RegisterResponse(MsgIdentifyResponse, "offset=%u data=%*s")
	l.reg.Register(MsgIdentify, "offset=%u count=%c", l.handleIdentify)

	l.reg.Register(MsgGetStatus, "", l.handleGetStatus)
	l.reg.Register(MsgSetFeed, "dir=%c rate=%u", l.handleSetFeed)
	l.reg.Register(MsgJog, "dir=%c rapid=%c", l.handleJog)
	l.reg.Register(MsgStop, "", l.handleStop)
	l.reg.Register(MsgClearStop, "", l.handleClearStop)
	l.reg.Register(MsgPlanFeed, "rate=%u", l.handlePlanFeed)
	l.reg.Register(MsgGetEvents, "", l.handleGetEvents)

	l.reg.RegisterResponse(MsgStatus, "mode=%c dir=%c rate=%u precision=%u stop=%c rate_error=%c")
	l.reg.RegisterResponse(MsgPlan, "rate=%u delay=%i divisor=%hu count=%c actual=%i code=%s")
	l.reg.RegisterResponse(MsgResult, "cmd=%s code=%s")
	l.reg.RegisterResponse(MsgLog, "msg=%s")
	l.reg.RegisterResponse(MsgEvent, "kind=%c seq=%hu v1=%u v2=%u")
}

// Registry returns the command registry.
func (l *Link) Registry() *Registry {
	return l.reg
}

// Receive processes bytes from the host.
func (l *Link) Receive(data []byte) {
	l.transport.Receive(data)
}

// LogWriter returns a core.DebugWriter that forwards log lines to the host.
func (l *Link) LogWriter() core.DebugWriter {
	return func(msg string) {
		// A log line raised while sending would corrupt the block in progress
		if l.sending {
			return
		}
		// id, length prefix and message must fit one block
		max := protocol.PayloadMax - 2
		if len(msg) > max {
			msg = msg[:max]
		}
		args := protocol.AppendVLQString(l.logArgs[:0], msg)
		l.send(MsgLog, args)
	}
}

func (l *Link) send(name string, args []byte) error {
	id, ok := l.reg.ID(name)
	if !ok {
		return errcode.UnknownCommand
	}
	l.sending = true
	err := l.transport.SendCommand(id, args)
	l.sending = false
	return err
}

func (l *Link) sendResult(cmd string, err error) error {
	args := protocol.AppendVLQString(l.args[:0], cmd)
	args = protocol.AppendVLQString(args, string(errcode.Of(err)))
	return l.send(MsgResult, args)
}

// commandFailed reports a command that could not be decoded or run.
func (l *Link) commandFailed(id uint16, err error) {
	name := "unknown"
	if c, ok := l.reg.Lookup(id); ok {
		name = c.Name
	}
	l.sendResult(name, err)
}

func (l *Link) handleIdentify(args *[]byte) error {
	offset, err := protocol.ReadVLQUint(args)
	if err != nil {
		return err
	}
	count, err := protocol.ReadVLQUint(args)
	if err != nil {
		return err
	}
	if count > 40 {
		count = 40
	}

	out := protocol.AppendVLQUint(l.args[:0], offset)
	chunk := l.reg.Chunk(offset, uint8(count))
	out = protocol.AppendVLQUint(out, uint32(len(chunk)))
	out = append(out, chunk...)
	return l.send(MsgIdentifyResponse, out)
}

func (l *Link) handleGetStatus(args *[]byte) error {
	return l.sendStatus()
}

func (l *Link) sendStatus() error {
	s := l.ctl.Status()
	out := protocol.AppendVLQUint(l.args[:0], uint32(s.Mode))
	out = protocol.AppendVLQUint(out, uint32(s.Direction))
	out = protocol.AppendVLQUint(out, s.RateUMs)
	out = protocol.AppendVLQUint(out, s.PrecisionUMs)
	out = protocol.AppendVLQUint(out, uint32(s.Stop))
	out = protocol.AppendVLQUint(out, boolArg(s.RateError))
	return l.send(MsgStatus, out)
}

func (l *Link) handleSetFeed(args *[]byte) error {
	dir, err := readDirection(args)
	if err != nil {
		return err
	}
	rate, err := protocol.ReadVLQUint(args)
	if err != nil {
		return err
	}
	return l.sendResult(MsgSetFeed, l.ctl.SetFeed(dir, rate))
}

func (l *Link) handleJog(args *[]byte) error {
	dir, err := readDirection(args)
	if err != nil {
		return err
	}
	rapid, err := protocol.ReadVLQUint(args)
	if err != nil {
		return err
	}
	return l.sendResult(MsgJog, l.ctl.Jog(dir, rapid != 0))
}

func (l *Link) handleStop(args *[]byte) error {
	l.ctl.Halt()
	return l.sendResult(MsgStop, nil)
}

func (l *Link) handleClearStop(args *[]byte) error {
	l.ctl.ClearStop()
	return l.sendResult(MsgClearStop, nil)
}

func (l *Link) handlePlanFeed(args *[]byte) error {
	rate, err := protocol.ReadVLQUint(args)
	if err != nil {
		return err
	}
	p, perr := l.planner.Plan(rate)

	out := protocol.AppendVLQUint(l.args[:0], rate)
	out = protocol.AppendVLQInt(out, int32(clamp32(p.DelayUS)))
	out = protocol.AppendVLQUint(out, uint32(p.Divisor.Factor))
	out = protocol.AppendVLQUint(out, uint32(p.Count))
	out = protocol.AppendVLQInt(out, int32(clamp32(p.ActualUS())))
	out = protocol.AppendVLQString(out, string(errcode.Of(perr)))
	return l.send(MsgPlan, out)
}

func (l *Link) handleGetEvents(args *[]byte) error {
	for _, evt := range core.Events() {
		out := protocol.AppendVLQUint(l.args[:0], uint32(evt.Kind))
		out = protocol.AppendVLQUint(out, uint32(evt.Seq))
		out = protocol.AppendVLQUint(out, evt.Value1)
		out = protocol.AppendVLQUint(out, evt.Value2)
		if err := l.send(MsgEvent, out); err != nil {
			return err
		}
	}
	return l.sendResult(MsgGetEvents, nil)
}

func readDirection(args *[]byte) (core.Direction, error) {
	v, err := protocol.ReadVLQUint(args)
	if err != nil {
		return core.DirectionNone, err
	}
	if v > uint32(core.DirectionNone) {
		return core.DirectionNone, errcode.InvalidParams
	}
	return core.Direction(v), nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func clamp32(v int64) int64 {
	const max, min = 1<<31 - 1, -1 << 31
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
