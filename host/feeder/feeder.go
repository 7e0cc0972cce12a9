// Package feeder is the host side client of a power feed controller. It
// downloads the controller's message dictionary and wraps each command in
// a typed call.
package feeder

import (
	"io"
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
	"powerfeed/host/serial"
	"powerfeed/protocol"
)

var lg = logger.NewPackageLogger("feeder", logger.InfoLevel)

// Bootstrap ids, fixed so identify works before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1

	identifyChunk = 40
	maxChunks     = 1000
)

// DefaultTimeout bounds the wait for a response.
const DefaultTimeout = time.Second

// Plan is the controller's answer to plan_feed.
type Plan struct {
	RateUMs  uint32
	DelayUS  int32
	Divisor  uint16
	Count    uint8
	ActualUS int32
	Code     errcode.Code
}

// Err returns the plan's error code as an error, or nil.
func (p Plan) Err() error {
	if p.Code == errcode.OK {
		return nil
	}
	return p.Code
}

// Client talks to one controller.
type Client struct {
	transport *protocol.HostTransport
	dict      *Dictionary
	raw       []byte

	// Timeout bounds each wait for a response
	Timeout time.Duration

	callMutex sync.Mutex // one request/response exchange at a time
	inbox     chan *protocol.Message

	routeMutex sync.Mutex // guards logID and logFunc, read by the read loop
	logID      int
	logFunc    func(string)
}

// Dial opens the serial port and downloads the dictionary.
func Dial(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	c := NewClient(port)
	// A controller that just reset ignores the first bytes
	time.Sleep(100 * time.Millisecond)
	if err := c.Identify(); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	return c, nil
}

// NewClient starts a client on an open port. Call Identify before any
// typed command.
func NewClient(port io.ReadWriteCloser) *Client {
	c := &Client{
		transport: protocol.NewHostTransport(port),
		Timeout:   DefaultTimeout,
		inbox:     make(chan *protocol.Message, 64),
		logID:     -1,
		logFunc: func(msg string) {
			lg.Infof("device: %s", msg)
		},
	}
	c.transport.SetResponseHandler(c.route)
	return c
}

// SetLogFunc sets where device log lines go.
func (c *Client) SetLogFunc(fn func(string)) {
	c.routeMutex.Lock()
	c.logFunc = fn
	c.routeMutex.Unlock()
}

// route runs on the transport's read loop. Log lines go to the log
// function, everything else to the inbox.
func (c *Client) route(msg *protocol.Message) {
	c.routeMutex.Lock()
	logID, logFunc := c.logID, c.logFunc
	c.routeMutex.Unlock()

	if int(msg.CmdID) == logID {
		args := msg.Args
		if s, err := protocol.ReadVLQString(&args); err == nil && logFunc != nil {
			logFunc(s)
		}
		return
	}
	select {
	case c.inbox <- msg:
	default:
		lg.Errorf("response queue full, dropping message %d", msg.CmdID)
	}
}

// Identify downloads and parses the dictionary.
func (c *Client) Identify() error {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	var raw []byte
	for i := 0; i < maxChunks; i++ {
		chunk, err := c.identifyChunk(uint32(len(raw)))
		if err != nil {
			return errors.Wrapf(err, "dictionary chunk at offset %d", len(raw))
		}
		raw = append(raw, chunk...)
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict, err := ParseDictionary(raw)
	if err != nil {
		return err
	}
	lg.Debugf("dictionary: %d bytes, %d messages", len(raw), dict.Len())
	c.raw = raw
	c.dict = dict
	if id, ok := dict.ID("log"); ok {
		c.routeMutex.Lock()
		c.logID = int(id)
		c.routeMutex.Unlock()
	}
	return nil
}

func (c *Client) identifyChunk(offset uint32) ([]byte, error) {
	c.drain()
	args := protocol.AppendVLQUint(nil, offset)
	args = protocol.AppendVLQUint(args, identifyChunk)
	if err := c.transport.SendCommand(identifyID, args); err != nil {
		return nil, err
	}

	msg, err := c.waitFor(identifyResponseID)
	if err != nil {
		return nil, err
	}
	payload := msg.Args
	got, err := protocol.ReadVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, errors.Errorf("offset mismatch: asked %d, got %d", offset, got)
	}
	return protocol.ReadVLQBytes(&payload)
}

// Dictionary returns the parsed dictionary, nil before Identify.
func (c *Client) Dictionary() *Dictionary {
	return c.dict
}

// RawDictionary returns the dictionary text as downloaded.
func (c *Client) RawDictionary() []byte {
	return c.raw
}

// Status reads the controller state.
func (c *Client) Status() (control.Status, error) {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	msg, err := c.call("get_status", nil, "status")
	if err != nil {
		return control.Status{}, err
	}
	args := msg.Args
	v, err := readUints(&args, 6)
	if err != nil {
		return control.Status{}, errors.Wrap(err, "decode status")
	}
	return control.Status{
		Mode:         control.Mode(v[0]),
		Direction:    core.Direction(v[1]),
		RateUMs:      v[2],
		PrecisionUMs: v[3],
		Stop:         core.StopReason(v[4]),
		RateError:    v[5] != 0,
	}, nil
}

// SetFeed moves at rateUMs in dir.
func (c *Client) SetFeed(dir core.Direction, rateUMs uint32) error {
	args := protocol.AppendVLQUint(nil, uint32(dir))
	args = protocol.AppendVLQUint(args, rateUMs)
	return c.command("set_feed", args)
}

// Jog moves in dir at the rapid rate or the current precision rate.
func (c *Client) Jog(dir core.Direction, rapid bool) error {
	var r uint32
	if rapid {
		r = 1
	}
	args := protocol.AppendVLQUint(nil, uint32(dir))
	args = protocol.AppendVLQUint(args, r)
	return c.command("jog", args)
}

// Stop halts the table.
func (c *Client) Stop() error {
	return c.command("stop", nil)
}

// ClearStop acknowledges an endstop or emergency stop.
func (c *Client) ClearStop() error {
	return c.command("clear_stop", nil)
}

// PlanFeed asks the controller how it would time rateUMs. An unreachable
// rate is reported in Plan.Code, not as an error.
func (c *Client) PlanFeed(rateUMs uint32) (Plan, error) {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	msg, err := c.call("plan_feed", protocol.AppendVLQUint(nil, rateUMs), "plan")
	if err != nil {
		return Plan{}, err
	}
	args := msg.Args
	var p Plan
	var divisor, count uint32
	var code string
	for _, step := range []func() error{
		func() (err error) { p.RateUMs, err = protocol.ReadVLQUint(&args); return },
		func() (err error) { p.DelayUS, err = protocol.ReadVLQInt(&args); return },
		func() (err error) { divisor, err = protocol.ReadVLQUint(&args); return },
		func() (err error) { count, err = protocol.ReadVLQUint(&args); return },
		func() (err error) { p.ActualUS, err = protocol.ReadVLQInt(&args); return },
		func() (err error) { code, err = protocol.ReadVLQString(&args); return },
	} {
		if err := step(); err != nil {
			return Plan{}, errors.Wrap(err, "decode plan")
		}
	}
	p.Divisor = uint16(divisor)
	p.Count = uint8(count)
	p.Code = errcode.Code(code)
	return p, nil
}

// Events returns the controller's event ring, oldest first.
func (c *Client) Events() ([]core.EventRecord, error) {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	eventID, err := c.id("event")
	if err != nil {
		return nil, err
	}
	resultID, err := c.id("result")
	if err != nil {
		return nil, err
	}
	if err := c.send("get_events", nil); err != nil {
		return nil, err
	}

	var events []core.EventRecord
	for {
		msg, err := c.next()
		if err != nil {
			return events, err
		}
		args := msg.Args
		switch msg.CmdID {
		case eventID:
			v, err := readUints(&args, 4)
			if err != nil {
				return events, errors.Wrap(err, "decode event")
			}
			events = append(events, core.EventRecord{
				Kind:   uint8(v[0]),
				Seq:    uint16(v[1]),
				Value1: v[2],
				Value2: v[3],
			})
		case resultID:
			_, code, err := readResult(&args)
			if err != nil {
				return events, err
			}
			if code != errcode.OK {
				return events, code
			}
			return events, nil
		}
	}
}

// command sends name and waits for its result.
func (c *Client) command(name string, args []byte) error {
	c.callMutex.Lock()
	defer c.callMutex.Unlock()

	msg, err := c.call(name, args, "result")
	if err != nil {
		return err
	}
	payload := msg.Args
	cmd, code, err := readResult(&payload)
	if err != nil {
		return err
	}
	if code != errcode.OK {
		return errors.Wrapf(code, "%s (reported for %s)", name, cmd)
	}
	return nil
}

// call sends name and waits for a response named reply. A result arriving
// instead means the command failed to decode on the device.
func (c *Client) call(name string, args []byte, reply string) (*protocol.Message, error) {
	replyID, err := c.id(reply)
	if err != nil {
		return nil, err
	}
	resultID, _ := c.id("result")
	if err := c.send(name, args); err != nil {
		return nil, err
	}
	for {
		msg, err := c.next()
		if err != nil {
			return nil, errors.Wrapf(err, "waiting for %s", reply)
		}
		if msg.CmdID == replyID {
			return msg, nil
		}
		if msg.CmdID == resultID {
			payload := msg.Args
			_, code, err := readResult(&payload)
			if err != nil {
				return nil, err
			}
			return nil, errors.Wrapf(code, "%s failed", name)
		}
		lg.Debugf("ignoring message %d while waiting for %s", msg.CmdID, reply)
	}
}

func (c *Client) send(name string, args []byte) error {
	id, err := c.id(name)
	if err != nil {
		return err
	}
	c.drain()
	return errors.Wrapf(c.transport.SendCommand(id, args), "send %s", name)
}

func (c *Client) id(name string) (uint16, error) {
	if c.dict == nil {
		return 0, errors.New("dictionary not loaded")
	}
	id, ok := c.dict.ID(name)
	if !ok {
		return 0, errors.Wrapf(errcode.UnknownCommand, "%s", name)
	}
	return id, nil
}

func (c *Client) waitFor(id uint16) (*protocol.Message, error) {
	for {
		msg, err := c.next()
		if err != nil {
			return nil, err
		}
		if msg.CmdID == id {
			return msg, nil
		}
	}
}

func (c *Client) next() (*protocol.Message, error) {
	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-timer.C:
		return nil, errors.Wrapf(errcode.Timeout, "no response after %v", c.Timeout)
	}
}

// drain discards responses left over from an abandoned exchange.
func (c *Client) drain() {
	for {
		select {
		case <-c.inbox:
		default:
			return
		}
	}
}

// Close stops the transport and closes the port.
func (c *Client) Close() error {
	return c.transport.Close()
}

func readUints(args *[]byte, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := protocol.ReadVLQUint(args)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readResult(args *[]byte) (string, errcode.Code, error) {
	cmd, err := protocol.ReadVLQString(args)
	if err != nil {
		return "", "", errors.Wrap(err, "decode result")
	}
	code, err := protocol.ReadVLQString(args)
	if err != nil {
		return "", "", errors.Wrap(err, "decode result")
	}
	return cmd, errcode.Code(code), nil
}
