package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"powerfeed/config"
	"powerfeed/control"
	"powerfeed/core"
	"powerfeed/errcode"
	"powerfeed/host/feeder"
)

// device is the part of feeder.Client the shell drives.
type device interface {
	Status() (control.Status, error)
	SetFeed(dir core.Direction, rateUMs uint32) error
	Jog(dir core.Direction, rapid bool) error
	Stop() error
	ClearStop() error
	PlanFeed(rateUMs uint32) (feeder.Plan, error)
	Events() ([]core.EventRecord, error)
	Dictionary() *feeder.Dictionary
}

var errQuit = errors.New("quit")

// shell runs one command line at a time. Without a device only offline
// planning against the machine config is available.
type shell struct {
	out io.Writer
	dev device
	cfg *config.MachineConfig
}

func (s *shell) run(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "parse command line")
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		s.help()
		return nil
	case "plan":
		return s.plan(args)
	case "config":
		return s.showConfig()
	}

	if s.dev == nil {
		return errors.Errorf("%s needs a connected controller (use -port)", cmd)
	}

	switch cmd {
	case "status":
		st, err := s.dev.Status()
		if err != nil {
			return err
		}
		s.printStatus(st)
	case "feed":
		if len(args) != 2 {
			return errors.New("usage: feed <cw|ccw> <rate um/s>")
		}
		dir, err := parseDirection(args[0])
		if err != nil {
			return err
		}
		rate, err := parseRate(args[1])
		if err != nil {
			return err
		}
		return s.dev.SetFeed(dir, rate)
	case "jog":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: jog <cw|ccw> [rapid]")
		}
		dir, err := parseDirection(args[0])
		if err != nil {
			return err
		}
		rapid := len(args) == 2 && args[1] == "rapid"
		if len(args) == 2 && !rapid {
			return errors.Errorf("unknown jog option %q", args[1])
		}
		return s.dev.Jog(dir, rapid)
	case "stop":
		return s.dev.Stop()
	case "clear":
		return s.dev.ClearStop()
	case "events":
		events, err := s.dev.Events()
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Fprintf(s.out, "%5d %-16s v1=%d v2=%d\n", e.Seq, core.EventName(e.Kind), e.Value1, e.Value2)
		}
	case "dict":
		d := s.dev.Dictionary()
		if d == nil {
			return errors.New("dictionary not loaded")
		}
		for _, m := range d.Messages() {
			fmt.Fprintf(s.out, "[%2d] %s %s\n", m.ID, m.Name, m.Format)
		}
	default:
		return errors.Errorf("unknown command %q (type 'help')", cmd)
	}
	return nil
}

// plan asks the controller when connected, otherwise computes the plan
// from the machine config.
func (s *shell) plan(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: plan <rate um/s>")
	}
	rate, err := parseRate(args[0])
	if err != nil {
		return err
	}

	if s.dev != nil {
		p, err := s.dev.PlanFeed(rate)
		if err != nil {
			return err
		}
		if p.Code != errcode.OK {
			fmt.Fprintf(s.out, "rate %d um/s: %s (step delay %d us)\n", p.RateUMs, p.Code, p.DelayUS)
			return nil
		}
		fmt.Fprintf(s.out, "rate %d um/s: delay %d us, divisor /%d, count %d, actual %d us\n",
			p.RateUMs, p.DelayUS, p.Divisor, p.Count, p.ActualUS)
		return nil
	}

	table, err := s.cfg.DivisorTable()
	if err != nil {
		return err
	}
	p, perr := core.PlanFeed(s.cfg.EngineConfig(), table, rate)
	if perr != nil {
		fmt.Fprintf(s.out, "rate %d um/s: %s (step delay %d us)\n", rate, errcode.Of(perr), p.DelayUS)
		return nil
	}
	fmt.Fprintf(s.out, "rate %d um/s: delay %d us, divisor /%d, count %d, actual %d us\n",
		rate, p.DelayUS, p.Divisor.Factor, p.Count, p.ActualUS())
	return nil
}

func (s *shell) showConfig() error {
	c := s.cfg
	fmt.Fprintf(s.out, "steps/mm %d, pulse %d us, endstop %d ticks, back-away %t\n",
		c.StepsPerMM(), c.PulseWidthUS, c.EndstopTicks, c.AllowBackAway)
	fmt.Fprintf(s.out, "precision %d um/s, rapid %d um/s, adjust %d um/s\n",
		c.Feed.Precision, c.Feed.Rapid, c.Feed.Adjust)
	return nil
}

func (s *shell) printStatus(st control.Status) {
	fmt.Fprintf(s.out, "mode %s, direction %s, rate %d um/s, precision %d um/s\n",
		st.Mode, st.Direction, st.RateUMs, st.PrecisionUMs)
	if st.Stop != core.StopNone {
		fmt.Fprintf(s.out, "stopped by %s\n", st.Stop)
	}
	if st.RateError {
		fmt.Fprintln(s.out, "last requested rate was unreachable")
	}
}

func (s *shell) help() {
	fmt.Fprint(s.out, `
Available commands:
  status                 - Show controller state
  feed <cw|ccw> <rate>   - Move at rate um/s
  jog <cw|ccw> [rapid]   - Move at the precision or rapid rate
  stop                   - Stop the table
  clear                  - Acknowledge an endstop or emergency stop
  plan <rate>            - Show the timer setting for a rate
  events                 - Dump the controller's event ring
  dict                   - Print the message dictionary
  config                 - Show the machine config used offline
  quit/exit/q            - Exit the program

`)
}

func parseDirection(s string) (core.Direction, error) {
	switch strings.ToLower(s) {
	case "cw", "right":
		return core.DirectionCW, nil
	case "ccw", "left":
		return core.DirectionCCW, nil
	}
	return core.DirectionNone, errors.Errorf("bad direction %q (cw or ccw)", s)
}

func parseRate(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad rate %q", s)
	}
	return uint32(v), nil
}
