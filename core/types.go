package core

// Direction is a direction of table travel.
type Direction uint8

const (
	DirectionCW Direction = iota
	DirectionCCW
	DirectionNone
)

func (d Direction) String() string {
	switch d {
	case DirectionCW:
		return "cw"
	case DirectionCCW:
		return "ccw"
	default:
		return "none"
	}
}

// Opposite returns the reverse direction. DirectionNone has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionCW:
		return DirectionCCW
	case DirectionCCW:
		return DirectionCW
	default:
		return DirectionNone
	}
}

// StopReason is why the step timer halted on its own.
type StopReason uint8

const (
	StopNone      StopReason = iota // Not stopped automatically
	StopEndstop                     // End-of-travel sensor reached
	StopEmergency                   // Emergency stop pressed
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopEndstop:
		return "endstop"
	case StopEmergency:
		return "emergency_stop"
	default:
		return "unknown"
	}
}

// Buttons is a set of control buttons.
type Buttons uint8

const (
	ButtonFastLeft Buttons = 1 << iota
	ButtonSlowLeft
	ButtonSlowRight
	ButtonFastRight
	ButtonStop
	ButtonRotary

	ButtonsNone Buttons = 0
)

var buttonNames = [...]string{"fast_left", "slow_left", "slow_right", "fast_right", "stop", "rotary"}

// Has reports whether every button in x is in the set.
func (b Buttons) Has(x Buttons) bool {
	return x != 0 && b&x == x
}

func (b Buttons) String() string {
	if b == 0 {
		return "none"
	}
	s := ""
	for i, name := range buttonNames {
		if b&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	return s
}
