package core

import "powerfeed/errcode"

// MaxTicks is the largest value of the 8-bit compare register.
const MaxTicks = 255

// Divisor is one clock prescaler setting of the step timer.
type Divisor struct {
	Select uint8  // clock-select register bits for this prescaler
	Factor uint16 // clock denominator
	TickUS uint32 // microseconds per timer count
}

// DivisorFor derives the tick period of a prescaler from the system clock.
func DivisorFor(clockHz uint32, sel uint8, factor uint16) Divisor {
	d := Divisor{Select: sel, Factor: factor}
	if factor != 0 && clockHz/uint32(factor) != 0 {
		d.TickUS = 1000000 / (clockHz / uint32(factor))
	}
	return d
}

// MaxUS is the longest interval this divisor can time.
func (d Divisor) MaxUS() int64 {
	return int64(d.TickUS) * MaxTicks
}

// DivisorTable holds the available prescalers ordered fastest to slowest.
// Tick periods are strictly increasing and each option starts within the
// range of the one before it; NewDivisorTable enforces both.
type DivisorTable struct {
	options []Divisor
}

// NewDivisorTable validates and wraps the prescaler options.
func NewDivisorTable(options ...Divisor) (DivisorTable, error) {
	if len(options) == 0 {
		return DivisorTable{}, errcode.BadDivisorTable
	}
	for i, d := range options {
		if d.TickUS == 0 {
			return DivisorTable{}, errcode.BadDivisorTable
		}
		if i > 0 && d.TickUS <= options[i-1].TickUS {
			return DivisorTable{}, errcode.BadDivisorTable
		}
		// Every interval up to the slowest option must be reachable
		// with a count of at least one.
		if i > 0 && int64(d.TickUS) > options[i-1].MaxUS() {
			return DivisorTable{}, errcode.BadDivisorTable
		}
	}
	t := DivisorTable{options: make([]Divisor, len(options))}
	copy(t.options, options)
	return t, nil
}

// Len returns the number of options.
func (t DivisorTable) Len() int { return len(t.options) }

// At returns option i.
func (t DivisorTable) At(i int) Divisor { return t.options[i] }

// MinUS is the shortest interval the timer can produce.
func (t DivisorTable) MinUS() int64 {
	if len(t.options) == 0 {
		return 0
	}
	return int64(t.options[0].TickUS)
}

// MaxUS is the longest interval the timer can produce.
func (t DivisorTable) MaxUS() int64 {
	if len(t.options) == 0 {
		return 0
	}
	return t.options[len(t.options)-1].MaxUS()
}

// Select returns the index of the first (finest) option whose range reaches
// delayUS. The scan order is the tie break: finer resolution always wins.
func (t DivisorTable) Select(delayUS int64) (int, bool) {
	if delayUS < t.MinUS() {
		return -1, false
	}
	for i, d := range t.options {
		if delayUS <= d.MaxUS() {
			return i, true
		}
	}
	return -1, false
}
