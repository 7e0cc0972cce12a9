// Package display renders the controller status on a 16x2 character LCD.
package display

import (
	"strconv"

	"powerfeed/control"
	"powerfeed/core"
)

// Custom character slots.
const (
	CharArrowRight = 0
	CharArrowLeft  = 1
	CharStop       = 2
)

var glyphs = [...][8]byte{
	CharArrowRight: {0x00, 0x04, 0x06, 0x1f, 0x06, 0x04, 0x00, 0x00},
	CharArrowLeft:  {0x00, 0x04, 0x0c, 0x1f, 0x0c, 0x04, 0x00, 0x00},
	CharStop:       {0x00, 0x1f, 0x1f, 0x1f, 0x1f, 0x1f, 0x00, 0x00},
}

// Config describes the LCD.
type Config struct {
	Address uint8
	Width   uint8
	Height  uint8
}

const maxWidth = 40

// Panel draws control.Status on a two line screen. Only lines that changed
// are rewritten.
type Panel struct {
	screen Screen
	width  int
	lines  [2][maxWidth]byte
	drawn  [2][maxWidth]byte
	ready  bool
}

// NewPanel creates a panel and uploads the direction glyphs.
func NewPanel(screen Screen, width uint8) *Panel {
	w := int(width)
	if w <= 0 || w > maxWidth {
		w = 16
	}
	p := &Panel{screen: screen, width: w}
	for i := range glyphs {
		screen.CreateCharacter(uint8(i), glyphs[i][:])
	}
	screen.ClearDisplay()
	return p
}

// Show implements control.StatusSink.
func (p *Panel) Show(s control.Status) error {
	p.render(s)
	for row := range p.lines {
		if p.ready && p.lines[row] == p.drawn[row] {
			continue
		}
		p.screen.SetCursor(0, uint8(row))
		p.screen.Print(p.lines[row][:p.width])
		p.drawn[row] = p.lines[row]
	}
	p.ready = true
	return nil
}

// Line returns the rendered text of a row.
func (p *Panel) Line(row int) []byte {
	return p.lines[row][:p.width]
}

func (p *Panel) render(s control.Status) {
	for row := range p.lines {
		for i := range p.lines[row] {
			p.lines[row][i] = ' '
		}
	}

	top := p.lines[0][:p.width]
	copy(top, modeLabel(s.Mode))
	top[p.width-1] = directionGlyph(s)

	bottom := p.lines[1][:p.width]
	rate := s.PrecisionUMs
	if s.Mode.Moving() || s.RateError {
		rate = s.RateUMs
	}

	// The cause is right aligned; the rate gets what is left of the line
	room := p.width
	cause := stopLabel(s)
	if cause != "" {
		if len(cause) > p.width {
			cause = cause[:p.width]
		}
		room = p.width - len(cause) - 1
	}

	var buf [24]byte
	digits := strconv.AppendUint(buf[:0], uint64(rate), 10)
	n := len(digits)
	text := append(digits, "um/s"...)
	switch {
	case len(text) <= room:
	case n <= room:
		text = text[:n] // drop the unit
	default:
		text = text[:0]
		for i := 0; i < room; i++ {
			text = append(text, '#')
		}
	}
	if room > 0 {
		copy(bottom, text)
	}

	if cause != "" {
		copy(bottom[p.width-len(cause):], cause)
	}
}

func modeLabel(m control.Mode) string {
	switch m {
	case control.ModePrecision:
		return "PRECISION"
	case control.ModeRapid:
		return "RAPID"
	case control.ModeEndstop:
		return "ENDSTOP"
	default:
		return "STOP"
	}
}

func stopLabel(s control.Status) string {
	switch {
	case s.RateError:
		return "RATE!"
	case s.Stop == core.StopEndstop:
		return "ENDSTOP"
	case s.Stop == core.StopEmergency:
		return "E-STOP"
	default:
		return ""
	}
}

func directionGlyph(s control.Status) byte {
	if !s.Mode.Moving() {
		return CharStop
	}
	switch s.Direction {
	case core.DirectionCW:
		return CharArrowRight
	case core.DirectionCCW:
		return CharArrowLeft
	default:
		return CharStop
	}
}
