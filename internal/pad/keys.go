package pad

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"remotepad/internal/keymap"
	"remotepad/internal/protocol"
)

const (
	esc   = 0x1b
	ctrlQ = 0x11

	// longest escape sequence held while waiting for its final byte
	maxSeq = 16
)

// Action is what one key press on the terminal asks for.
type Action struct {
	Command protocol.Command
	Quit    bool
}

// Parser turns raw terminal bytes into actions.
//
// Plain arrows move the mouse by Step, shifted arrows by BigStep and arrows
// with other modifiers press the arrow key itself. Alt+l, Alt+r and Alt+m
// click. Ctrl+Q quits. Everything else is sent as a key press.
type Parser struct {
	Step    int8
	BigStep int8
}

// NewParser returns a parser moving step units per arrow press.
func NewParser(step int) Parser {
	return Parser{Step: clampStep(step), BigStep: clampStep(step * 4)}
}

func clampStep(n int) int8 {
	switch {
	case n < 1:
		return 1
	case n > 127:
		return 127
	}
	return int8(n)
}

// Parse consumes as many complete key presses from b as it can. The second
// result is the number of bytes used; the rest starts an unfinished sequence.
func (p Parser) Parse(b []byte) ([]Action, int) {
	var out []Action
	i := 0
	for i < len(b) {
		a, n := p.next(b[i:])
		if n == 0 {
			break
		}
		i += n
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, i
}

func press(keycode, modifier uint8) *Action {
	return &Action{Command: protocol.KeyPress{Keycode: keycode, Modifier: modifier}}
}

func click(button string) *Action {
	return &Action{Command: protocol.MouseClick{Button: button}}
}

func (p Parser) next(b []byte) (*Action, int) {
	c := b[0]
	switch {
	case c == esc:
		return p.escape(b)
	case c == ctrlQ:
		return &Action{Quit: true}, 1
	case c == '\r' || c == '\n':
		return press(keymap.KeyEnter, 0), 1
	case c == 0x7f || c == 0x08:
		return press(keymap.KeyBackspace, 0), 1
	case c == '\t':
		return press(keymap.KeyTab, 0), 1
	case c >= 1 && c <= 26:
		s, _ := keymap.Lookup(rune('a' + c - 1))
		return press(s.Keycode, keymap.ModLeftCtrl), 1
	case c < 0x20:
		return nil, 1
	}

	if !utf8.FullRune(b) {
		return nil, 0
	}
	r, n := utf8.DecodeRune(b)
	if s, ok := keymap.Lookup(r); ok {
		return press(s.Keycode, s.Modifier), n
	}
	if r == utf8.RuneError {
		return nil, n
	}
	return &Action{Command: protocol.Text{Text: string(r)}}, n
}

func (p Parser) escape(b []byte) (*Action, int) {
	if len(b) == 1 {
		return press(keymap.KeyEscape, 0), 1
	}
	switch b[1] {
	case '[':
		return p.csi(b)
	case 'O':
		if len(b) < 3 {
			return nil, 0
		}
		return p.final(b[2], nil, 0), 3
	case esc:
		return press(keymap.KeyEscape, 0), 1
	case 'l':
		return click("left"), 2
	case 'r':
		return click("right"), 2
	case 'm':
		return click("middle"), 2
	}
	if s, ok := keymap.Lookup(rune(b[1])); ok && b[1] < utf8.RuneSelf {
		return press(s.Keycode, s.Modifier|keymap.ModLeftAlt), 2
	}
	return press(keymap.KeyEscape, 0), 1
}

// csi handles ESC [ params final.
func (p Parser) csi(b []byte) (*Action, int) {
	j := 2
	for j < len(b) && (b[j] >= '0' && b[j] <= '9' || b[j] == ';') {
		j++
	}
	if j >= len(b) {
		if len(b) >= maxSeq {
			return nil, len(b)
		}
		return nil, 0
	}
	if b[j] < 0x40 || b[j] > 0x7e {
		return nil, j + 1
	}

	params := strings.Split(string(b[2:j]), ";")
	var mod uint8
	if len(params) >= 2 {
		mod = xtermModifier(params[1])
	}
	return p.final(b[j], params, mod), j + 1
}

// xtermModifier decodes the "1;<m>" modifier parameter.
func xtermModifier(s string) uint8 {
	m, err := strconv.Atoi(s)
	if err != nil || m < 2 {
		return 0
	}
	bits := m - 1
	var mod uint8
	if bits&1 != 0 {
		mod |= keymap.ModLeftShift
	}
	if bits&2 != 0 {
		mod |= keymap.ModLeftAlt
	}
	if bits&4 != 0 {
		mod |= keymap.ModLeftCtrl
	}
	if bits&8 != 0 {
		mod |= keymap.ModLeftGUI
	}
	return mod
}

var tildeKeys = map[string]uint8{
	"3":  keymap.KeyDelete,
	"15": keymap.KeyF1 + 4,
	"17": keymap.KeyF1 + 5,
	"18": keymap.KeyF1 + 6,
	"19": keymap.KeyF1 + 7,
	"20": keymap.KeyF1 + 8,
	"21": keymap.KeyF1 + 9,
	"23": keymap.KeyF1 + 10,
	"24": keymap.KeyF12,
}

func (p Parser) final(c byte, params []string, mod uint8) *Action {
	switch c {
	case 'A', 'B', 'C', 'D':
		return p.arrow(c, mod)
	case 'P', 'Q', 'R', 'S':
		return press(keymap.KeyF1+(c-'P'), mod)
	case '~':
		if len(params) > 0 {
			if kc, ok := tildeKeys[params[0]]; ok {
				return press(kc, mod)
			}
		}
	}
	return nil
}

func (p Parser) arrow(c byte, mod uint8) *Action {
	var dx, dy int8
	var usage uint8
	switch c {
	case 'A':
		dy, usage = 1, keymap.KeyUp
	case 'B':
		dy, usage = -1, keymap.KeyDown
	case 'C':
		dx, usage = 1, keymap.KeyRight
	case 'D':
		dx, usage = -1, keymap.KeyLeft
	}

	switch mod {
	case 0:
		return &Action{Command: protocol.MouseMove{DeltaX: dx * p.Step, DeltaY: dy * p.Step}}
	case keymap.ModLeftShift:
		return &Action{Command: protocol.MouseMove{DeltaX: dx * p.BigStep, DeltaY: dy * p.BigStep}}
	}
	return press(usage, mod)
}
