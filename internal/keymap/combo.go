package keymap

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var modifierNames = map[string]uint8{
	"CTRL":    ModLeftCtrl,
	"CONTROL": ModLeftCtrl,
	"SHIFT":   ModLeftShift,
	"ALT":     ModLeftAlt,
	"OPTION":  ModLeftAlt,
	"OPT":     ModLeftAlt,
	"CMD":     ModLeftGUI,
	"COMMAND": ModLeftGUI,
	"GUI":     ModLeftGUI,
	"WIN":     ModLeftGUI,
	"SUPER":   ModLeftGUI,
	"META":    ModLeftGUI,
}

var keyNames = map[string]uint8{
	"ENTER":     KeyEnter,
	"RETURN":    KeyEnter,
	"ESC":       KeyEscape,
	"ESCAPE":    KeyEscape,
	"BACKSPACE": KeyBackspace,
	"TAB":       KeyTab,
	"SPACE":     KeySpace,
	"DELETE":    KeyDelete,
	"DEL":       KeyDelete,
	"RIGHT":     KeyRight,
	"LEFT":      KeyLeft,
	"DOWN":      KeyDown,
	"UP":        KeyUp,
}

// ParseCombo parses a key combination such as "Ctrl+Shift+A", "Enter", "F5"
// or "Cmd+Space". Letters are case-insensitive and never imply shift; other
// single characters carry whatever modifier Lookup gives them.
func ParseCombo(s string) (Stroke, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Stroke{}, fmt.Errorf("empty key combination")
	}

	var parts []string
	switch {
	case s == "+":
		parts = []string{"+"}
	case strings.HasSuffix(s, "++"):
		parts = append(strings.Split(strings.TrimSuffix(s, "++"), "+"), "+")
	default:
		parts = strings.Split(s, "+")
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}

	var mod uint8
	for _, p := range parts[:len(parts)-1] {
		if p == "" {
			continue
		}
		bit, ok := modifierNames[strings.ToUpper(p)]
		if !ok {
			return Stroke{}, fmt.Errorf("unknown modifier %q in %q", p, s)
		}
		mod |= bit
	}

	key := parts[len(parts)-1]
	st, err := parseKey(key)
	if err != nil {
		return Stroke{}, fmt.Errorf("%w in %q", err, s)
	}
	st.Modifier |= mod
	return st, nil
}

func parseKey(key string) (Stroke, error) {
	if key == "" {
		return Stroke{}, fmt.Errorf("missing key")
	}
	upper := strings.ToUpper(key)
	if code, ok := keyNames[upper]; ok {
		return Stroke{Keycode: code}, nil
	}
	if len(upper) > 1 && upper[0] == 'F' {
		if n, err := strconv.Atoi(upper[1:]); err == nil && n >= 1 && n <= 12 {
			return Stroke{Keycode: KeyF1 + uint8(n-1)}, nil
		}
	}
	if utf8.RuneCountInString(key) == 1 {
		r, _ := utf8.DecodeRuneInString(key)
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if st, ok := Lookup(r); ok {
			return st, nil
		}
	}
	return Stroke{}, fmt.Errorf("unknown key %q", key)
}
