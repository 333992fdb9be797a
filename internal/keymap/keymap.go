// Package keymap holds the HID usage tables shared by the sender and the injector.
//
// Senders turn characters into (keycode, modifier) pairs expressed as USB HID
// usages. Receivers translate those usages into platform key codes right before
// injection. Nothing else in the program deals in platform codes.
package keymap

// Modifier bits, as in the HID boot keyboard report.
const (
	ModLeftCtrl   uint8 = 0x01
	ModLeftShift  uint8 = 0x02
	ModLeftAlt    uint8 = 0x04
	ModLeftGUI    uint8 = 0x08
	ModRightCtrl  uint8 = 0x10
	ModRightShift uint8 = 0x20
	ModRightAlt   uint8 = 0x40
	ModRightGUI   uint8 = 0x80
)

// Named HID usages.
const (
	KeyEnter     uint8 = 0x28
	KeyEscape    uint8 = 0x29
	KeyBackspace uint8 = 0x2A
	KeyTab       uint8 = 0x2B
	KeySpace     uint8 = 0x2C
	KeyF1        uint8 = 0x3A
	KeyF12       uint8 = 0x45
	KeyDelete    uint8 = 0x4C
	KeyRight     uint8 = 0x4F
	KeyLeft      uint8 = 0x50
	KeyDown      uint8 = 0x51
	KeyUp        uint8 = 0x52

	KeyLeftCtrl  uint8 = 0xE0
	KeyLeftShift uint8 = 0xE1
	KeyLeftAlt   uint8 = 0xE2
	KeyLeftGUI   uint8 = 0xE3
)

// Stroke is one key press as sent on the wire.
type Stroke struct {
	Keycode  uint8
	Modifier uint8
}

var chars = map[rune]Stroke{}

func init() {
	for i, r := range "abcdefghijklmnopqrstuvwxyz" {
		code := 0x04 + uint8(i)
		chars[r] = Stroke{Keycode: code}
		chars[r-'a'+'A'] = Stroke{Keycode: code, Modifier: ModLeftShift}
	}
	// 1..9 then 0, with the US shifted row on the same usages
	for i, r := range "1234567890" {
		chars[r] = Stroke{Keycode: 0x1E + uint8(i)}
	}
	for i, r := range "!@#$%^&*()" {
		chars[r] = Stroke{Keycode: 0x1E + uint8(i), Modifier: ModLeftShift}
	}

	chars[' '] = Stroke{Keycode: KeySpace}
	chars['\n'] = Stroke{Keycode: KeyEnter}
	chars['\t'] = Stroke{Keycode: KeyTab}

	punct := []struct {
		plain, shifted rune
		code           uint8
	}{
		{'-', '_', 0x2D},
		{'=', '+', 0x2E},
		{'[', '{', 0x2F},
		{']', '}', 0x30},
		{'\\', '|', 0x31},
		{';', ':', 0x33},
		{'\'', '"', 0x34},
		{'`', '~', 0x35},
		{',', '<', 0x36},
		{'.', '>', 0x37},
		{'/', '?', 0x38},
	}
	for _, p := range punct {
		chars[p.plain] = Stroke{Keycode: p.code}
		chars[p.shifted] = Stroke{Keycode: p.code, Modifier: ModLeftShift}
	}
}

// Lookup maps a character to the stroke that types it on a US layout.
// Characters outside the table report false and must be skipped by the caller.
func Lookup(r rune) (Stroke, bool) {
	s, ok := chars[r]
	return s, ok
}

// ModifierUsages expands a modifier mask into key usages in press order:
// ctrl, shift, alt, gui. Right-hand bits fold onto the left-hand keys.
func ModifierUsages(mask uint8) []uint8 {
	folded := mask&0x0F | mask>>4
	var out []uint8
	if folded&ModLeftCtrl != 0 {
		out = append(out, KeyLeftCtrl)
	}
	if folded&ModLeftShift != 0 {
		out = append(out, KeyLeftShift)
	}
	if folded&ModLeftAlt != 0 {
		out = append(out, KeyLeftAlt)
	}
	if folded&ModLeftGUI != 0 {
		out = append(out, KeyLeftGUI)
	}
	return out
}
