package keymap

import "fmt"

// Platform selects which key code space Translate produces.
type Platform int

const (
	PlatformMac     Platform = iota // CGKeyCode
	PlatformWindows                 // virtual-key code
	PlatformNamed                   // robotgo key names
)

func (p Platform) String() string {
	switch p {
	case PlatformMac:
		return "mac"
	case PlatformWindows:
		return "windows"
	case PlatformNamed:
		return "named"
	default:
		return fmt.Sprintf("platform(%d)", int(p))
	}
}

// PlatformKey is a translated key. Code is meaningful for Mac and Windows,
// Name for the named platform.
type PlatformKey struct {
	Usage uint8
	Code  uint16
	Name  string
}

type keyRow struct {
	usage uint8
	mac   uint16
	win   uint16
	name  string
}

var rows = []keyRow{
	{0x04, 0x00, 0x41, "a"},
	{0x05, 0x0B, 0x42, "b"},
	{0x06, 0x08, 0x43, "c"},
	{0x07, 0x02, 0x44, "d"},
	{0x08, 0x0E, 0x45, "e"},
	{0x09, 0x03, 0x46, "f"},
	{0x0A, 0x05, 0x47, "g"},
	{0x0B, 0x04, 0x48, "h"},
	{0x0C, 0x22, 0x49, "i"},
	{0x0D, 0x26, 0x4A, "j"},
	{0x0E, 0x28, 0x4B, "k"},
	{0x0F, 0x25, 0x4C, "l"},
	{0x10, 0x2E, 0x4D, "m"},
	{0x11, 0x2D, 0x4E, "n"},
	{0x12, 0x1F, 0x4F, "o"},
	{0x13, 0x23, 0x50, "p"},
	{0x14, 0x0C, 0x51, "q"},
	{0x15, 0x0F, 0x52, "r"},
	{0x16, 0x01, 0x53, "s"},
	{0x17, 0x11, 0x54, "t"},
	{0x18, 0x20, 0x55, "u"},
	{0x19, 0x09, 0x56, "v"},
	{0x1A, 0x0D, 0x57, "w"},
	{0x1B, 0x07, 0x58, "x"},
	{0x1C, 0x10, 0x59, "y"},
	{0x1D, 0x06, 0x5A, "z"},

	{0x1E, 0x12, 0x31, "1"},
	{0x1F, 0x13, 0x32, "2"},
	{0x20, 0x14, 0x33, "3"},
	{0x21, 0x15, 0x34, "4"},
	{0x22, 0x17, 0x35, "5"},
	{0x23, 0x16, 0x36, "6"},
	{0x24, 0x1A, 0x37, "7"},
	{0x25, 0x1C, 0x38, "8"},
	{0x26, 0x19, 0x39, "9"},
	{0x27, 0x1D, 0x30, "0"},

	{KeyEnter, 0x24, 0x0D, "enter"},
	{KeyEscape, 0x35, 0x1B, "esc"},
	{KeyBackspace, 0x33, 0x08, "backspace"},
	{KeyTab, 0x30, 0x09, "tab"},
	{KeySpace, 0x31, 0x20, "space"},

	{0x2D, 0x1B, 0xBD, "-"},
	{0x2E, 0x18, 0xBB, "="},
	{0x2F, 0x21, 0xDB, "["},
	{0x30, 0x1E, 0xDD, "]"},
	{0x31, 0x2A, 0xDC, "\\"},
	{0x33, 0x29, 0xBA, ";"},
	{0x34, 0x27, 0xDE, "'"},
	{0x35, 0x32, 0xC0, "`"},
	{0x36, 0x2B, 0xBC, ","},
	{0x37, 0x2F, 0xBE, "."},
	{0x38, 0x2C, 0xBF, "/"},

	{0x3A, 0x7A, 0x70, "f1"},
	{0x3B, 0x78, 0x71, "f2"},
	{0x3C, 0x63, 0x72, "f3"},
	{0x3D, 0x76, 0x73, "f4"},
	{0x3E, 0x60, 0x74, "f5"},
	{0x3F, 0x61, 0x75, "f6"},
	{0x40, 0x62, 0x76, "f7"},
	{0x41, 0x64, 0x77, "f8"},
	{0x42, 0x65, 0x78, "f9"},
	{0x43, 0x6D, 0x79, "f10"},
	{0x44, 0x67, 0x7A, "f11"},
	{0x45, 0x6F, 0x7B, "f12"},

	{KeyDelete, 0x75, 0x2E, "delete"},
	{KeyRight, 0x7C, 0x27, "right"},
	{KeyLeft, 0x7B, 0x25, "left"},
	{KeyDown, 0x7D, 0x28, "down"},
	{KeyUp, 0x7E, 0x26, "up"},

	{KeyLeftCtrl, 0x3B, 0xA2, "ctrl"},
	{KeyLeftShift, 0x38, 0xA0, "shift"},
	{KeyLeftAlt, 0x3A, 0xA4, "alt"},
	{KeyLeftGUI, 0x37, 0x5B, "cmd"},
}

var byUsage = func() map[uint8]keyRow {
	m := make(map[uint8]keyRow, len(rows))
	for _, r := range rows {
		m[r.usage] = r
	}
	return m
}()

// Translate maps a HID usage to the key code of platform p.
func Translate(p Platform, usage uint8) (PlatformKey, bool) {
	r, ok := byUsage[usage]
	if !ok {
		return PlatformKey{}, false
	}
	k := PlatformKey{Usage: usage}
	switch p {
	case PlatformMac:
		k.Code = r.mac
	case PlatformWindows:
		k.Code = r.win
	case PlatformNamed:
		k.Name = r.name
	default:
		return PlatformKey{}, false
	}
	return k, true
}
