//go:build windows && !robotgo

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"remotepad/internal/keymap"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procSetCursorPos = user32.NewProc("SetCursorPos")
	procGetCursorPos = user32.NewProc("GetCursorPos")
	procMouseEvent   = user32.NewProc("mouse_event")
	procKeybdEvent   = user32.NewProc("keybd_event")
)

// Win32 constants
const (
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
)

type point struct {
	X int32
	Y int32
}

type windowsBackend struct{}

func newPlatformBackend() Backend {
	return windowsBackend{}
}

func (windowsBackend) Platform() keymap.Platform { return keymap.PlatformWindows }

// extended keys need KEYEVENTF_EXTENDEDKEY or they arrive as numpad keys
func isExtended(vk uint16) bool {
	switch vk {
	case 0x25, 0x26, 0x27, 0x28, 0x2E, 0x5B:
		return true
	}
	return false
}

func keybdEvent(vk uint16, flags uint32) error {
	if isExtended(vk) {
		flags |= keyeventfExtendedKey
	}
	if err := procKeybdEvent.Find(); err != nil {
		return fmt.Errorf("keybd_event: %w", err)
	}
	procKeybdEvent.Call(uintptr(vk), 0, uintptr(flags), 0)
	return nil
}

func (windowsBackend) KeyDown(k keymap.PlatformKey) error { return keybdEvent(k.Code, 0) }
func (windowsBackend) KeyUp(k keymap.PlatformKey) error   { return keybdEvent(k.Code, keyeventfKeyUp) }

func (windowsBackend) CursorPos() (int, int, error) {
	var p point
	ret, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	if ret == 0 {
		return 0, 0, fmt.Errorf("GetCursorPos: %w", err)
	}
	return int(p.X), int(p.Y), nil
}

func (windowsBackend) MoveCursor(x, y int) error {
	ret, _, err := procSetCursorPos.Call(uintptr(int32(x)), uintptr(int32(y)))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos: %w", err)
	}
	return nil
}

func mouseFlags(btn Button) (down, up uint32) {
	switch btn {
	case ButtonRight:
		return mouseeventfRightDown, mouseeventfRightUp
	case ButtonMiddle:
		return mouseeventfMiddleDown, mouseeventfMiddleUp
	default:
		return mouseeventfLeftDown, mouseeventfLeftUp
	}
}

func mouseEvent(flags uint32) error {
	if err := procMouseEvent.Find(); err != nil {
		return fmt.Errorf("mouse_event: %w", err)
	}
	procMouseEvent.Call(uintptr(flags), 0, 0, 0, 0)
	return nil
}

func (windowsBackend) MouseDown(btn Button) error {
	down, _ := mouseFlags(btn)
	return mouseEvent(down)
}

func (windowsBackend) MouseUp(btn Button) error {
	_, up := mouseFlags(btn)
	return mouseEvent(up)
}
