// Package input provides cross-platform keyboard and mouse injection.
package input

import (
	"errors"
	"strings"

	"remotepad/internal/keymap"
)

// ErrPermissionDenied is returned when the OS refuses synthetic input,
// e.g. macOS without the accessibility grant.
var ErrPermissionDenied = errors.New("input: accessibility permission required")

// Button is a mouse button name as it appears on the wire.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ParseButton accepts left, right and middle in any case.
func ParseButton(s string) (Button, bool) {
	switch b := Button(strings.ToLower(strings.TrimSpace(s))); b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return b, true
	default:
		return "", false
	}
}

// Injector is what the receiver dispatches decoded commands to.
type Injector interface {
	TypeText(text string) error
	PressKey(keycode, modifier uint8) error
	MoveMouseBy(dx, dy int) error
	ClickMouse(button string) error
}

// Backend is the OS-facing layer below the Simulator. Keys arrive already
// translated for the backend's platform.
type Backend interface {
	Platform() keymap.Platform
	KeyDown(k keymap.PlatformKey) error
	KeyUp(k keymap.PlatformKey) error
	CursorPos() (x, y int, err error)
	MoveCursor(x, y int) error
	MouseDown(b Button) error
	MouseUp(b Button) error
}

// PermissionChecker is implemented by backends that need an OS grant.
type PermissionChecker interface {
	CheckPermission() error
}

// CheckPermission asks inj, or the backend behind it, whether injection is
// allowed. Injectors that do not know report nil.
func CheckPermission(inj interface{}) error {
	if pc, ok := inj.(PermissionChecker); ok {
		return pc.CheckPermission()
	}
	return nil
}
