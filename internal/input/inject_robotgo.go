//go:build robotgo

package input

import (
	"github.com/go-vgo/robotgo"

	"remotepad/internal/keymap"
)

// robotgoBackend drives X11, macOS or Windows through robotgo. It is selected
// with the robotgo build tag and is the only backend on Linux desktops.
type robotgoBackend struct{}

func newPlatformBackend() Backend {
	return robotgoBackend{}
}

func (robotgoBackend) Platform() keymap.Platform { return keymap.PlatformNamed }

func (robotgoBackend) KeyDown(k keymap.PlatformKey) error { return robotgo.KeyToggle(k.Name, "down") }
func (robotgoBackend) KeyUp(k keymap.PlatformKey) error   { return robotgo.KeyToggle(k.Name, "up") }

func (robotgoBackend) CursorPos() (int, int, error) {
	x, y := robotgo.Location()
	return x, y, nil
}

func (robotgoBackend) MoveCursor(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func robotgoButton(btn Button) string {
	if btn == ButtonMiddle {
		return "center"
	}
	return string(btn)
}

func (robotgoBackend) MouseDown(btn Button) error { return robotgo.Toggle(robotgoButton(btn), "down") }
func (robotgoBackend) MouseUp(btn Button) error   { return robotgo.Toggle(robotgoButton(btn), "up") }
