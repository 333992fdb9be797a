//go:build !robotgo && !windows && !(darwin && cgo)

package input

import (
	"sync"

	"remotepad/internal/keymap"
)

// Stub implementation for platforms without a native backend. Events are
// accepted and dropped so a receiver still answers its controller.

var warnOnce sync.Once

type stubBackend struct{}

func newPlatformBackend() Backend {
	warnOnce.Do(func() {
		log.Warn("Input injection not supported on this platform; build with -tags robotgo for X11")
	})
	return stubBackend{}
}

func (stubBackend) Platform() keymap.Platform { return keymap.PlatformNamed }

func (stubBackend) KeyDown(k keymap.PlatformKey) error {
	log.Debugf("stub: key down %s", k.Name)
	return nil
}

func (stubBackend) KeyUp(k keymap.PlatformKey) error {
	log.Debugf("stub: key up %s", k.Name)
	return nil
}

func (stubBackend) CursorPos() (int, int, error) { return 0, 0, nil }

func (stubBackend) MoveCursor(x, y int) error {
	log.Debugf("stub: move cursor to %d,%d", x, y)
	return nil
}

func (stubBackend) MouseDown(b Button) error { return nil }
func (stubBackend) MouseUp(b Button) error   { return nil }
