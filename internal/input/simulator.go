package input

import (
	"fmt"
	"time"

	"remotepad/internal/keymap"
	"remotepad/internal/logger"
)

var log = logger.For("input")

// Timing holds the pauses between synthetic events.
type Timing struct {
	KeyInterval time.Duration // after each typed character
	KeyHold     time.Duration // between key down and key up
	ClickHold   time.Duration // between button down and button up
}

// DefaultTiming matches what desktop apps reliably register.
func DefaultTiming() Timing {
	return Timing{
		KeyInterval: 10 * time.Millisecond,
		KeyHold:     10 * time.Millisecond,
		ClickHold:   50 * time.Millisecond,
	}
}

// Simulator turns wire-level commands into backend events.
type Simulator struct {
	backend Backend
	timing  Timing
	sleep   func(time.Duration)
}

// NewSimulator uses the backend compiled in for this OS.
func NewSimulator(t Timing) *Simulator {
	return NewSimulatorWith(newPlatformBackend(), t)
}

// NewSimulatorWith wraps an explicit backend.
func NewSimulatorWith(b Backend, t Timing) *Simulator {
	return &Simulator{backend: b, timing: t, sleep: time.Sleep}
}

// CheckPermission forwards to the backend when it needs an OS grant.
func (s *Simulator) CheckPermission() error {
	return CheckPermission(s.backend)
}

// TypeText types each character in order. Characters without a key are
// skipped and the rest of the text is still typed.
func (s *Simulator) TypeText(text string) error {
	for _, r := range text {
		st, ok := keymap.Lookup(r)
		if !ok {
			log.Debugf("Skipping unmapped character %q", r)
			continue
		}
		if err := s.PressKey(st.Keycode, st.Modifier); err != nil {
			return err
		}
		s.sleep(s.timing.KeyInterval)
	}
	return nil
}

// PressKey presses and releases one key with its modifiers held around it.
// An untranslatable keycode injects nothing.
func (s *Simulator) PressKey(keycode, modifier uint8) error {
	p := s.backend.Platform()
	key, ok := keymap.Translate(p, keycode)
	if !ok {
		log.Warnf("Unsupported keycode 0x%02X", keycode)
		return nil
	}

	var mods []keymap.PlatformKey
	for _, u := range keymap.ModifierUsages(modifier) {
		if mk, ok := keymap.Translate(p, u); ok {
			mods = append(mods, mk)
		}
	}

	pressed := 0
	release := func() error {
		var first error
		for i := pressed - 1; i >= 0; i-- {
			if err := s.backend.KeyUp(mods[i]); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, mk := range mods {
		if err := s.backend.KeyDown(mk); err != nil {
			_ = release()
			return fmt.Errorf("modifier down: %w", err)
		}
		pressed++
	}

	if err := s.backend.KeyDown(key); err != nil {
		_ = release()
		return fmt.Errorf("key down: %w", err)
	}
	s.sleep(s.timing.KeyHold)
	upErr := s.backend.KeyUp(key)

	if err := release(); err != nil && upErr == nil {
		upErr = err
	}
	if upErr != nil {
		return fmt.Errorf("key up: %w", upErr)
	}
	return nil
}

// MoveMouseBy moves the cursor relative to where it is. Positive dy moves up.
func (s *Simulator) MoveMouseBy(dx, dy int) error {
	x, y, err := s.backend.CursorPos()
	if err != nil {
		return fmt.Errorf("cursor position: %w", err)
	}
	return s.backend.MoveCursor(x+dx, y-dy)
}

// ClickMouse clicks at the current position. Unknown button names do nothing.
func (s *Simulator) ClickMouse(button string) error {
	b, ok := ParseButton(button)
	if !ok {
		log.Debugf("Ignoring click for unknown button %q", button)
		return nil
	}
	if err := s.backend.MouseDown(b); err != nil {
		return fmt.Errorf("mouse down: %w", err)
	}
	s.sleep(s.timing.ClickHold)
	if err := s.backend.MouseUp(b); err != nil {
		return fmt.Errorf("mouse up: %w", err)
	}
	return nil
}
