//go:build darwin && cgo && !robotgo

package input

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

// Check if we have accessibility permissions
bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

// Get current mouse position (top-left origin)
CGPoint getCurrentMousePosition() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

void moveMouseTo(CGFloat x, CGFloat y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void injectMouseButton(int button, bool pressed) {
    CGMouseButton cgButton;
    CGEventType eventType;

    switch (button) {
        case 1:
            cgButton = kCGMouseButtonLeft;
            eventType = pressed ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
            break;
        case 2:
            cgButton = kCGMouseButtonRight;
            eventType = pressed ? kCGEventRightMouseDown : kCGEventRightMouseUp;
            break;
        case 3:
            cgButton = kCGMouseButtonCenter;
            eventType = pressed ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
            break;
        default:
            return;
    }

    CGPoint currentPos = getCurrentMousePosition();
    CGEventRef event = CGEventCreateMouseEvent(NULL, eventType, currentPos, cgButton);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void injectKey(CGKeyCode keyCode, bool pressed, CGEventFlags flags) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, keyCode, pressed);
    CGEventSetFlags(event, flags);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}
*/
import "C"

import (
	"sync"

	"remotepad/internal/keymap"
)

// macOS implementation of input injection using CoreGraphics

var modifierFlags = map[uint8]C.CGEventFlags{
	keymap.KeyLeftCtrl:  C.kCGEventFlagMaskControl,
	keymap.KeyLeftShift: C.kCGEventFlagMaskShift,
	keymap.KeyLeftAlt:   C.kCGEventFlagMaskAlternate,
	keymap.KeyLeftGUI:   C.kCGEventFlagMaskCommand,
}

// darwinBackend posts CoreGraphics events. Held modifiers are tracked so
// every key event carries the flags of the modifiers currently down.
type darwinBackend struct {
	mu    sync.Mutex
	flags C.CGEventFlags
}

func newPlatformBackend() Backend {
	return &darwinBackend{}
}

func (b *darwinBackend) Platform() keymap.Platform { return keymap.PlatformMac }

func (b *darwinBackend) CheckPermission() error {
	if !bool(C.hasAccessibilityPermissions()) {
		return ErrPermissionDenied
	}
	return nil
}

func (b *darwinBackend) key(k keymap.PlatformKey, pressed bool) error {
	b.mu.Lock()
	if f, ok := modifierFlags[k.Usage]; ok {
		if pressed {
			b.flags |= f
		} else {
			b.flags &^= f
		}
	}
	flags := b.flags
	b.mu.Unlock()

	C.injectKey(C.CGKeyCode(k.Code), C.bool(pressed), flags)
	return nil
}

func (b *darwinBackend) KeyDown(k keymap.PlatformKey) error { return b.key(k, true) }
func (b *darwinBackend) KeyUp(k keymap.PlatformKey) error   { return b.key(k, false) }

func (b *darwinBackend) CursorPos() (int, int, error) {
	p := C.getCurrentMousePosition()
	return int(p.x), int(p.y), nil
}

func (b *darwinBackend) MoveCursor(x, y int) error {
	C.moveMouseTo(C.CGFloat(x), C.CGFloat(y))
	return nil
}

func buttonNumber(btn Button) C.int {
	switch btn {
	case ButtonLeft:
		return 1
	case ButtonRight:
		return 2
	case ButtonMiddle:
		return 3
	}
	return 0
}

func (b *darwinBackend) MouseDown(btn Button) error {
	C.injectMouseButton(buttonNumber(btn), C.bool(true))
	return nil
}

func (b *darwinBackend) MouseUp(btn Button) error {
	C.injectMouseButton(buttonNumber(btn), C.bool(false))
	return nil
}
