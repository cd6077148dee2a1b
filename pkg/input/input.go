// Package input drives the mouse and keyboard. The executor only sees the
// Controller interface; the robotgo adapter and a logging no-op live here.
package input

import (
	"github.com/macrow/macrow/pkg/macro"
)

// Controller performs synthetic mouse and keyboard input.
type Controller interface {
	// Click moves to (x, y) and clicks the given button clicks times.
	Click(x, y int, button macro.Button, clicks int) error
	// TypeText types a literal string through the active window.
	TypeText(text string) error
	// KeyPress taps a named key with optional modifiers ("ctrl", "shift").
	KeyPress(key string, modifiers ...string) error
}
