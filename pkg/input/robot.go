package input

import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/macrow/macrow/pkg/macro"
)

// Robot is the robotgo-backed Controller used for real runs.
type Robot struct {
	// MoveDelay is the settle time between moving the cursor and clicking.
	MoveDelay time.Duration
}

// NewRobot returns a Controller driving the host desktop.
func NewRobot() *Robot {
	return &Robot{MoveDelay: 50 * time.Millisecond}
}

func (r *Robot) Click(x, y int, button macro.Button, clicks int) error {
	if clicks < 1 {
		clicks = 1
	}
	btn := "left"
	switch button {
	case macro.ButtonRight:
		btn = "right"
	case macro.ButtonMiddle:
		btn = "center"
	}
	robotgo.Move(x, y)
	if r.MoveDelay > 0 {
		time.Sleep(r.MoveDelay)
	}
	if clicks == 2 {
		robotgo.Click(btn, true)
		return nil
	}
	for i := 0; i < clicks; i++ {
		robotgo.Click(btn, false)
	}
	return nil
}

func (r *Robot) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (r *Robot) KeyPress(key string, modifiers ...string) error {
	if key == "" {
		return fmt.Errorf("key press: empty key")
	}
	if len(modifiers) > 0 {
		mods := make([]interface{}, len(modifiers))
		for i, m := range modifiers {
			mods[i] = m
		}
		return robotgo.KeyTap(key, mods...)
	}
	return robotgo.KeyTap(key)
}
