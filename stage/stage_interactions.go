package stage

import (
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/dolly/trip"
	"github.com/teranos/dolly/tui"
)

// WheelDown sends n mouse wheel notches toward the end of the story.
func (d *StageDirector) WheelDown(n int) *StageDirector {
	return d.wheel(n, tea.MouseButtonWheelDown, "down")
}

// WheelUp sends n mouse wheel notches toward the start of the story.
func (d *StageDirector) WheelUp(n int) *StageDirector {
	return d.wheel(n, tea.MouseButtonWheelUp, "up")
}

func (d *StageDirector) wheel(n int, button tea.MouseButton, label string) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	for i := 0; i < n; i++ {
		d.sendMessage(tea.MouseMsg{Button: button, Action: tea.MouseActionPress})
		d.recordStageAction("wheel", label)
		if d.config.KeyDelay > 0 {
			time.Sleep(d.config.KeyDelay)
		}
	}
	return d
}

// PressEnter sends Enter, which begins the story or skips typing.
func (d *StageDirector) PressEnter() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeyEnter}, "enter")
}

// PressSpace sends Space, a page forward.
func (d *StageDirector) PressSpace() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, "space")
}

// PressDown sends the down arrow.
func (d *StageDirector) PressDown() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeyDown}, "down")
}

// PressUp sends the up arrow.
func (d *StageDirector) PressUp() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeyUp}, "up")
}

// PressPageUp sends Page Up.
func (d *StageDirector) PressPageUp() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeyPgUp}, "pgup")
}

// PressPageDown sends Page Down.
func (d *StageDirector) PressPageDown() *StageDirector {
	return d.press(tea.KeyMsg{Type: tea.KeyPgDown}, "pgdown")
}

// Type sends text as rune key events, one per character.
func (d *StageDirector) Type(text string) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	for _, char := range text {
		d.sendMessage(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{char}})
		d.recordStageAction("type", string(char))
		if d.config.KeyDelay > 0 {
			time.Sleep(d.config.KeyDelay)
		}
	}
	return d
}

func (d *StageDirector) press(msg tea.KeyMsg, label string) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	d.sendMessage(msg)
	d.recordStageAction("keypress", label)
	return d
}

// Resize sends a window size change.
func (d *StageDirector) Resize(width, height int) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	d.sendMessage(tea.WindowSizeMsg{Width: width, Height: height})
	d.recordStageAction("resize", [2]int{width, height})
	return d
}

// Elapse moves the player's virtual clock forward by duration.
func (d *StageDirector) Elapse(duration time.Duration) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	d.sendMessage(tui.Elapse(duration))
	d.recordStageAction("elapse", duration)
	return d
}

// Send delivers an arbitrary message.
func (d *StageDirector) Send(msg tea.Msg) *StageDirector {
	d.updateMu.Lock()
	defer d.updateMu.Unlock()

	d.sendMessage(msg)
	d.recordStageAction("send", msg)
	return d
}

// Wait sleeps in real time. Prefer Elapse or the WaitFor methods.
func (d *StageDirector) Wait(duration time.Duration) *StageDirector {
	time.Sleep(duration)
	d.recordStageAction("wait", duration)
	d.captureSnapshot("wait")
	return d
}

// AssertStage verifies the panel on screen.
func (d *StageDirector) AssertStage(expected int) *StageDirector {
	frame := d.Frame()
	if frame.Stage != expected {
		d.recordTrip(newStageTrip(TypeAssertion, "unexpected stage", map[string]interface{}{
			"expected": expected,
			"actual":   frame.Stage,
			"frame":    frame.String(),
		}))
		return d
	}
	d.recordStageAction("assertion", map[string]int{"stage": expected})
	return d
}

// AssertViewContains verifies that the unstyled view contains text.
func (d *StageDirector) AssertViewContains(text string) *StageDirector {
	view := d.Frame().Text()
	if !strings.Contains(view, text) {
		d.recordTrip(newStageTrip(TypeAssertion, "view does not contain expected text: "+text, map[string]interface{}{
			"expected":    text,
			"actual_view": view,
		}))
		return d
	}
	d.recordStageAction("assertion", "contains="+text)
	return d
}

// AssertMode verifies the model's mode.
func (d *StageDirector) AssertMode(expected string) *StageDirector {
	actual := d.Frame().Mode
	if actual != expected {
		d.recordTrip(newStageTrip(TypeAssertion, "expected mode "+expected+", got "+actual, map[string]interface{}{
			"expected": expected,
			"actual":   actual,
		}))
		return d
	}
	d.recordStageAction("assertion", "mode="+expected)
	return d
}

// AssertCondition verifies that a named condition has the wanted value.
func (d *StageDirector) AssertCondition(condition string, want bool) *StageDirector {
	frame := d.Frame()
	if frame.Check(condition) != want {
		d.recordTrip(newStageTrip(TypeAssertion, "condition "+condition+" mismatch", map[string]interface{}{
			"condition": condition,
			"want":      want,
			"frame":     frame.String(),
		}))
		return d
	}
	d.recordStageAction("assertion", condition)
	return d
}

// sendMessage delivers msg and waits for the frame it produces.
func (d *StageDirector) sendMessage(msg tea.Msg) {
	if d.program == nil || d.isFailed() {
		return
	}
	seq := atomic.LoadInt64(&d.updateSeq)
	d.program.Send(msg)
	d.waitForUpdate(seq)
	d.captureSnapshot("interaction")
}

func (d *StageDirector) recordStageAction(actionType string, details interface{}) {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	d.interactions = append(d.interactions, StageAction{
		Timestamp: time.Now(),
		Type:      actionType,
		Details:   details,
	})
}

func (d *StageDirector) captureSnapshot(reason string) {
	if !d.config.CaptureViews {
		return
	}
	frame := d.Frame()
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	d.snapshots = append(d.snapshots, StageSnapshot{
		Timestamp: time.Now(),
		Reason:    reason,
		View:      frame.View,
		Mode:      frame.Mode,
		Stage:     frame.Stage,
	})
}

// recordTrip keeps trip and fails the run unless it can be recovered from.
func (d *StageDirector) recordTrip(t *trip.Trip) {
	d.recordMu.Lock()
	d.tripHandler.Record(t)
	d.lastTrip = t
	if !t.CanRecover() {
		d.failed = true
	}
	d.recordMu.Unlock()

	if d.t != nil {
		d.t.Helper()
		if t.IsFall() {
			d.t.Error(t)
		} else {
			d.t.Log(t.DetailedString())
		}
	}
}

// HasFailed reports whether the run hit an unrecoverable trip.
func (d *StageDirector) HasFailed() bool {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	return d.failed || !d.tripHandler.ShouldContinue()
}

func (d *StageDirector) isFailed() bool {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	return d.failed
}

// GetError returns the last trip, if any.
func (d *StageDirector) GetError() error {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	return d.getError()
}

// GetTripHandler returns the trip handler for detailed analysis.
func (d *StageDirector) GetTripHandler() *trip.Handler {
	return d.tripHandler
}
