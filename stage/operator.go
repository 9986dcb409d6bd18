package stage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/teranos/dolly/trip"
)

// TypeCapture marks a still frame that could not be written.
const TypeCapture = "capture"

// Operator is a StageDirector that can also write still frames.
type Operator struct {
	*StageDirector
	renderingStage *RenderingStage
	frameCount     int
	filmDir        string
	shots          []string
}

// NewOperator creates an operator writing frames into outputDir with
// DefaultFrameConfig.
func NewOperator(t testing.TB, model NarrativeModel, outputDir string) *Operator {
	op := &Operator{StageDirector: NewStageDirector(t, model), filmDir: outputDir}
	return op.WithConfig(DefaultFrameConfig(outputDir))
}

// WithConfig replaces the frame geometry and palette.
func (op *Operator) WithConfig(config FrameConfig) *Operator {
	rs, err := NewRenderingStage(config)
	if err != nil {
		op.recordTrip(newStageTrip(TypeCapture, err.Error(), map[string]interface{}{
			"output_dir": config.OutputDir,
		}))
		return op
	}
	op.renderingStage = rs
	op.filmDir = config.OutputDir
	return op
}

// WithTimeout wraps StageDirector.WithTimeout.
func (op *Operator) WithTimeout(timeout time.Duration) *Operator {
	op.StageDirector.WithTimeout(timeout)
	return op
}

// Start wraps StageDirector.Start.
func (op *Operator) Start() *Operator {
	op.StageDirector.Start()
	return op
}

// WheelDown wraps StageDirector.WheelDown.
func (op *Operator) WheelDown(n int) *Operator {
	op.StageDirector.WheelDown(n)
	return op
}

// PressEnter wraps StageDirector.PressEnter.
func (op *Operator) PressEnter() *Operator {
	op.StageDirector.PressEnter()
	return op
}

// Elapse wraps StageDirector.Elapse.
func (op *Operator) Elapse(d time.Duration) *Operator {
	op.StageDirector.Elapse(d)
	return op
}

// WaitForStage wraps StageDirector.WaitForStage.
func (op *Operator) WaitForStage(order int) *Operator {
	op.StageDirector.WaitForStage(order)
	return op
}

// WaitForText wraps StageDirector.WaitForText.
func (op *Operator) WaitForText(text string) *Operator {
	op.StageDirector.WaitForText(text)
	return op
}

// Shots returns the paths written so far, in order.
func (op *Operator) Shots() []string {
	return append([]string(nil), op.shots...)
}

// CaptureTrackingShot writes the current frame as frame_NNN_label.png.
func (op *Operator) CaptureTrackingShot(label string) *Operator {
	if op.renderingStage == nil {
		return op
	}
	op.renderingStage.RenderText(op.Frame().View)

	filename := filepath.Join(op.filmDir, fmt.Sprintf("frame_%03d_%s.png", op.frameCount, label))
	if err := op.renderingStage.CaptureFrame(filename); err != nil {
		op.recordTrip(trip.NewStumble(TypeCapture, "failed to capture frame", trip.Context{
			"file":  filename,
			"error": err.Error(),
		}))
		return op
	}

	op.frameCount++
	op.shots = append(op.shots, filename)
	op.recordStageAction("screenshot", filename)
	return op
}

// WheelDownWithTrackingShot scrolls n notches and captures the result.
func (op *Operator) WheelDownWithTrackingShot(n int, label string) *Operator {
	return op.WheelDown(n).CaptureTrackingShot(label)
}

// PressEnterWithTrackingShot presses Enter and captures the result.
func (op *Operator) PressEnterWithTrackingShot(label string) *Operator {
	return op.PressEnter().CaptureTrackingShot(label)
}

// ElapseWithTrackingShot advances virtual time and captures the result.
func (op *Operator) ElapseWithTrackingShot(d time.Duration, label string) *Operator {
	return op.Elapse(d).CaptureTrackingShot(label)
}

// WaitForStageWithTrackingShot waits for a panel and captures it.
func (op *Operator) WaitForStageWithTrackingShot(order int, label string) *Operator {
	return op.WaitForStage(order).CaptureTrackingShot(label)
}

// WaitForTextWithTrackingShot waits for text and captures it.
func (op *Operator) WaitForTextWithTrackingShot(text, label string) *Operator {
	return op.WaitForText(text).CaptureTrackingShot(label)
}
