package stage

import (
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update forwards to the wrapped model and captures the resulting frame.
// A panicking model is kept as it was before the message.
func (w stageModelWrapper) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			model, cmd = w, nil
			if w.director != nil {
				w.director.handleModelPanic(r, msg)
			}
		}
	}()

	newModel, cmd := w.NarrativeModel.Update(msg)
	if newModel == nil {
		if w.director != nil {
			w.director.handleInvalidModelState("Update returned nil model", msg)
		}
		return w, cmd
	}

	next, ok := newModel.(NarrativeModel)
	if !ok {
		if w.director != nil {
			w.director.handleInvalidModelState(fmt.Sprintf("Update returned %T", newModel), msg)
		}
		return w, cmd
	}

	if d := w.director; d != nil {
		update := modelUpdate{
			frame:     captureFrame(next),
			sequence:  atomic.AddInt64(&d.updateSeq, 1),
			timestamp: time.Now(),
		}
		select {
		case d.modelChan <- update:
			atomic.AddInt64(&d.updatesSent, 1)
		default:
			atomic.AddInt64(&d.bufferOverflows, 1)
			atomic.AddInt64(&d.droppedUpdates, 1)
		}
	}
	return stageModelWrapper{NarrativeModel: next, director: w.director}, cmd
}

// GetSynchronizationStats returns frame synchronization counters.
func (d *StageDirector) GetSynchronizationStats() map[string]int64 {
	return map[string]int64{
		"updates_generated": atomic.LoadInt64(&d.updateSeq),
		"updates_sent":      atomic.LoadInt64(&d.updatesSent),
		"updates_processed": atomic.LoadInt64(&d.updatesProcessed),
		"buffer_overflows":  atomic.LoadInt64(&d.bufferOverflows),
		"sequence_gaps":     atomic.LoadInt64(&d.sequenceGaps),
		"duplicate_updates": atomic.LoadInt64(&d.duplicateUpdates),
		"updates_dropped":   atomic.LoadInt64(&d.droppedUpdates),
		"buffer_length":     int64(len(d.modelChan)),
		"buffer_capacity":   int64(cap(d.modelChan)),
	}
}

// HasDroppedUpdates reports whether any frame was lost.
func (d *StageDirector) HasDroppedUpdates() bool {
	return atomic.LoadInt64(&d.droppedUpdates) > 0 ||
		atomic.LoadInt64(&d.bufferOverflows) > 0 ||
		atomic.LoadInt64(&d.sequenceGaps) > 0
}

// GetBufferUtilization returns frame buffer usage as a percentage.
func (d *StageDirector) GetBufferUtilization() float64 {
	if cap(d.modelChan) == 0 {
		return 0
	}
	return float64(len(d.modelChan)) / float64(cap(d.modelChan)) * 100
}

// ResetMetrics zeroes the diagnostic counters. Sequence numbers keep counting.
func (d *StageDirector) ResetMetrics() {
	atomic.StoreInt64(&d.droppedUpdates, 0)
	atomic.StoreInt64(&d.updatesSent, 0)
	atomic.StoreInt64(&d.updatesProcessed, 0)
	atomic.StoreInt64(&d.bufferOverflows, 0)
	atomic.StoreInt64(&d.sequenceGaps, 0)
	atomic.StoreInt64(&d.duplicateUpdates, 0)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// handleModelPanic records the panic and cancels the run.
func (d *StageDirector) handleModelPanic(panicValue interface{}, msg tea.Msg) {
	d.captureErrorSnapshot(TypeModelPanic, fmt.Sprintf("panic: %v", panicValue))
	d.recordTrip(newStageTrip(TypeModelPanic, fmt.Sprintf("model panic during Update: %v", panicValue), map[string]interface{}{
		"panic_value": panicValue,
		"tea_msg":     truncateString(fmt.Sprintf("%T: %+v", msg, msg), 200),
		"model_type":  fmt.Sprintf("%T", d.model),
	}))
	if d.cancel != nil {
		d.cancel()
	}
}

// handleInvalidModelState records a model that broke the Update contract and
// cancels the run.
func (d *StageDirector) handleInvalidModelState(reason string, msg tea.Msg) {
	d.captureErrorSnapshot(TypeInvalidModel, reason)
	d.recordTrip(newStageTrip(TypeInvalidModel, reason, map[string]interface{}{
		"tea_msg":    truncateString(fmt.Sprintf("%T: %+v", msg, msg), 200),
		"model_type": fmt.Sprintf("%T", d.model),
	}))
	if d.cancel != nil {
		d.cancel()
	}
}

// captureErrorSnapshot keeps the last good frame alongside the failure.
func (d *StageDirector) captureErrorSnapshot(errorType, errorMessage string) {
	frame := d.Frame()
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	d.snapshots = append(d.snapshots, StageSnapshot{
		Timestamp: time.Now(),
		Reason:    errorType,
		View:      fmt.Sprintf("ERROR STATE (%s)\n%s\n\nLast View:\n%s", errorType, errorMessage, frame.View),
		Mode:      "error_" + errorType,
		Stage:     frame.Stage,
	})
}
