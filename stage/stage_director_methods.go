package stage

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// syncModelUpdates applies captured frames in sequence order, dropping
// duplicates and counting gaps.
func (d *StageDirector) syncModelUpdates() {
	defer close(d.syncDone)
	defer func() {
		if r := recover(); r != nil {
			d.t.Logf("frame sync goroutine panicked: %v", r)
		}
	}()

	for {
		select {
		case update := <-d.modelChan:
			currentSeq := atomic.LoadInt64(&d.lastProcessedSeq)
			if update.sequence <= currentSeq {
				atomic.AddInt64(&d.duplicateUpdates, 1)
				continue
			}
			if update.sequence > currentSeq+1 {
				atomic.AddInt64(&d.sequenceGaps, 1)
			}

			d.frameMu.Lock()
			d.latest = update.frame
			atomic.StoreInt64(&d.lastProcessedSeq, update.sequence)
			atomic.AddInt64(&d.updatesProcessed, 1)
			d.frameMu.Unlock()

		case <-d.stopSync:
			return
		}
	}
}

// WithTimeout sets the run and wait timeout. It must be called before Start.
func (d *StageDirector) WithTimeout(timeout time.Duration) *StageDirector {
	if d.started {
		d.t.Logf("cannot change timeout after the director started, ignoring WithTimeout(%v)", timeout)
		return d
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = context.WithTimeout(context.Background(), timeout)
	d.config.Timeout = timeout
	return d
}

// WithViewCapture enables or disables snapshots after every interaction.
func (d *StageDirector) WithViewCapture(enabled bool) *StageDirector {
	if d.started {
		d.t.Logf("cannot change view capture after the director started, ignoring WithViewCapture(%v)", enabled)
		return d
	}
	d.config.CaptureViews = enabled
	return d
}

// WithKeyDelay sets the pause between repeated keystrokes.
func (d *StageDirector) WithKeyDelay(delay time.Duration) *StageDirector {
	d.config.KeyDelay = delay
	return d
}

// Start runs the model in a headless program.
func (d *StageDirector) Start() *StageDirector {
	if d.started {
		d.t.Logf("stage director already started")
		return d
	}

	wrapped := stageModelWrapper{NarrativeModel: d.model, director: d}
	d.program = tea.NewProgram(wrapped,
		tea.WithContext(d.ctx),
		tea.WithoutRenderer(),
		tea.WithInput(nil),
		tea.WithOutput(nil),
		tea.WithoutSignalHandler(),
	)

	go func() {
		defer close(d.done)
		defer func() {
			if r := recover(); r != nil {
				d.t.Logf("program goroutine panicked: %v", r)
			}
		}()
		if _, err := d.program.Run(); err != nil && d.ctx.Err() == nil {
			d.t.Logf("program exited: %v", err)
		}
	}()

	if err := d.waitForProgramReady(); err != nil {
		d.recordTrip(newStageTrip(TypeStartup, err.Error(), map[string]interface{}{
			"error": err.Error(),
		}))
		return d
	}

	d.started = true
	d.captureSnapshot("start")
	return d
}

// Stop quits the program, closes the model and returns the result.
func (d *StageDirector) Stop() *StageResult {
	startTime := time.Now()
	if d.stopped {
		return d.result(0)
	}
	d.stopped = true

	if d.started {
		d.captureSnapshot("stop")
	}

	if d.program != nil {
		d.program.Quit()
		select {
		case <-d.done:
		case <-time.After(d.config.Timeout):
			d.program.Kill()
			<-d.done
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	close(d.stopSync)
	<-d.syncDone

	if c, ok := d.model.(Closeable); ok {
		if err := c.Close(); err != nil {
			d.t.Logf("closing model: %v", err)
		}
	}
	return d.result(time.Since(startTime))
}

func (d *StageDirector) result(duration time.Duration) *StageResult {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()

	var errorDetails strings.Builder
	var tripReport string

	if d.lastTrip != nil {
		tripReport = d.tripHandler.DetailedReport()

		errorDetails.WriteString(fmt.Sprintf("Trip Type: %s\n", d.lastTrip.Type))
		errorDetails.WriteString(fmt.Sprintf("Error: %s\n", d.lastTrip.Message))
		errorDetails.WriteString(fmt.Sprintf("Timestamp: %s\n", d.lastTrip.Timestamp.Format(time.RFC3339)))
		if len(d.lastTrip.Context) > 0 {
			errorDetails.WriteString("Context:\n")
			for key, value := range d.lastTrip.Context {
				errorDetails.WriteString(fmt.Sprintf("  %s: %v\n", key, value))
			}
		}

		if d.HasDroppedUpdates() {
			errorDetails.WriteString("\nSynchronization Issues:\n")
			for key, value := range d.GetSynchronizationStats() {
				if value > 0 && (strings.Contains(key, "dropped") || strings.Contains(key, "overflow") || strings.Contains(key, "gap")) {
					errorDetails.WriteString(fmt.Sprintf("  %s: %d\n", key, value))
				}
			}
		}
	}

	return &StageResult{
		Actions:      d.interactions,
		Snapshots:    d.snapshots,
		Success:      !d.failed && d.lastTrip == nil,
		Duration:     duration,
		ErrorMessage: d.getErrorMessage(),
		Error:        d.getError(),
		ErrorDetails: errorDetails.String(),
		TripReport:   tripReport,
		SyncStats:    d.GetSynchronizationStats(),
	}
}

// waitFor polls check until it holds, the timeout passes or the run is
// cancelled. Either way it records a wait trip built by describe.
func (d *StageDirector) waitFor(what string, check func(Frame) bool, describe func(Frame) map[string]interface{}) *StageDirector {
	if d.isFailed() {
		return d
	}

	timeout := time.NewTimer(d.config.Timeout)
	defer timeout.Stop()

	for {
		frame := d.Frame()
		if check(frame) {
			d.recordStageAction("wait", what)
			return d
		}
		select {
		case <-timeout.C:
			ctx := describe(frame)
			ctx["waited_for"] = what
			d.recordTrip(newStageTrip(TypeWait, "timeout waiting for "+what, ctx))
			return d
		case <-d.ctx.Done():
			if !d.isFailed() {
				ctx := describe(frame)
				ctx["waited_for"] = what
				d.recordTrip(newStageTrip(TypeWait, "run ended while waiting for "+what, ctx))
			}
			return d
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// WaitForStage waits until the panel at order is on screen.
func (d *StageDirector) WaitForStage(order int) *StageDirector {
	return d.waitFor(fmt.Sprintf("stage %d", order),
		func(f Frame) bool { return f.Stage == order },
		func(f Frame) map[string]interface{} {
			return map[string]interface{}{"expected_stage": order, "current_stage": f.Stage}
		})
}

// WaitForMode waits for the model to report mode.
func (d *StageDirector) WaitForMode(mode string) *StageDirector {
	return d.waitFor("mode "+mode,
		func(f Frame) bool { return f.Mode == mode },
		func(f Frame) map[string]interface{} {
			return map[string]interface{}{"expected_mode": mode, "current_mode": f.Mode}
		})
}

// WaitForText waits for text to appear in the unstyled view.
func (d *StageDirector) WaitForText(text string) *StageDirector {
	return d.waitFor(fmt.Sprintf("text %q", text),
		func(f Frame) bool { return strings.Contains(f.Text(), text) },
		func(f Frame) map[string]interface{} {
			return map[string]interface{}{"expected_text": text, "current_view": f.Text()}
		})
}

// WaitForCondition waits for a named condition to hold.
func (d *StageDirector) WaitForCondition(condition string) *StageDirector {
	return d.waitFor("condition "+condition,
		func(f Frame) bool { return f.Check(condition) },
		func(f Frame) map[string]interface{} {
			return map[string]interface{}{"condition": condition, "frame": f.String()}
		})
}

// waitForProgramReady sends a no-op message and waits for the frame it
// produces, which proves the event loop is running.
func (d *StageDirector) waitForProgramReady() error {
	before := atomic.LoadInt64(&d.lastProcessedSeq)
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		d.program.Send(readyMsg{})
	}()

	timeout := time.NewTimer(d.config.Timeout)
	defer timeout.Stop()
	for {
		if atomic.LoadInt64(&d.lastProcessedSeq) > before {
			<-sent
			return nil
		}
		select {
		case <-timeout.C:
			return fmt.Errorf("timeout waiting for program to be ready")
		case <-d.done:
			return fmt.Errorf("program exited before it was ready")
		case <-d.ctx.Done():
			return fmt.Errorf("context cancelled while waiting for program")
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// readyMsg is ignored by models; its Update proves the loop is alive.
type readyMsg struct{}

// waitForUpdate waits until a frame newer than seq has been applied.
func (d *StageDirector) waitForUpdate(seq int64) {
	timeout := d.config.Timeout
	if timeout > time.Second {
		timeout = time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for atomic.LoadInt64(&d.lastProcessedSeq) <= seq {
		select {
		case <-timer.C:
			d.t.Logf("no frame after message (seq %d)", seq)
			return
		case <-d.ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// Frame returns the latest captured frame.
func (d *StageDirector) Frame() Frame {
	d.frameMu.RLock()
	defer d.frameMu.RUnlock()
	return d.latest
}

// GetLatestSnapshot returns the most recent snapshot.
func (d *StageDirector) GetLatestSnapshot() StageSnapshot {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	if len(d.snapshots) == 0 {
		return StageSnapshot{}
	}
	return d.snapshots[len(d.snapshots)-1]
}

// GetStageActionCount returns the number of recorded interactions.
func (d *StageDirector) GetStageActionCount() int {
	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	return len(d.interactions)
}

func (d *StageDirector) getErrorMessage() string {
	if d.lastTrip != nil {
		return fmt.Sprintf("[%s] %s", strings.ToLower(d.lastTrip.Type), d.lastTrip.Message)
	}
	return ""
}

func (d *StageDirector) getError() error {
	if d.lastTrip != nil {
		return d.lastTrip
	}
	return nil
}
