// Package stage drives a narrative player headlessly for tests and still frames.
//
// A StageDirector runs the model inside a bubbletea program without a
// terminal. Every Update is captured as an immutable Frame on the program
// goroutine, so the director can poll stage, mode, conditions and view text
// from the test goroutine without touching the live model.
//
// Basic usage:
//
//	player, _ := tui.NewPlayer(s, cfg)
//
//	result := stage.NewStageDirector(t, player).
//		WithTimeout(5 * time.Second).
//		Start().
//		PressEnter().
//		WheelDown(3).
//		Elapse(1500 * time.Millisecond).
//		WaitForStage(1).
//		AssertViewContains("globalization").
//		Stop()
//
//	assert.True(t, result.Success)
//
// For still frames:
//
//	stage.NewOperator(t, player, "frames/").
//		Start().
//		CaptureTrackingShot("intro").
//		Stop()
package stage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/teranos/dolly/trip"
)

// Trip types raised by the director.
const (
	TypeStartup      = "startup"
	TypeWait         = "wait_timeout"
	TypeAssertion    = "assertion"
	TypeModelPanic   = "model_panic"
	TypeInvalidModel = "invalid_model_state"
)

// NarrativeModel is a bubbletea model the director can inspect.
//
// The director only calls these methods from inside Update, on the program
// goroutine, when it captures a Frame.
type NarrativeModel interface {
	tea.Model
	// CurrentStage returns the order of the panel on screen.
	CurrentStage() int
	// CurrentMode names what the model is doing ("locked", "transition", ...).
	CurrentMode() string
	// Conditions reports named flags the director can wait on.
	Conditions() map[string]bool
}

// Closeable models have Close called once the director stops.
type Closeable interface {
	Close() error
}

// Frame is what the model looked like after one Update.
type Frame struct {
	View       string
	Mode       string
	Stage      int
	Conditions map[string]bool
}

func captureFrame(m NarrativeModel) Frame {
	src := m.Conditions()
	conds := make(map[string]bool, len(src))
	for k, v := range src {
		conds[k] = v
	}
	return Frame{View: m.View(), Mode: m.CurrentMode(), Stage: m.CurrentStage(), Conditions: conds}
}

// Text returns the view without ANSI styling.
func (f Frame) Text() string { return ansi.Strip(f.View) }

// Check reports a named condition.
func (f Frame) Check(condition string) bool { return f.Conditions[condition] }

// TrueConditions lists the conditions currently set, sorted.
func (f Frame) TrueConditions() []string {
	var out []string
	for k, v := range f.Conditions {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (f Frame) String() string {
	return fmt.Sprintf("stage=%d mode=%s [%s]", f.Stage, f.Mode, strings.Join(f.TrueConditions(), ","))
}

// modelUpdate is a captured frame with its sequence number.
type modelUpdate struct {
	frame     Frame
	sequence  int64
	timestamp time.Time
}

// StageDirector orchestrates headless runs of a NarrativeModel.
//
// Errors are collected as trips and returned in the final StageResult rather
// than failing the test immediately; falls are also reported through t.Error.
type StageDirector struct {
	t       testing.TB
	model   NarrativeModel
	program *tea.Program
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{} // closed when the program returns

	stopSync chan struct{}
	syncDone chan struct{}

	interactions []StageAction
	snapshots    []StageSnapshot
	// recordMu guards the records above and the trip state below; panics
	// are recorded from the program goroutine.
	recordMu    sync.Mutex
	tripHandler *trip.Handler
	lastTrip    *trip.Trip
	failed      bool

	updateMu sync.Mutex

	modelChan        chan modelUpdate
	latest           Frame
	frameMu          sync.RWMutex
	updateSeq        int64 // atomic
	lastProcessedSeq int64 // atomic
	droppedUpdates   int64 // atomic

	updatesSent      int64 // atomic
	updatesProcessed int64 // atomic
	bufferOverflows  int64 // atomic
	sequenceGaps     int64 // atomic
	duplicateUpdates int64 // atomic

	config  StageConfig
	started bool
	stopped bool
}

// stageModelWrapper captures a frame after every Update of the wrapped model.
type stageModelWrapper struct {
	NarrativeModel
	director *StageDirector
}

// StageAction records a single interaction during a run.
type StageAction struct {
	Timestamp time.Time
	Type      string // "keypress", "wheel", "elapse", "wait", "assertion", "screenshot"
	Details   interface{}
	Result    interface{}
}

// StageSnapshot is a frame kept for debugging a failed run.
type StageSnapshot struct {
	Timestamp time.Time
	Reason    string
	View      string
	Mode      string
	Stage     int
}

// StageResult contains the complete results of a run.
type StageResult struct {
	Actions      []StageAction
	Snapshots    []StageSnapshot
	Success      bool
	Duration     time.Duration
	ErrorMessage string
	Error        error
	ErrorDetails string
	TripReport   string
	SyncStats    map[string]int64
}

func newStageTrip(errorType, message string, context map[string]interface{}) *trip.Trip {
	tripContext := make(trip.Context, len(context))
	for k, v := range context {
		tripContext[k] = v
	}
	return trip.NewTrip(errorType, message, tripContext)
}

// StageConfig configures a StageDirector.
type StageConfig struct {
	// Timeout bounds the whole run and each wait.
	Timeout time.Duration
	// KeyDelay is slept between repeated keystrokes or wheel notches.
	KeyDelay time.Duration
	// CaptureViews keeps a snapshot after every interaction.
	CaptureViews bool
	// BufferSize is the capacity of the frame channel.
	BufferSize int
}

// DefaultStageConfig returns a 30 second timeout, no key delay and view capture.
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Timeout:      30 * time.Second,
		CaptureViews: true,
		BufferSize:   50,
	}
}

// NewStageDirector creates a director with DefaultStageConfig. Call Start
// before interacting and Stop to collect the result.
func NewStageDirector(t testing.TB, model NarrativeModel) *StageDirector {
	return NewStageDirectorWithConfig(t, model, DefaultStageConfig())
}

// NewStageDirectorWithConfig creates a director with config.
func NewStageDirectorWithConfig(t testing.TB, model NarrativeModel, config StageConfig) *StageDirector {
	if config.Timeout <= 0 {
		config.Timeout = DefaultStageConfig().Timeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultStageConfig().BufferSize
	}
	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)

	director := &StageDirector{
		t:           t,
		model:       model,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		stopSync:    make(chan struct{}),
		syncDone:    make(chan struct{}),
		config:      config,
		modelChan:   make(chan modelUpdate, config.BufferSize),
		latest:      captureFrame(model),
		tripHandler: trip.NewHandler("stage_director", trip.DefaultPolicy()),
	}

	go director.syncModelUpdates()
	return director
}
