// Package dolly orchestrates scroll-driven narratives.
//
// A narrative is an ordered registry of full-viewport panels. Dolly turns one
// continuous input signal (wheel delta, touch delta or page scroll offset) into
// a discrete stage decision plus continuous per-panel animation progress, and
// hands exclusive scroll control back to the host once the last panel has been
// revealed. Like a camera dolly on its track, the viewer moves in one axis and
// the rig decides when the frame changes.
//
// Basic usage:
//
//	clock := dolly.NewFrameClock(time.Now())
//	orch, err := dolly.New(panels, dolly.DefaultConfig(),
//		dolly.WithScheduler(clock),
//		dolly.WithLogger(logger))
//	if err != nil {
//		return err // ConfigError: nothing was mounted
//	}
//	defer orch.Dispose()
//
//	orch.Mount()
//	orch.Bus().Publish(dolly.EventUnlock, nil)
//	orch.Feed(dolly.Wheel(40))
//
//	// once per frame
//	clock.Advance(now)
//	orch.Tick()
//	for _, view := range orch.Views() {
//		render(view)
//	}
//
// Dolly is single-threaded. It starts no goroutines and every timer callback
// runs inside FrameClock.Advance, on the caller's goroutine.
package dolly

import "fmt"

// AdvanceMode controls whether a panel can be left on threshold alone.
type AdvanceMode int

const (
	// AutoOnThreshold advances as soon as the accumulator crosses the threshold.
	AutoOnThreshold AdvanceMode = iota
	// WaitForSignal additionally needs the panel to publish EventReady.
	WaitForSignal
)

func (m AdvanceMode) String() string {
	switch m {
	case AutoOnThreshold:
		return "auto"
	case WaitForSignal:
		return "wait"
	default:
		return fmt.Sprintf("AdvanceMode(%d)", int(m))
	}
}

// UnmarshalText parses "auto" or "wait".
func (m *AdvanceMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "auto", "auto_on_threshold":
		*m = AutoOnThreshold
	case "wait", "wait_for_signal":
		*m = WaitForSignal
	default:
		return fmt.Errorf("unknown advance mode %q", text)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m AdvanceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Window is a sub-interval of a panel's [0,1] timeline.
type Window struct {
	T0 float64
	T1 float64
}

// Span returns T1-T0.
func (w Window) Span() float64 { return w.T1 - w.T0 }

// Fraction returns how far x is through the window, clamped to [0,1].
func (w Window) Fraction(x float64) float64 {
	if x <= w.T0 {
		return 0
	}
	if x >= w.T1 {
		return 1
	}
	return (x - w.T0) / w.Span()
}

func (w Window) String() string {
	return fmt.Sprintf("[%g %g]", w.T0, w.T1)
}

// Panel describes one full-viewport narrative unit.
//
// The panel timeline runs from 0 (not yet entered) to 1 (fully exited). The
// panel fades in across Entry, rests between Entry.T1 and Exit.T0, and fades
// out across Exit.
type Panel struct {
	ID      string
	Order   int
	Advance AdvanceMode
	Entry   Window
	Exit    Window

	// EntryEasing and ExitEasing name curves from Easings. Empty means linear.
	EntryEasing string
	ExitEasing  string

	// EnterOffset and ExitOffset are slide distances as a fraction of the
	// viewport height. Entering panels slide up from +EnterOffset, exiting
	// panels slide away to -ExitOffset.
	EnterOffset float64
	ExitOffset  float64

	// SubScrollRange, when positive, lets input move the panel through its
	// rest interval even while transitions are locked.
	SubScrollRange float64

	// Reveal marks the terminal panel as progressively revealed: input maps
	// straight to progress instead of crossing a threshold.
	Reveal bool
}

// rest returns the timeline position of the panel when it is fully shown.
func (p Panel) rest(sub float64) float64 {
	return lerp(p.Entry.T1, p.Exit.T0, clamp01(sub))
}
