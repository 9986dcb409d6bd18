package dolly

import (
	"fmt"
	"time"
)

// Direction is the sign of navigation.
type Direction int

const (
	DirectionNone Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*d = DirectionNone
	case "forward":
		*d = Forward
	case "backward":
		*d = Backward
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

func directionOf(delta float64) Direction {
	switch {
	case delta > 0:
		return Forward
	case delta < 0:
		return Backward
	default:
		return DirectionNone
	}
}

// NarrativeState is the single source of truth for what is on screen.
// Only the Controller mutates it; everyone else receives copies.
type NarrativeState struct {
	Stage       int       `json:"stage" yaml:"stage"`
	Progress    float64   `json:"progress" yaml:"progress"`
	Direction   Direction `json:"direction" yaml:"direction"`
	Locked      bool      `json:"locked" yaml:"locked"`
	Accumulator float64   `json:"accumulator" yaml:"accumulator"`
	// Released is set once the terminal panel is fully revealed and the scroll
	// lock has been handed back to the host.
	Released bool `json:"released" yaml:"released"`
}

// Transition is the timed, locked interval during which the stage changes.
type Transition struct {
	From      int
	To        int
	Direction Direction
	StartedAt time.Time
	Duration  time.Duration
}

// Elapsed returns the clamped fraction of the transition completed at now.
func (t Transition) Elapsed(now time.Time) float64 {
	if t.Duration <= 0 {
		return 1
	}
	return clamp01(float64(now.Sub(t.StartedAt)) / float64(t.Duration))
}

// Done reports whether now - StartedAt >= Duration.
func (t Transition) Done(now time.Time) bool {
	return now.Sub(t.StartedAt) >= t.Duration
}

// Layout is the viewport in layout units: pixels in a browser, cells in a terminal.
type Layout struct {
	Width  int
	Height int
}

// DefaultLayout is the 80x24 terminal.
var DefaultLayout = Layout{Width: 80, Height: 24}

func (l Layout) valid() bool { return l.Width > 0 && l.Height > 0 }
