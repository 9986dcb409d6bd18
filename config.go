package dolly

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/dolly/trip"
)

// Navigation selects which directions may transition.
type Navigation string

const (
	Bidirectional Navigation = "bidirectional"
	ForwardOnly   Navigation = "forward_only"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Navigation) UnmarshalText(text []byte) error {
	switch v := Navigation(strings.TrimSpace(string(text))); v {
	case "":
		*n = Bidirectional
	case Bidirectional, ForwardOnly:
		*n = v
	default:
		return fmt.Errorf("unknown navigation %q", text)
	}
	return nil
}

// ReadinessGate selects where a WaitForSignal panel blocks navigation.
// GateEntry holds the viewer on the panel before the waiting one; GateExit
// holds them on the waiting panel itself.
type ReadinessGate string

const (
	// GateExit keeps the waiting panel from being left until it is ready.
	GateExit ReadinessGate = "exit"
	// GateEntry keeps the waiting panel from being entered until it is ready.
	GateEntry ReadinessGate = "entry"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *ReadinessGate) UnmarshalText(text []byte) error {
	switch v := ReadinessGate(strings.TrimSpace(string(text))); v {
	case "":
		*g = GateExit
	case GateExit, GateEntry:
		*g = v
	default:
		return fmt.Errorf("unknown readiness gate %q", text)
	}
	return nil
}

// Config tunes the orchestrator.
type Config struct {
	// ScrollThreshold is the accumulated magnitude that advances one stage.
	ScrollThreshold float64 `yaml:"scroll_threshold" env:"SCROLL_THRESHOLD"`
	// TransitionDuration is the default locked interval of a stage change.
	TransitionDuration time.Duration `yaml:"transition_duration" env:"TRANSITION_DURATION"`
	// Transitions overrides the duration per pair, keyed "from->to" by order.
	Transitions map[string]time.Duration `yaml:"transitions"`

	DecayRate     float64       `yaml:"decay_rate" env:"DECAY_RATE"`
	DecayInterval time.Duration `yaml:"decay_interval" env:"DECAY_INTERVAL"`
	// Cooldown drops input after a transition completes.
	Cooldown time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	// RevealRange is the input needed to fully reveal the terminal panel.
	RevealRange float64 `yaml:"reveal_range" env:"REVEAL_RANGE"`

	// TouchScale multiplies touch deltas.
	TouchScale float64 `yaml:"touch_scale" env:"TOUCH_SCALE"`
	// UnitsPerViewport is the signal produced by scrolling one viewport height.
	UnitsPerViewport float64 `yaml:"units_per_viewport" env:"UNITS_PER_VIEWPORT"`

	Navigation    Navigation    `yaml:"navigation" env:"NAVIGATION"`
	ReadinessGate ReadinessGate `yaml:"readiness_gate" env:"READINESS_GATE"`
}

// DefaultConfig returns the tuning used by the bundled story.
func DefaultConfig() Config {
	return Config{
		ScrollThreshold:    100,
		TransitionDuration: 1500 * time.Millisecond,
		DecayRate:          0.9,
		DecayInterval:      50 * time.Millisecond,
		Cooldown:           300 * time.Millisecond,
		RevealRange:        300,
		TouchScale:         1.5,
		UnitsPerViewport:   100,
		Navigation:         Bidirectional,
		ReadinessGate:      GateExit,
	}
}

// TransitionKey formats the override key for a pair of stages.
func TransitionKey(from, to int) string {
	return strconv.Itoa(from) + "->" + strconv.Itoa(to)
}

// DurationFor returns the transition duration from one stage to another.
func (c Config) DurationFor(from, to int) time.Duration {
	if d, ok := c.Transitions[TransitionKey(from, to)]; ok {
		return d
	}
	return c.TransitionDuration
}

// Validate reports the first invalid field as a config trip.
func (c Config) Validate() error {
	bad := func(field string, value any) error {
		return trip.Config("invalid configuration", trip.Context{"field": field, "value": value})
	}
	switch {
	case !(c.ScrollThreshold > 0) || math.IsInf(c.ScrollThreshold, 0):
		return bad("scroll_threshold", c.ScrollThreshold)
	case c.TransitionDuration < 0:
		return bad("transition_duration", c.TransitionDuration)
	case !(c.DecayRate >= 0 && c.DecayRate < 1):
		return bad("decay_rate", c.DecayRate)
	case c.DecayInterval <= 0:
		return bad("decay_interval", c.DecayInterval)
	case c.Cooldown < 0:
		return bad("cooldown", c.Cooldown)
	case !(c.RevealRange > 0):
		return bad("reveal_range", c.RevealRange)
	case !(c.TouchScale > 0):
		return bad("touch_scale", c.TouchScale)
	case !(c.UnitsPerViewport > 0):
		return bad("units_per_viewport", c.UnitsPerViewport)
	}
	if c.Navigation != "" && c.Navigation != Bidirectional && c.Navigation != ForwardOnly {
		return bad("navigation", c.Navigation)
	}
	if c.ReadinessGate != "" && c.ReadinessGate != GateExit && c.ReadinessGate != GateEntry {
		return bad("readiness_gate", c.ReadinessGate)
	}
	for key, d := range c.Transitions {
		var from, to int
		if _, err := fmt.Sscanf(key, "%d->%d", &from, &to); err != nil || TransitionKey(from, to) != key {
			return bad("transitions", key)
		}
		if d < 0 {
			return bad("transitions."+key, d)
		}
	}
	return nil
}

func (c Config) gate() ReadinessGate {
	if c.ReadinessGate == "" {
		return GateExit
	}
	return c.ReadinessGate
}

func (c Config) backwardAllowed() bool {
	return c.Navigation != ForwardOnly
}
