package dolly

import (
	"math"
	"sort"
)

// Easing maps a progress value t in [0,1] to an eased value in [0,1].
type Easing func(t float64) float64

// Easing names accepted in panel configuration.
const (
	EaseLinear     = "linear"
	EaseOutCubic   = "ease-out-cubic"
	EaseInCubic    = "ease-in-cubic"
	EaseInOutCubic = "ease-in-out-cubic"
	EaseOutQuad    = "ease-out-quad"
	EaseInQuad     = "ease-in-quad"
)

// Easings is the table of named curves. Credits use ease-out-cubic for the
// slide-in and ease-out-quad for the content scale.
var Easings = map[string]Easing{
	EaseLinear: func(t float64) float64 { return t },
	EaseOutCubic: func(t float64) float64 {
		return 1 - math.Pow(1-t, 3)
	},
	EaseInCubic: func(t float64) float64 { return t * t * t },
	EaseInOutCubic: func(t float64) float64 {
		if t < 0.5 {
			return 4 * t * t * t
		}
		return 1 - math.Pow(-2*t+2, 3)/2
	},
	EaseOutQuad: func(t float64) float64 { return 1 - (1-t)*(1-t) },
	EaseInQuad:  func(t float64) float64 { return t * t },
}

// LookupEasing returns the named curve. Empty names resolve to linear.
func LookupEasing(name string) (Easing, bool) {
	if name == "" {
		name = EaseLinear
	}
	e, ok := Easings[name]
	return e, ok
}

// EasingNames lists the known curve names, sorted.
func EasingNames() []string {
	names := make([]string, 0, len(Easings))
	for name := range Easings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
