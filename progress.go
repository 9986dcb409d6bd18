package dolly

// PanelProgress is what a panel needs to draw itself for one frame.
type PanelProgress struct {
	Opacity float64
	// TransformOffsetPx is the vertical slide in layout units (pixels in a
	// browser, rows in a terminal). Positive moves the panel down.
	TransformOffsetPx float64
	ContentVisible    bool
}

// MapProgress maps a position on the panel's own timeline to its visuals.
//
// Opacity rises across Entry and falls across Exit with the panel's easing
// curves. Positions outside [0,1] clamp to the edges; nothing extrapolates.
func MapProgress(p Panel, position float64, layout Layout) PanelProgress {
	entryEase, _ := LookupEasing(p.EntryEasing)
	exitEase, _ := LookupEasing(p.ExitEasing)

	x := clamp01(position)
	in := clamp01(entryEase(p.Entry.Fraction(x)))
	out := clamp01(exitEase(p.Exit.Fraction(x)))

	opacity := clamp01(in * (1 - out))
	h := float64(layout.Height)
	offset := (1-in)*p.EnterOffset*h - out*p.ExitOffset*h

	return PanelProgress{
		Opacity:           opacity,
		TransformOffsetPx: offset,
		ContentVisible:    opacity > 0,
	}
}

// Role is a panel's part in the current frame.
type Role int

const (
	RoleHidden Role = iota
	RoleActive
	RoleIncoming
	RoleOutgoing
)

func (r Role) String() string {
	switch r {
	case RoleActive:
		return "active"
	case RoleIncoming:
		return "incoming"
	case RoleOutgoing:
		return "outgoing"
	default:
		return "hidden"
	}
}

// Timeline converts narrative progress into a position on p's timeline.
//
// sub is the panel's own sub-scroll progress in [0,1]. An active Reveal panel
// runs from 0 to the start of its exit window as the reveal completes, so a
// fully revealed panel stays on screen.
func Timeline(p Panel, role Role, dir Direction, progress, sub float64) float64 {
	progress = clamp01(progress)
	rest := p.rest(sub)

	switch role {
	case RoleActive:
		if p.Reveal {
			return lerp(0, p.Exit.T0, progress)
		}
		return rest
	case RoleOutgoing:
		if dir == Backward {
			return lerp(rest, 0, progress)
		}
		return lerp(rest, p.Exit.T1, progress)
	case RoleIncoming:
		if dir == Backward {
			return lerp(p.Exit.T1, rest, progress)
		}
		if p.Reveal {
			return 0
		}
		return lerp(0, rest, progress)
	default:
		return 0
	}
}
