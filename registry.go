package dolly

import (
	"fmt"
	"sort"

	"github.com/teranos/dolly/trip"
)

// Registry is the immutable, ordered list of panels of one narrative.
type Registry struct {
	panels []Panel
	byID   map[string]int
}

// NewRegistry validates panels and returns a registry ordered by Panel.Order.
//
// It fails with a config trip (errors.Is(err, trip.ErrConfig)) when:
//   - the list is empty, or orders are not zero-based and contiguous
//   - an ID is empty or duplicated
//   - a window breaks 0 <= Entry.T0 < Entry.T1 <= Exit.T0 < Exit.T1 <= 1
//   - an easing name is unknown
//   - a range or offset is negative, or a non-final panel is Reveal
func NewRegistry(panels []Panel) (*Registry, error) {
	if len(panels) == 0 {
		return nil, trip.Config("registry has no panels", nil)
	}

	sorted := make([]Panel, len(panels))
	copy(sorted, panels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	byID := make(map[string]int, len(sorted))
	for i, p := range sorted {
		if p.Order != i {
			return nil, trip.Config("panel orders must be zero-based and contiguous", trip.Context{
				"panel":    p.ID,
				"order":    p.Order,
				"expected": i,
			})
		}
		if p.ID == "" {
			return nil, trip.Config("panel id is empty", trip.Context{"order": p.Order})
		}
		if prev, dup := byID[p.ID]; dup {
			return nil, trip.Config("duplicate panel id", trip.Context{
				"panel":  p.ID,
				"orders": fmt.Sprintf("%d,%d", prev, p.Order),
			})
		}
		byID[p.ID] = i

		if err := validateWindows(p); err != nil {
			return nil, err
		}
		for _, name := range []string{p.EntryEasing, p.ExitEasing} {
			if _, ok := LookupEasing(name); !ok {
				return nil, trip.Config("unknown easing", trip.Context{
					"panel":  p.ID,
					"easing": name,
					"known":  EasingNames(),
				})
			}
		}
		if p.SubScrollRange < 0 || p.EnterOffset < 0 || p.ExitOffset < 0 {
			return nil, trip.Config("ranges and offsets must not be negative", trip.Context{"panel": p.ID})
		}
		if p.Reveal && i != len(sorted)-1 {
			return nil, trip.Config("only the last panel can be progressively revealed", trip.Context{
				"panel": p.ID,
				"order": p.Order,
			})
		}
	}

	return &Registry{panels: sorted, byID: byID}, nil
}

func validateWindows(p Panel) error {
	e, x := p.Entry, p.Exit
	ok := 0 <= e.T0 && e.T0 < e.T1 && e.T1 <= x.T0 && x.T0 < x.T1 && x.T1 <= 1
	if ok {
		return nil
	}
	return trip.Config("panel windows must satisfy 0 <= entry.t0 < entry.t1 <= exit.t0 < exit.t1 <= 1", trip.Context{
		"panel": p.ID,
		"entry": e.String(),
		"exit":  x.String(),
	})
}

// Get returns the panel with the given order.
func (r *Registry) Get(order int) (Panel, bool) {
	if order < 0 || order >= len(r.panels) {
		return Panel{}, false
	}
	return r.panels[order], true
}

// MustGet returns the panel with the given order and panics when it is out of range.
func (r *Registry) MustGet(order int) Panel {
	p, ok := r.Get(order)
	if !ok {
		panic(fmt.Sprintf("dolly: panel order %d out of range [0,%d]", order, r.Last()))
	}
	return p
}

// Lookup returns the panel with the given id.
func (r *Registry) Lookup(id string) (Panel, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Panel{}, false
	}
	return r.panels[i], true
}

// Count returns the number of panels.
func (r *Registry) Count() int { return len(r.panels) }

// Last returns the order of the final panel.
func (r *Registry) Last() int { return len(r.panels) - 1 }

// Panels returns a copy of the ordered panel list.
func (r *Registry) Panels() []Panel {
	out := make([]Panel, len(r.panels))
	copy(out, r.panels)
	return out
}

// Next returns the neighbour of order in direction dir. It returns false at
// either end of the narrative and for DirectionNone.
func (r *Registry) Next(order int, dir Direction) (int, bool) {
	var next int
	switch dir {
	case Forward:
		next = order + 1
	case Backward:
		next = order - 1
	default:
		return 0, false
	}
	if next < 0 || next >= len(r.panels) {
		return 0, false
	}
	return next, true
}
