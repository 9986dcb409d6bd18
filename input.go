package dolly

import "fmt"

// InputKind says where an input came from.
type InputKind int

const (
	KindWheel InputKind = iota
	KindTouch
	KindScrollOffset
	KindKey
)

func (k InputKind) String() string {
	switch k {
	case KindWheel:
		return "wheel"
	case KindTouch:
		return "touch"
	case KindScrollOffset:
		return "scroll"
	case KindKey:
		return "key"
	default:
		return fmt.Sprintf("InputKind(%d)", int(k))
	}
}

// Input is one raw input event.
type Input struct {
	Kind InputKind
	// Delta is the signed movement for wheel, touch and key inputs. Positive
	// moves forward through the narrative.
	Delta float64
	// Offset is the absolute page scroll offset in layout units for
	// KindScrollOffset inputs.
	Offset float64
	// Seq, when non-zero, must increase strictly. Repeated or older sequence
	// numbers are dropped.
	Seq uint64
}

// Wheel returns a wheel input.
func Wheel(delta float64) Input { return Input{Kind: KindWheel, Delta: delta} }

// Touch returns a touch-move input.
func Touch(delta float64) Input { return Input{Kind: KindTouch, Delta: delta} }

// ScrollOffset returns an absolute page scroll input.
func ScrollOffset(offset float64) Input { return Input{Kind: KindScrollOffset, Offset: offset} }

// Key returns a keyboard scroll input worth delta units.
func Key(delta float64) Input { return Input{Kind: KindKey, Delta: delta} }

// WithSeq returns a copy of in carrying sequence number seq.
func (in Input) WithSeq(seq uint64) Input {
	in.Seq = seq
	return in
}

// InputListener sees an input before the host does. Returning true consumes
// it: the host must not apply its native scrolling.
type InputListener func(in Input) (consumed bool)

// InputHub fans raw input out to listeners in registration order.
type InputHub struct {
	listeners []*hubListener
}

type hubListener struct {
	fn     InputListener
	active bool
}

// NewInputHub returns a hub with no listeners.
func NewInputHub() *InputHub { return &InputHub{} }

// Listen registers l.
func (h *InputHub) Listen(l InputListener) Unsubscribe {
	hl := &hubListener{fn: l, active: true}
	h.listeners = append(h.listeners, hl)
	return func() {
		if !hl.active {
			return
		}
		hl.active = false
		for i, other := range h.listeners {
			if other == hl {
				h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers in to every listener and reports whether any consumed it.
func (h *InputHub) Dispatch(in Input) bool {
	snapshot := make([]*hubListener, len(h.listeners))
	copy(snapshot, h.listeners)

	consumed := false
	for _, l := range snapshot {
		if l.active && l.fn(in) {
			consumed = true
		}
	}
	return consumed
}

// Len returns the number of listeners.
func (h *InputHub) Len() int { return len(h.listeners) }
