package dolly

import (
	"math"

	"go.uber.org/zap"

	"github.com/teranos/dolly/trip"
)

// SignalSource normalizes raw input into one dimensionless signal and keeps
// the decaying accumulator.
//
// Dolly uses the delta-accumulator model: every input becomes a signed delta,
// and the controller compares the accumulated delta against the threshold.
// Absolute scroll offsets are converted to deltas against the previous offset.
type SignalSource struct {
	cfg    Config
	rt     Runtime
	locks  *LockManager
	layout Layout

	acc           float64
	decayTimer    Timer
	decayDisabled bool

	lastSeq    uint64
	dropped    int
	lastOffset float64
	hasOffset  bool

	onSignal func(delta float64)
	detach   Unsubscribe
}

// NewSignalSource returns a source using cfg's decay and scaling knobs.
// locks decides whether attached input is consumed; it may be nil.
func NewSignalSource(cfg Config, rt Runtime, locks *LockManager) *SignalSource {
	return &SignalSource{
		cfg:    cfg,
		rt:     rt.withDefaults(),
		locks:  locks,
		layout: DefaultLayout,
	}
}

// OnSignal routes normalized signal to fn instead of straight into the
// accumulator. The controller uses this to see every delta first.
func (s *SignalSource) OnSignal(fn func(delta float64)) {
	s.onSignal = fn
}

// Attach listens on hub. Attached input is consumed while the scroll lock is
// held, so the host only scrolls natively once the lock has been released.
func (s *SignalSource) Attach(hub *InputHub) {
	if s.detach != nil {
		s.detach()
	}
	s.detach = hub.Listen(s.handle)
}

func (s *SignalSource) handle(in Input) bool {
	consumed := s.locks != nil && s.locks.Held()

	if in.Seq != 0 {
		if in.Seq <= s.lastSeq {
			s.dropped++
			s.rt.warn(trip.InputAnomaly("duplicate or out-of-order input dropped", trip.Context{
				"kind": in.Kind.String(),
				"seq":  in.Seq,
				"last": s.lastSeq,
			}))
			return consumed
		}
		s.lastSeq = in.Seq
	}

	delta, err := s.Normalize(in)
	if err != nil {
		if t, ok := trip.As(err); ok {
			s.rt.warn(t)
		}
		return consumed
	}
	if delta == 0 {
		return consumed
	}

	if s.onSignal != nil {
		s.onSignal(delta)
	} else if err := s.OnRawInput(delta); err != nil {
		s.rt.Logger.Debug("raw input rejected", zap.Error(err))
	}
	return consumed
}

// Normalize converts in to a signal delta. Scroll offsets are stateful: the
// first offset only sets the baseline and yields 0.
func (s *SignalSource) Normalize(in Input) (float64, error) {
	var delta float64
	switch in.Kind {
	case KindWheel, KindKey:
		delta = in.Delta
	case KindTouch:
		delta = in.Delta * s.cfg.TouchScale
	case KindScrollOffset:
		if !finite(in.Offset) {
			return 0, anomaly(in, in.Offset)
		}
		if !s.hasOffset {
			s.lastOffset, s.hasOffset = in.Offset, true
			return 0, nil
		}
		delta = (in.Offset - s.lastOffset) * s.cfg.UnitsPerViewport / float64(s.layout.Height)
		s.lastOffset = in.Offset
	default:
		return 0, trip.InputAnomaly("unknown input kind", trip.Context{"kind": int(in.Kind)})
	}
	if !finite(delta) {
		return 0, anomaly(in, delta)
	}
	return delta, nil
}

// OnRawInput adds delta to the accumulator and arms decay.
func (s *SignalSource) OnRawInput(delta float64) error {
	if !finite(delta) {
		return anomaly(Input{Kind: KindWheel, Delta: delta}, delta)
	}
	s.acc += delta
	s.armDecay()
	return nil
}

// CurrentAccumulator returns the accumulated signal.
func (s *SignalSource) CurrentAccumulator() float64 { return s.acc }

// Reset zeroes the accumulator and stops decay.
func (s *SignalSource) Reset() {
	s.acc = 0
	s.stopDecay()
}

// Dropped returns how many sequenced inputs were discarded as repeats.
func (s *SignalSource) Dropped() int { return s.dropped }

// DecayDisabled reports whether the source runs without decay because the
// scheduler could not arm a timer.
func (s *SignalSource) DecayDisabled() bool { return s.decayDisabled }

// SetLayout recomputes the scroll offset scale. It does not emit any signal.
func (s *SignalSource) SetLayout(l Layout) {
	if l.valid() {
		s.layout = l
	}
}

// Dispose detaches from the hub and cancels decay.
func (s *SignalSource) Dispose() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.stopDecay()
}

func (s *SignalSource) armDecay() {
	if s.decayTimer != nil || s.decayDisabled || s.acc == 0 {
		return
	}
	t, err := s.rt.Scheduler.After(s.cfg.DecayInterval, s.decay)
	if err != nil {
		s.decayDisabled = true
		s.rt.warn(trip.TimerFailure("accumulator decay disabled", trip.Context{
			"interval": s.cfg.DecayInterval.String(),
			"error":    err.Error(),
		}))
		return
	}
	s.decayTimer = t
}

func (s *SignalSource) decay() {
	s.decayTimer = nil
	s.acc *= s.cfg.DecayRate
	if math.Abs(s.acc) < 1 {
		s.acc = 0
		return
	}
	s.armDecay()
}

func (s *SignalSource) stopDecay() {
	if s.decayTimer != nil {
		s.decayTimer.Stop()
		s.decayTimer = nil
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func anomaly(in Input, value float64) *trip.Trip {
	return trip.InputAnomaly("non-finite input discarded", trip.Context{
		"kind":  in.Kind.String(),
		"value": value,
	})
}
