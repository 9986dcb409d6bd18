package dolly

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/dolly/trip"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testPanels(n int) []Panel {
	panels := make([]Panel, n)
	for i := range panels {
		panels[i] = Panel{
			ID:          fmt.Sprintf("p%d", i),
			Order:       i,
			Entry:       Window{T0: 0, T1: 0.25},
			Exit:        Window{T0: 0.75, T1: 1},
			EntryEasing: EaseOutCubic,
			EnterOffset: 0.1,
			ExitOffset:  0.1,
		}
	}
	return panels
}

type rig struct {
	t      *testing.T
	orch   *Orchestrator
	clock  *FrameClock
	starts []Transition
	ends   []Transition
}

func newRig(t *testing.T, panels []Panel, mutate func(*Config), opts ...Option) *rig {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := NewFrameClock(epoch)
	orch, err := New(panels, cfg, append([]Option{WithScheduler(clock)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, orch.Mount())
	t.Cleanup(orch.Dispose)

	r := &rig{t: t, orch: orch, clock: clock}
	orch.Bus().Subscribe(EventTransitionStart, func(p any) { r.starts = append(r.starts, p.(Transition)) })
	orch.Bus().Subscribe(EventTransitionEnd, func(p any) { r.ends = append(r.ends, p.(Transition)) })
	return r
}

func (r *rig) unlocked() *rig {
	require.NoError(r.t, r.orch.Unlock())
	return r
}

func (r *rig) wheel(deltas ...float64) {
	for _, d := range deltas {
		r.orch.Feed(Wheel(d))
	}
}

// settle lets a transition and its cooldown run out.
func (r *rig) settle() {
	cfg := r.orch.Config()
	r.clock.Step(cfg.TransitionDuration)
	r.orch.Tick()
	r.clock.Step(cfg.Cooldown)
}

func (r *rig) state() NarrativeState { return r.orch.State() }

func TestScenarioA_LeftoverDoesNotRetrigger(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()

	r.wheel(40, 40, 40)

	require.Len(t, r.starts, 1)
	assert.Equal(t, 0, r.starts[0].From)
	assert.Equal(t, 1, r.starts[0].To)
	assert.Equal(t, 0.0, r.state().Accumulator)
	assert.True(t, r.state().Locked)

	r.settle()
	r.clock.Step(5 * time.Second)

	assert.Len(t, r.starts, 1)
	assert.Equal(t, 1, r.state().Stage)
	assert.False(t, r.state().Locked)
	assert.Equal(t, 0.0, r.state().Accumulator)
}

func TestScenarioB_WaitForSignal(t *testing.T) {
	panels := testPanels(3)
	panels[1].Advance = WaitForSignal

	t.Run("entry gate", func(t *testing.T) {
		r := newRig(t, panels, func(c *Config) { c.ReadinessGate = GateEntry }).unlocked()

		r.wheel(50, 50, 50)
		assert.Empty(t, r.starts)
		assert.Equal(t, 0, r.state().Stage)
		assert.False(t, r.state().Locked)
		assert.Equal(t, 150.0, r.state().Accumulator, "crossings are buffered as accumulator growth")

		r.clock.Step(5 * time.Second)
		require.Equal(t, 0.0, r.state().Accumulator)

		require.NoError(t, r.orch.Bus().Publish(EventReady, "p1"))
		assert.Empty(t, r.starts, "readiness alone does not advance")

		r.wheel(100)
		require.Len(t, r.starts, 1)
		assert.Equal(t, 1, r.starts[0].To)
	})

	t.Run("exit gate", func(t *testing.T) {
		r := newRig(t, panels, nil).unlocked()

		r.wheel(100)
		require.Len(t, r.starts, 1, "entering the waiting panel is allowed")
		r.settle()
		require.Equal(t, 1, r.state().Stage)

		r.wheel(50, 50, 50)
		assert.Len(t, r.starts, 1)
		assert.Equal(t, 1, r.state().Stage)

		require.NoError(t, r.orch.Bus().Publish(EventReady, "p1"))
		r.wheel(1)
		require.Len(t, r.starts, 2)
		assert.Equal(t, 2, r.starts[1].To)
	})

	t.Run("backward is never gated", func(t *testing.T) {
		r := newRig(t, panels, nil).unlocked()
		r.wheel(100)
		r.settle()

		r.wheel(-100)
		require.Len(t, r.starts, 2)
		assert.Equal(t, Backward, r.starts[1].Direction)
	})
}

func TestNeverReadyStallsForward(t *testing.T) {
	panels := testPanels(3)
	panels[0].Advance = WaitForSignal
	r := newRig(t, panels, nil).unlocked()

	for i := 0; i < 50; i++ {
		r.wheel(500)
		r.clock.Step(time.Second)
		r.orch.Tick()
	}

	assert.Empty(t, r.starts)
	assert.Equal(t, 0, r.state().Stage)
	assert.False(t, r.orch.Controller().Ready("p0"))
}

func TestScenarioC_ProgressiveReveal(t *testing.T) {
	panels := testPanels(3)
	panels[2].Reveal = true
	r := newRig(t, panels, nil).unlocked()

	r.wheel(100)
	r.settle()
	r.wheel(100)
	r.settle()
	require.Equal(t, 2, r.state().Stage)
	require.Equal(t, 1, r.orch.Locks().Count())

	rng := r.orch.Config().RevealRange
	r.wheel(rng*0.25, rng*0.25)
	assert.Equal(t, 0.5, r.state().Progress)
	assert.Len(t, r.starts, 2, "reveal never starts a transition")
	assert.False(t, r.state().Locked)
	assert.Equal(t, 1, r.orch.Locks().Count())

	var released []StageEvent
	r.orch.Bus().Subscribe(EventReleased, func(p any) { released = append(released, p.(StageEvent)) })

	r.wheel(rng * 0.5)
	assert.Equal(t, 1.0, r.state().Progress)
	assert.True(t, r.state().Released)
	assert.Equal(t, 0, r.orch.Locks().Count())
	assert.False(t, r.orch.Locks().Held())
	require.Len(t, released, 1)

	assert.False(t, r.orch.Feed(Wheel(40)), "released input scrolls natively")
	assert.Equal(t, 1.0, r.state().Progress)
	assert.Len(t, r.starts, 2)
}

func TestRevealReversesIntoBackwardTransition(t *testing.T) {
	panels := testPanels(2)
	panels[1].Reveal = true
	r := newRig(t, panels, nil).unlocked()
	r.wheel(100)
	r.settle()

	r.wheel(120)
	assert.InDelta(t, 0.4, r.state().Progress, 1e-9)

	r.wheel(-60)
	assert.InDelta(t, 0.2, r.state().Progress, 1e-9)

	r.wheel(-60, -100)
	assert.Equal(t, 0.0, r.state().Progress)
	require.Len(t, r.starts, 2)
	assert.Equal(t, Backward, r.starts[1].Direction)
}

func TestScenarioD_BurstCreatesOneTransition(t *testing.T) {
	r := newRig(t, testPanels(4), nil).unlocked()

	for i := 0; i < 10; i++ {
		r.orch.Feed(Wheel(150))
	}

	require.Len(t, r.starts, 1)
	tr, ok := r.orch.Controller().Transition()
	require.True(t, ok)
	assert.Equal(t, 1, tr.To)
	assert.Equal(t, 9*150.0, r.state().Accumulator, "accepted into the accumulator")

	r.settle()
	r.clock.Step(time.Second)

	assert.Len(t, r.starts, 1)
	assert.Equal(t, 1, r.state().Stage)
	assert.Equal(t, 0.0, r.state().Accumulator)
}

func TestCooldownDropsInput(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.wheel(100)
	r.clock.Step(r.orch.Config().TransitionDuration)

	require.True(t, r.orch.Controller().Cooling())
	r.wheel(500)
	assert.Equal(t, 0.0, r.state().Accumulator)
	assert.Len(t, r.starts, 1)

	r.clock.Step(r.orch.Config().Cooldown)
	assert.False(t, r.orch.Controller().Cooling())
	r.wheel(100)
	assert.Len(t, r.starts, 2)
}

func TestIdempotence(t *testing.T) {
	t.Run("repeated sub-threshold event", func(t *testing.T) {
		r := newRig(t, testPanels(3), nil).unlocked()
		in := Wheel(60).WithSeq(7)
		for i := 0; i < 20; i++ {
			r.orch.Feed(in)
		}
		assert.Empty(t, r.starts)
		assert.Equal(t, 60.0, r.state().Accumulator)
		assert.Equal(t, 19, r.orch.Source().Dropped())
	})

	t.Run("out of order event", func(t *testing.T) {
		r := newRig(t, testPanels(3), nil).unlocked()
		r.orch.Feed(Wheel(60).WithSeq(5))
		r.orch.Feed(Wheel(60).WithSeq(4))
		assert.Empty(t, r.starts)
		assert.Equal(t, 1, r.orch.Trips().CountType(trip.TypeInput))
	})

	t.Run("exactly threshold in one burst", func(t *testing.T) {
		r := newRig(t, testPanels(3), nil).unlocked()
		r.wheel(r.orch.Config().ScrollThreshold)
		r.settle()
		r.clock.Step(5 * time.Second)
		assert.Len(t, r.starts, 1)
		assert.Equal(t, 1, r.state().Stage)
	})
}

func TestReversibility(t *testing.T) {
	r := newRig(t, testPanels(4), nil).unlocked()
	r.wheel(100)
	r.settle()
	r.wheel(100)
	r.settle()
	require.Equal(t, 2, r.state().Stage)

	r.wheel(-100)
	r.settle()
	require.Equal(t, 1, r.state().Stage)
	r.wheel(100)
	r.settle()

	s := r.state()
	assert.Equal(t, 2, s.Stage)
	assert.Equal(t, 0.0, s.Accumulator)
	assert.False(t, s.Locked)
	_, moving := r.orch.Controller().Transition()
	assert.False(t, moving)
}

func TestBackwardAtStartIsNoop(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.wheel(-500, -500)
	assert.Empty(t, r.starts)
	assert.Equal(t, 0, r.state().Stage)
}

func TestForwardOnlyNavigation(t *testing.T) {
	r := newRig(t, testPanels(3), func(c *Config) { c.Navigation = ForwardOnly }).unlocked()
	r.wheel(100)
	r.settle()

	r.wheel(-300)
	assert.Len(t, r.starts, 1)
	assert.Equal(t, 1, r.state().Stage)
}

func TestIntroLock(t *testing.T) {
	r := newRig(t, testPanels(3), nil)
	require.True(t, r.state().Locked)

	r.wheel(99, 99, 99)
	assert.Empty(t, r.starts)
	assert.Zero(t, r.state().Accumulator, "locked input is dropped")

	require.NoError(t, r.orch.Bus().Publish(EventUnlock, nil))
	assert.False(t, r.state().Locked)

	r.wheel(0.5)
	assert.Empty(t, r.starts, "nothing carries over from the locked intro")

	r.wheel(100)
	require.Len(t, r.starts, 1)

	err := r.orch.Unlock()
	require.Error(t, err, "unlock is refused mid-transition")
	assert.True(t, errors.Is(err, trip.ErrTransition))
}

func TestSubScrollWhileLocked(t *testing.T) {
	panels := testPanels(3)
	panels[0].SubScrollRange = 200
	r := newRig(t, panels, nil)

	r.wheel(100)
	assert.Equal(t, 0.5, r.state().Progress)
	assert.Equal(t, 0, r.state().Stage)

	r.wheel(200)
	assert.Equal(t, 1.0, r.state().Progress)
	assert.Zero(t, r.state().Accumulator, "spill is dropped while locked")
	assert.Empty(t, r.starts)

	r.unlocked().wheel(1)
	assert.Empty(t, r.starts)
	assert.Equal(t, 1.0, r.state().Accumulator, "movement past the end spills over")

	r.wheel(99)
	assert.Len(t, r.starts, 1)
}

func TestTransitionDurationOverride(t *testing.T) {
	r := newRig(t, testPanels(3), func(c *Config) {
		c.Transitions = map[string]time.Duration{TransitionKey(0, 1): 200 * time.Millisecond}
	}).unlocked()

	r.wheel(100)
	require.Len(t, r.starts, 1)
	assert.Equal(t, 200*time.Millisecond, r.starts[0].Duration)

	r.clock.Step(100 * time.Millisecond)
	r.orch.Tick()
	assert.InDelta(t, 0.5, r.state().Progress, 1e-9)

	r.clock.Step(100 * time.Millisecond)
	assert.Equal(t, 1, r.state().Stage)
	require.Len(t, r.ends, 1)
}

func TestInvariantsUnderRandomInput(t *testing.T) {
	panels := testPanels(6)
	panels[2].Advance = WaitForSignal
	panels[3].SubScrollRange = 150
	panels[5].Reveal = true
	r := newRig(t, panels, nil).unlocked()

	rnd := rand.New(rand.NewSource(42))
	inFlight := 0
	r.orch.Bus().Subscribe(EventTransitionStart, func(any) {
		inFlight++
		assert.Equal(t, 1, inFlight, "at most one transition")
	})
	r.orch.Bus().Subscribe(EventTransitionEnd, func(any) { inFlight-- })

	for i := 0; i < 3000; i++ {
		switch rnd.Intn(10) {
		case 0:
			r.clock.Step(time.Duration(rnd.Intn(800)) * time.Millisecond)
			r.orch.Tick()
		case 1:
			_ = r.orch.Bus().Publish(EventReady, "p2")
		default:
			r.orch.Feed(Wheel(rnd.Float64()*300 - 120))
		}

		s := r.state()
		require.GreaterOrEqual(t, s.Progress, 0.0)
		require.LessOrEqual(t, s.Progress, 1.0)
		require.GreaterOrEqual(t, s.Stage, 0)
		require.LessOrEqual(t, s.Stage, r.orch.Registry().Last())
		for _, v := range r.orch.Views() {
			require.GreaterOrEqual(t, v.Progress.Opacity, 0.0)
			require.LessOrEqual(t, v.Progress.Opacity, 1.0)
		}
	}
}

func TestSnapshotRestoreReproducesViews(t *testing.T) {
	panels := testPanels(4)
	panels[1].SubScrollRange = 200
	panels[3].Reveal = true

	src := newRig(t, panels, nil).unlocked()
	src.wheel(100)
	src.settle()
	src.wheel(70)
	require.Equal(t, 1, src.state().Stage)
	require.InDelta(t, 0.35, src.state().Progress, 1e-9)

	snap := src.orch.Snapshot()
	dst := newRig(t, panels, nil)
	require.NoError(t, dst.orch.Restore(snap))

	if diff := cmp.Diff(src.orch.Views(), dst.orch.Views()); diff != "" {
		t.Errorf("views differ after restore (-src +dst):\n%s", diff)
	}
	assert.Equal(t, snap, dst.orch.Snapshot())
}

func TestSnapshotMidTransitionCompletes(t *testing.T) {
	panels := testPanels(3)
	src := newRig(t, panels, nil).unlocked()
	src.wheel(100)
	src.clock.Step(700 * time.Millisecond)
	src.orch.Tick()

	snap := src.orch.Snapshot()
	assert.Equal(t, 1, snap.Stage)
	assert.False(t, snap.Locked)

	dst := newRig(t, panels, nil)
	require.NoError(t, dst.orch.Restore(snap))
	src.settle()

	if diff := cmp.Diff(src.orch.Views(), dst.orch.Views()); diff != "" {
		t.Errorf("views differ (-completed +restored):\n%s", diff)
	}
}

func TestRestoreRejectsOutOfRange(t *testing.T) {
	r := newRig(t, testPanels(3), nil)
	err := r.orch.Restore(NarrativeState{Stage: 7})
	require.Error(t, err)
	assert.True(t, errors.Is(err, trip.ErrConfig))

	err = r.orch.Restore(NarrativeState{Stage: 1, Progress: 1.5})
	assert.True(t, errors.Is(err, trip.ErrConfig))
	assert.Equal(t, 0, r.state().Stage)

	panels := testPanels(3)
	panels[2].Reveal = true
	r = newRig(t, panels, nil)
	for _, s := range []NarrativeState{
		{Stage: 0, Released: true},
		{Stage: 2, Progress: 0.3, Released: true},
	} {
		err := r.orch.Restore(s)
		require.Error(t, err, "%+v", s)
		assert.True(t, errors.Is(err, trip.ErrConfig))
		assert.False(t, r.state().Released)
		assert.Equal(t, 1, r.orch.Locks().Count(), "narrative still holds its lock")
	}

	require.NoError(t, r.orch.Restore(NarrativeState{Stage: 2, Progress: 1, Released: true}))
	assert.True(t, r.state().Released)
	assert.Zero(t, r.orch.Locks().Count())
}

func TestTickFinishesAtDuration(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.wheel(100)
	require.Len(t, r.starts, 1)
	tr := r.starts[0]
	assert.False(t, tr.Done(tr.StartedAt.Add(tr.Duration-time.Millisecond)))
	assert.True(t, tr.Done(tr.StartedAt.Add(tr.Duration)))

	r.orch.Tick()
	assert.Zero(t, r.state().Progress)
	r.clock.Step(tr.Duration / 2)
	r.orch.Tick()
	assert.InDelta(t, 0.5, r.state().Progress, 1e-9)
}

func TestViewsDuringTransition(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.wheel(100)
	r.clock.Step(750 * time.Millisecond)
	r.orch.Tick()

	views := r.orch.Views()
	require.Len(t, views, 3)
	assert.Equal(t, RoleOutgoing, views[0].Role)
	assert.Equal(t, RoleIncoming, views[1].Role)
	assert.Equal(t, RoleHidden, views[2].Role)
	assert.True(t, views[0].Progress.ContentVisible)
	assert.True(t, views[1].Progress.ContentVisible)
	assert.False(t, views[2].Progress.ContentVisible)

	r.settle()
	views = r.orch.Views()
	assert.Equal(t, RoleHidden, views[0].Role)
	assert.Equal(t, RoleActive, views[1].Role)
	assert.Equal(t, 1.0, views[1].Progress.Opacity)
	assert.True(t, views[1].Active)
}

func TestResizeNeverMovesStage(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.orch.Feed(ScrollOffset(0))
	r.orch.Resize(Layout{Width: 120, Height: 40})
	assert.Empty(t, r.starts)
	assert.Equal(t, 0, r.state().Stage)

	r.orch.Feed(ScrollOffset(20))
	assert.Equal(t, 50.0, r.state().Accumulator, "half a viewport")
	r.orch.Feed(ScrollOffset(40))
	assert.Len(t, r.starts, 1)

	r.orch.Resize(Layout{})
	assert.Equal(t, Layout{Width: 120, Height: 40}, r.orch.Layout())
}

func TestInputConsumedWhileLocked(t *testing.T) {
	panels := testPanels(2)
	panels[1].Reveal = true
	r := newRig(t, panels, nil).unlocked()

	assert.True(t, r.orch.Feed(Wheel(10)))
	r.wheel(100)
	r.settle()
	assert.True(t, r.orch.Feed(Wheel(300)))
	assert.False(t, r.orch.Feed(Wheel(10)))
}

func TestNonFiniteInputDiscarded(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := newRig(t, testPanels(3), nil, WithLogger(zap.New(core))).unlocked()

	r.orch.Feed(Wheel(math.NaN()))
	r.orch.Feed(Touch(math.Inf(1)))
	r.orch.Feed(ScrollOffset(math.Inf(-1)))

	assert.Equal(t, 0.0, r.state().Accumulator)
	assert.Equal(t, 3, r.orch.Trips().CountType(trip.TypeInput))
	assert.Equal(t, 3, logs.FilterMessage("non-finite input discarded").Len())
	assert.Empty(t, r.starts)
}

func TestNoTimersDegrades(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	orch, err := New(testPanels(3), DefaultConfig(),
		WithScheduler(NoTimers{Clock: func() time.Time { return epoch }}),
		WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, orch.Mount())
	defer orch.Dispose()
	require.NoError(t, orch.Unlock())

	orch.Feed(Wheel(40))
	assert.True(t, orch.Source().DecayDisabled())
	assert.Equal(t, 40.0, orch.State().Accumulator)
	assert.Equal(t, 1, logs.FilterMessage("accumulator decay disabled").Len())

	orch.Feed(Wheel(60))
	assert.Equal(t, 1, orch.State().Stage, "transition completes immediately")
	assert.False(t, orch.State().Locked)
	assert.GreaterOrEqual(t, orch.Trips().CountType(trip.TypeTimer), 2)
	assert.True(t, orch.Trips().ShouldContinue())
}

func TestCompletionPanicStillApplies(t *testing.T) {
	r := newRig(t, testPanels(3), nil, WithCompletionHook(func(Transition) {
		panic("animation promise rejected")
	})).unlocked()

	r.wheel(100)
	r.settle()

	assert.Equal(t, 1, r.state().Stage)
	assert.False(t, r.state().Locked)
	assert.Equal(t, 1, r.orch.Trips().CountType(trip.TypeTransition))
	require.Len(t, r.ends, 1)
}

func TestPanickingSubscriberDoesNotStall(t *testing.T) {
	r := newRig(t, testPanels(3), nil).unlocked()
	r.orch.Bus().Subscribe(EventStage, func(any) { panic("render failed") })

	r.wheel(100)
	r.settle()

	assert.Equal(t, 1, r.state().Stage)
	assert.GreaterOrEqual(t, r.orch.Trips().CountType(trip.TypeRender), 1)
}

func TestDisposeClearsTimers(t *testing.T) {
	var restored int
	r := newRig(t, testPanels(3), nil, WithSuppressor(SuppressorFuncs{OnRestore: func() { restored++ }})).unlocked()
	r.wheel(40)
	r.wheel(100)
	require.Positive(t, r.clock.Pending())

	r.orch.Dispose()
	assert.Equal(t, 0, r.clock.Pending())
	assert.Equal(t, 0, r.orch.Locks().Count())
	assert.Equal(t, 1, restored)
	assert.False(t, r.orch.Feed(Wheel(100)))
	assert.Equal(t, 0, r.orch.Hub().Len())

	assert.Error(t, r.orch.Mount())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScrollThreshold = 0
	_, err := New(testPanels(2), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trip.ErrConfig))

	bad := testPanels(2)
	bad[1].Order = 3
	_, err = New(bad, DefaultConfig())
	assert.True(t, errors.Is(err, trip.ErrConfig))

	_, err = New(testPanels(2), DefaultConfig(), WithLayout(Layout{Width: 10}))
	assert.True(t, errors.Is(err, trip.ErrConfig))
}
