package dolly

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/teranos/dolly/trip"
)

// lockOwner names the token the controller holds while it owns scrolling.
const lockOwner = "narrative"

// Controller is the narrative state machine. It is the only writer of
// NarrativeState.
//
// The controller is IDLE(stage) while no transition is in flight and
// TRANSITIONING(from, to, direction) otherwise. Threshold crossings are only
// honored in IDLE.
type Controller struct {
	reg    *Registry
	cfg    Config
	rt     Runtime
	source *SignalSource
	locks  *LockManager
	bus    *Bus

	state      NarrativeState
	introLock  bool
	transition *Transition
	timer      Timer
	cooldown   Timer
	cooling    bool

	ready    map[string]bool
	sub      map[int]float64
	revealed float64
	token    *Token
	started  bool

	onComplete func(Transition)
	unsubs     []Unsubscribe
}

// NewController wires a controller to its collaborators. The controller
// starts in IDLE(0) with the intro lock engaged.
func NewController(reg *Registry, cfg Config, rt Runtime, source *SignalSource, locks *LockManager, bus *Bus) *Controller {
	c := &Controller{
		reg:       reg,
		cfg:       cfg,
		rt:        rt.withDefaults(),
		source:    source,
		locks:     locks,
		bus:       bus,
		introLock: true,
		ready:     make(map[string]bool),
		sub:       make(map[int]float64),
	}
	c.state.Locked = true
	return c
}

// OnComplete installs a hook called when a transition timer fires, before the
// new stage is applied. A panicking hook is recovered; the stage still changes.
func (c *Controller) OnComplete(fn func(Transition)) {
	c.onComplete = fn
}

// Start takes the narrative scroll lock and subscribes to panel signals.
func (c *Controller) Start() error {
	if c.started {
		return nil
	}
	token, err := c.locks.Acquire(lockOwner)
	if err != nil {
		return err
	}
	c.token = token
	c.started = true
	c.source.OnSignal(c.HandleDelta)
	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(EventReady, c.onReady),
		c.bus.Subscribe(EventUnlock, c.onUnlock),
	)
	return nil
}

// State returns a copy of the narrative state.
func (c *Controller) State() NarrativeState {
	s := c.state
	s.Accumulator = c.source.CurrentAccumulator()
	return s
}

// Transition returns the transition in flight, if any.
func (c *Controller) Transition() (Transition, bool) {
	if c.transition == nil {
		return Transition{}, false
	}
	return *c.transition, true
}

// Cooling reports whether post-transition input is being dropped.
func (c *Controller) Cooling() bool { return c.cooling }

// Ready reports whether the panel with id has signalled readiness.
func (c *Controller) Ready(id string) bool { return c.ready[id] }

// SubProgress returns the sub-scroll progress of the panel at order.
func (c *Controller) SubProgress(order int) float64 { return c.sub[order] }

// Unlock releases the intro lock. It is refused while a transition is in
// flight and is a no-op once released.
func (c *Controller) Unlock() error {
	if c.transition != nil {
		return trip.NewStumble(trip.TypeTransition, "unlock refused during transition", trip.Context{
			"from": c.transition.From,
			"to":   c.transition.To,
		})
	}
	if !c.introLock {
		return nil
	}
	c.introLock = false
	c.state.Locked = false
	c.source.Reset()
	c.state.Accumulator = 0
	c.rt.Logger.Debug("intro lock released", zap.Int("stage", c.state.Stage))
	c.publish(EventStage, stageEventOf(c.State()))
	return nil
}

// MarkReady records that the panel with id may be passed. Readiness is sticky.
func (c *Controller) MarkReady(id string) {
	if _, ok := c.reg.Lookup(id); !ok {
		c.rt.warn(trip.InputAnomaly("ready signal from unknown panel", trip.Context{"panel": id}))
		return
	}
	if c.ready[id] {
		return
	}
	c.ready[id] = true
	c.rt.Logger.Debug("panel ready", zap.String("panel", id))
}

func (c *Controller) onUnlock(any) {
	if err := c.Unlock(); err != nil {
		c.rt.Logger.Debug("unlock signal ignored", zap.Error(err))
	}
}

func (c *Controller) onReady(payload any) {
	switch id := payload.(type) {
	case string:
		c.MarkReady(id)
	case fmt.Stringer:
		c.MarkReady(id.String())
	default:
		c.rt.warn(trip.InputAnomaly("ready payload is not a panel id", trip.Context{
			"payload": fmt.Sprintf("%T", payload),
		}))
	}
}

// HandleDelta applies one normalized signal delta.
func (c *Controller) HandleDelta(delta float64) {
	if c.state.Released || delta == 0 || !finite(delta) {
		return
	}
	if c.cooling {
		c.rt.Logger.Debug("input dropped during cooldown", zap.Float64("delta", delta))
		return
	}
	if c.transition != nil {
		c.feed(delta)
		c.state.Accumulator = c.source.CurrentAccumulator()
		return
	}

	p := c.reg.MustGet(c.state.Stage)
	switch {
	case p.Reveal && !c.state.Locked:
		c.reveal(delta)
	case p.SubScrollRange > 0:
		c.subScroll(p, delta)
	default:
		c.feed(delta)
	}
	c.evaluate()
}

// feed adds delta to the accumulator. Input made under the intro lock is
// dropped so that it cannot carry past the intro once unlocked.
func (c *Controller) feed(delta float64) {
	if c.introLock {
		return
	}
	if err := c.source.OnRawInput(delta); err != nil {
		if t, ok := trip.As(err); ok {
			c.rt.warn(t)
		}
	}
}

// subScroll moves the panel through its rest interval. Movement past either
// end spills into the accumulator.
func (c *Controller) subScroll(p Panel, delta float64) {
	sub := c.sub[p.Order] + delta/p.SubScrollRange
	var spill float64
	switch {
	case sub > 1:
		spill = (sub - 1) * p.SubScrollRange
		sub = 1
	case sub < 0:
		spill = sub * p.SubScrollRange
		sub = 0
	}
	if sub != c.sub[p.Order] {
		c.sub[p.Order] = sub
		c.setProgress(sub)
	}
	if spill != 0 {
		c.feed(spill)
	}
}

// reveal maps delta straight to progress on the terminal panel. Reversing
// below zero feeds the accumulator so the viewer can back out.
func (c *Controller) reveal(delta float64) {
	rng := c.cfg.RevealRange
	c.revealed += delta
	if c.revealed < 0 {
		spill := c.revealed
		c.revealed = 0
		c.setProgress(0)
		c.feed(spill)
		return
	}
	if c.revealed >= rng {
		c.revealed = rng
		c.setProgress(1)
		c.release()
		return
	}
	c.setProgress(c.revealed / rng)
}

func (c *Controller) release() {
	if c.state.Released {
		return
	}
	c.state.Released = true
	c.source.Reset()
	c.state.Accumulator = 0
	if c.token != nil {
		if err := c.locks.Release(c.token); err != nil {
			c.rt.Logger.Warn("narrative lock release failed", zap.Error(err))
		}
		c.token = nil
	}
	c.rt.Logger.Debug("narrative released", zap.Int("stage", c.state.Stage))
	c.publish(EventReleased, stageEventOf(c.state))
}

// evaluate starts a transition when the accumulator crosses the threshold and
// nothing holds the stage in place.
func (c *Controller) evaluate() {
	acc := c.source.CurrentAccumulator()
	c.state.Accumulator = acc
	if c.state.Locked || c.transition != nil || c.state.Released {
		return
	}
	if math.Abs(acc) < c.cfg.ScrollThreshold {
		return
	}
	dir := directionOf(acc)
	if dir == Backward && !c.cfg.backwardAllowed() {
		return
	}
	to, ok := c.reg.Next(c.state.Stage, dir)
	if !ok {
		return
	}
	if !c.gateOpen(to, dir) {
		return
	}
	c.begin(to, dir)
}

// gateOpen applies WaitForSignal. Backward navigation is never gated.
func (c *Controller) gateOpen(to int, dir Direction) bool {
	if dir != Forward {
		return true
	}
	waiting := c.reg.MustGet(c.state.Stage)
	if c.cfg.gate() == GateEntry {
		waiting = c.reg.MustGet(to)
	}
	if waiting.Advance != WaitForSignal || c.ready[waiting.ID] {
		return true
	}
	c.rt.Logger.Debug("threshold crossed before panel ready",
		zap.String("panel", waiting.ID),
		zap.Float64("accumulator", c.source.CurrentAccumulator()))
	return false
}

func (c *Controller) begin(to int, dir Direction) {
	from := c.state.Stage
	tr := Transition{
		From:      from,
		To:        to,
		Direction: dir,
		StartedAt: c.rt.Scheduler.Now(),
		Duration:  c.cfg.DurationFor(from, to),
	}
	c.transition = &tr
	c.state.Direction = dir
	c.state.Locked = true
	c.state.Progress = 0
	c.source.Reset()
	c.state.Accumulator = 0

	c.rt.Logger.Debug("transition started",
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Stringer("direction", dir),
		zap.Duration("duration", tr.Duration))
	c.publish(EventTransitionStart, tr)

	if c.transition == nil {
		return
	}
	timer, err := c.rt.Scheduler.After(tr.Duration, c.complete)
	if err != nil {
		c.rt.warn(trip.TimerFailure("transition timer unavailable, completing immediately", trip.Context{
			"from":  from,
			"to":    to,
			"error": err.Error(),
		}))
		c.complete()
		return
	}
	c.timer = timer
}

func (c *Controller) complete() {
	if c.transition == nil {
		return
	}
	tr := *c.transition
	defer c.settle(tr)
	if c.onComplete != nil {
		c.onComplete(tr)
	}
}

// settle applies a finished transition. It runs deferred so that the stage
// and lock are applied even when the completion hook panics.
func (c *Controller) settle(tr Transition) {
	if r := recover(); r != nil {
		t := trip.NewTrip(trip.TypeTransition, "transition completion panicked", trip.Context{
			"from":  tr.From,
			"to":    tr.To,
			"panic": fmt.Sprint(r),
		})
		c.rt.Trips.Record(t)
		c.rt.Logger.Error(t.Message, tripFields(t)...)
	}

	c.transition = nil
	c.timer = nil
	c.state.Stage = tr.To
	c.state.Locked = c.introLock
	c.source.Reset()
	c.state.Accumulator = 0

	arrived := c.reg.MustGet(tr.To)
	switch {
	case arrived.Reveal:
		c.revealed = 0
	case arrived.SubScrollRange > 0 && tr.Direction == Backward:
		c.sub[tr.To] = 1
	case arrived.SubScrollRange > 0:
		c.sub[tr.To] = 0
	}
	c.state.Progress = c.idleProgress()

	c.rt.Logger.Debug("transition complete",
		zap.Int("stage", tr.To),
		zap.Stringer("direction", tr.Direction))
	c.startCooldown()
	c.publish(EventTransitionEnd, tr)
	c.publish(EventStage, stageEventOf(c.state))
}

func (c *Controller) startCooldown() {
	if c.cfg.Cooldown <= 0 {
		return
	}
	t, err := c.rt.Scheduler.After(c.cfg.Cooldown, func() {
		c.cooling = false
		c.cooldown = nil
	})
	if err != nil {
		c.rt.warn(trip.TimerFailure("cooldown timer unavailable", trip.Context{"error": err.Error()}))
		return
	}
	c.cooling = true
	c.cooldown = t
}

// Tick refreshes transition progress from the scheduler clock.
func (c *Controller) Tick() {
	if c.transition == nil {
		return
	}
	now := c.rt.Scheduler.Now()
	if c.transition.Done(now) {
		c.setProgress(1)
		return
	}
	c.setProgress(c.transition.Elapsed(now))
}

func (c *Controller) idleProgress() float64 {
	p := c.reg.MustGet(c.state.Stage)
	switch {
	case p.Reveal:
		return clamp01(c.revealed / c.cfg.RevealRange)
	case p.SubScrollRange > 0:
		return clamp01(c.sub[p.Order])
	default:
		return 0
	}
}

func (c *Controller) setProgress(v float64) {
	v = clamp01(v)
	if v == c.state.Progress {
		return
	}
	c.state.Progress = v
	c.publish(EventProgress, stageEventOf(c.State()))
}

// Restore replaces the narrative state. Any transition in flight is dropped
// and the restored stage is entered directly.
func (c *Controller) Restore(s NarrativeState) error {
	if _, ok := c.reg.Get(s.Stage); !ok {
		return trip.Config("restored stage out of range", trip.Context{
			"stage": s.Stage,
			"last":  c.reg.Last(),
		})
	}
	if !(s.Progress >= 0 && s.Progress <= 1) {
		return trip.Config("restored progress out of range", trip.Context{"progress": s.Progress})
	}
	if s.Released && (s.Stage != c.reg.Last() || !c.reg.MustGet(s.Stage).Reveal || s.Progress != 1) {
		return trip.Config("restored release before the reveal completed", trip.Context{
			"stage":    s.Stage,
			"progress": s.Progress,
			"last":     c.reg.Last(),
		})
	}

	c.stopTimers()
	c.transition = nil
	c.source.Reset()

	c.state = NarrativeState{
		Stage:     s.Stage,
		Progress:  s.Progress,
		Direction: s.Direction,
		Locked:    s.Locked,
	}
	c.introLock = s.Locked

	p := c.reg.MustGet(s.Stage)
	switch {
	case p.Reveal:
		c.revealed = s.Progress * c.cfg.RevealRange
	case p.SubScrollRange > 0:
		c.sub[p.Order] = s.Progress
	default:
		c.state.Progress = 0
	}
	if s.Accumulator != 0 && !s.Released {
		c.feed(s.Accumulator)
	}
	if s.Released {
		c.release()
	} else if c.started && c.token == nil {
		token, err := c.locks.Acquire(lockOwner)
		if err != nil {
			return err
		}
		c.token = token
	}
	c.publish(EventStage, stageEventOf(c.State()))
	return nil
}

// Snapshot returns the state as it will be once any transition in flight has
// completed.
func (c *Controller) Snapshot() NarrativeState {
	if c.transition == nil {
		return c.State()
	}
	tr := *c.transition
	s := NarrativeState{
		Stage:     tr.To,
		Direction: tr.Direction,
		Locked:    c.introLock,
		Released:  c.state.Released,
	}
	arrived := c.reg.MustGet(tr.To)
	if arrived.SubScrollRange > 0 && tr.Direction == Backward {
		s.Progress = 1
	}
	return s
}

func (c *Controller) stopTimers() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cooldown != nil {
		c.cooldown.Stop()
		c.cooldown = nil
	}
	c.cooling = false
}

// Dispose cancels every timer, drops the transition and releases the lock.
func (c *Controller) Dispose() {
	c.stopTimers()
	c.transition = nil
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
	if c.token != nil {
		_ = c.locks.Release(c.token)
		c.token = nil
	}
}

func (c *Controller) publish(event string, payload any) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(event, payload); err != nil {
		c.rt.warn(trip.NewStumble(trip.TypeRender, "panel handler failed", trip.Context{
			"event": event,
			"error": err.Error(),
		}))
	}
}
