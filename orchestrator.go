package dolly

import (
	"go.uber.org/zap"

	"github.com/teranos/dolly/trip"
)

// PanelView is everything a panel reads to render one frame. Panels never
// write back except by publishing on the bus.
type PanelView struct {
	Panel     Panel
	Role      Role
	Position  float64
	Progress  PanelProgress
	Active    bool
	Stage     int
	Direction Direction
}

// Orchestrator mounts and wires the narrative components.
type Orchestrator struct {
	cfg    Config
	reg    *Registry
	rt     Runtime
	layout Layout

	hub    *InputHub
	bus    *Bus
	locks  *LockManager
	source *SignalSource
	ctrl   *Controller

	mounted  bool
	disposed bool
}

type options struct {
	scheduler  Scheduler
	logger     *zap.Logger
	trips      *trip.Handler
	suppressor Suppressor
	layout     Layout
	hub        *InputHub
	onComplete func(Transition)
}

// Option customizes New.
type Option func(*options)

// WithScheduler sets the scheduler. Without one the orchestrator runs on
// NoTimers: no decay, immediate transitions.
func WithScheduler(s Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTrips collects trips into h instead of a private handler.
func WithTrips(h *trip.Handler) Option {
	return func(o *options) { o.trips = h }
}

// WithSuppressor sets what the scroll lock turns off and on.
func WithSuppressor(s Suppressor) Option {
	return func(o *options) { o.suppressor = s }
}

// WithLayout sets the initial viewport.
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithInputHub shares an existing hub with the host.
func WithInputHub(h *InputHub) Option {
	return func(o *options) { o.hub = h }
}

// WithCompletionHook runs fn when a transition timer fires.
func WithCompletionHook(fn func(Transition)) Option {
	return func(o *options) { o.onComplete = fn }
}

// New validates cfg and panels and builds an unmounted orchestrator. Any
// returned error is a config trip and nothing has been acquired.
func New(panels []Panel, cfg Config, opts ...Option) (*Orchestrator, error) {
	o := options{layout: DefaultLayout}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !o.layout.valid() {
		return nil, trip.Config("layout must have a positive size", trip.Context{
			"width":  o.layout.Width,
			"height": o.layout.Height,
		})
	}
	reg, err := NewRegistry(panels)
	if err != nil {
		return nil, err
	}

	rt := Runtime{Scheduler: o.scheduler, Logger: o.logger, Trips: o.trips}.withDefaults()
	if o.hub == nil {
		o.hub = NewInputHub()
	}

	locks := NewLockManager(o.suppressor, rt.Logger)
	bus := NewBus()
	source := NewSignalSource(cfg, rt, locks)
	source.SetLayout(o.layout)
	ctrl := NewController(reg, cfg, rt, source, locks, bus)
	ctrl.OnComplete(o.onComplete)

	return &Orchestrator{
		cfg:    cfg,
		reg:    reg,
		rt:     rt,
		layout: o.layout,
		hub:    o.hub,
		bus:    bus,
		locks:  locks,
		source: source,
		ctrl:   ctrl,
	}, nil
}

// Mount takes the scroll lock and starts listening for input.
func (o *Orchestrator) Mount() error {
	if o.disposed {
		return trip.NewTrip(trip.TypeLock, "orchestrator already disposed", nil)
	}
	if o.mounted {
		return nil
	}
	if err := o.ctrl.Start(); err != nil {
		return err
	}
	o.source.Attach(o.hub)
	o.mounted = true
	o.rt.Logger.Debug("narrative mounted",
		zap.Int("panels", o.reg.Count()),
		zap.Float64("threshold", o.cfg.ScrollThreshold))
	o.ctrl.publish(EventStage, stageEventOf(o.ctrl.State()))
	return nil
}

// Feed dispatches one input and reports whether it was consumed. Unconsumed
// input belongs to the host's native scrolling.
func (o *Orchestrator) Feed(in Input) bool {
	if o.disposed {
		return false
	}
	return o.hub.Dispatch(in)
}

// Tick refreshes time-based progress. Call it after advancing the scheduler.
func (o *Orchestrator) Tick() {
	if o.disposed {
		return
	}
	o.ctrl.Tick()
}

// Resize recomputes layout-derived scales. The stage never moves.
func (o *Orchestrator) Resize(l Layout) {
	if !l.valid() {
		o.rt.warn(trip.InputAnomaly("resize to empty layout ignored", trip.Context{
			"width":  l.Width,
			"height": l.Height,
		}))
		return
	}
	o.layout = l
	o.source.SetLayout(l)
	o.rt.Logger.Debug("layout changed", zap.Int("width", l.Width), zap.Int("height", l.Height))
}

// Layout returns the current viewport.
func (o *Orchestrator) Layout() Layout { return o.layout }

// Views computes every panel's view for the current frame.
func (o *Orchestrator) Views() []PanelView {
	state := o.ctrl.State()
	tr, moving := o.ctrl.Transition()

	views := make([]PanelView, 0, o.reg.Count())
	for _, p := range o.reg.panels {
		role := RoleHidden
		dir := state.Direction
		switch {
		case moving && p.Order == tr.From:
			role, dir = RoleOutgoing, tr.Direction
		case moving && p.Order == tr.To:
			role, dir = RoleIncoming, tr.Direction
		case !moving && p.Order == state.Stage:
			role = RoleActive
		}

		var pos float64
		switch {
		case role != RoleHidden:
			pos = Timeline(p, role, dir, state.Progress, o.ctrl.SubProgress(p.Order))
		case p.Order < state.Stage:
			pos = p.Exit.T1
		}

		views = append(views, PanelView{
			Panel:     p,
			Role:      role,
			Position:  pos,
			Progress:  MapProgress(p, pos, o.layout),
			Active:    p.Order == state.Stage,
			Stage:     state.Stage,
			Direction: state.Direction,
		})
	}
	return views
}

// State returns a copy of the narrative state.
func (o *Orchestrator) State() NarrativeState { return o.ctrl.State() }

// Snapshot returns a restorable state. A transition in flight is reported as
// already complete.
func (o *Orchestrator) Snapshot() NarrativeState { return o.ctrl.Snapshot() }

// Restore replaces the narrative state with s, typically from Snapshot.
func (o *Orchestrator) Restore(s NarrativeState) error {
	if err := o.ctrl.Restore(s); err != nil {
		o.rt.Trips.Record(asTrip(err))
		return err
	}
	o.rt.Logger.Debug("narrative restored", zap.Int("stage", s.Stage), zap.Float64("progress", s.Progress))
	return nil
}

// Unlock releases the intro lock.
func (o *Orchestrator) Unlock() error { return o.ctrl.Unlock() }

// Bus returns the narrative bus.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Locks returns the scroll lock manager.
func (o *Orchestrator) Locks() *LockManager { return o.locks }

// Hub returns the input hub.
func (o *Orchestrator) Hub() *InputHub { return o.hub }

// Registry returns the panel registry.
func (o *Orchestrator) Registry() *Registry { return o.reg }

// Source returns the signal source.
func (o *Orchestrator) Source() *SignalSource { return o.source }

// Controller returns the state machine.
func (o *Orchestrator) Controller() *Controller { return o.ctrl }

// Config returns the tuning in use.
func (o *Orchestrator) Config() Config { return o.cfg }

// Trips returns the handler collecting every problem seen so far.
func (o *Orchestrator) Trips() *trip.Handler { return o.rt.Trips }

// Dispose cancels every timer, detaches from input and hands scrolling back
// to the host. The orchestrator cannot be mounted again.
func (o *Orchestrator) Dispose() {
	if o.disposed {
		return
	}
	o.disposed = true
	o.source.Dispose()
	o.ctrl.Dispose()
	o.locks.releaseAll()
	o.rt.Logger.Debug("narrative disposed", zap.String("trips", o.rt.Trips.Summary()))
}

func asTrip(err error) *trip.Trip {
	if t, ok := trip.As(err); ok {
		return t
	}
	return trip.NewTrip(trip.TypeTransition, err.Error(), nil)
}
