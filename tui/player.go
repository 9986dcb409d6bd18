// Package tui plays a story in the terminal.
//
// The Player is a bubbletea model. It owns a dolly.Orchestrator running on a
// FrameClock: every frame tick advances the clock by the wall time elapsed
// since the previous tick, so decay, transitions, the intro unlock and the
// question typewriter all run inside Update on the program goroutine.
//
// Headless drivers can disable the ticker (Config.FrameInterval = 0) and move
// time explicitly with Elapse.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/teranos/dolly"
	"github.com/teranos/dolly/internal/bookmark"
	"github.com/teranos/dolly/story"
	"github.com/teranos/dolly/trip"
)

// DefaultFrameInterval is roughly one frame at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

// Config configures a Player.
type Config struct {
	Width  int
	Height int

	// FrameInterval is the ticker period. Zero disables the ticker.
	FrameInterval time.Duration

	Keys   KeyMap
	Logger *zap.Logger

	// Bookmarks, when set, receives the position on quit. With Resume the
	// saved position is restored on start.
	Bookmarks *bookmark.Store
	Resume    bool

	// Changes delivers story paths to reload, typically from watch.Watcher.
	Changes <-chan string
}

// DefaultConfig returns an 80x24 player ticking at DefaultFrameInterval.
func DefaultConfig() Config {
	return Config{
		Width:         dolly.DefaultLayout.Width,
		Height:        dolly.DefaultLayout.Height,
		FrameInterval: DefaultFrameInterval,
		Keys:          DefaultKeyMap(),
	}
}

type frameMsg time.Time

// ElapseMsg moves the player's clock forward by D.
type ElapseMsg struct{ D time.Duration }

// Elapse returns the message advancing the clock by d.
func Elapse(d time.Duration) tea.Msg { return ElapseMsg{D: d} }

// ReloadMsg asks the player to reload the story at Path.
type ReloadMsg struct{ Path string }

// Player is the terminal narrative player.
type Player struct {
	cfg    Config
	logger *zap.Logger
	trips  *trip.Handler

	story  *story.Story
	orch   *dolly.Orchestrator
	clock  *dolly.FrameClock
	unsubs []dolly.Unsubscribe

	width, height int
	seq           uint64
	lastFrame     time.Time

	unlockTimer dolly.Timer
	typing      *typewriter
	typed       map[string]bool

	credits creditsView
	help    help.Model

	notice   string
	quitting bool
}

// NewPlayer mounts s and returns a player ready to run.
func NewPlayer(s *story.Story, cfg Config) (*Player, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = dolly.DefaultLayout.Width, dolly.DefaultLayout.Height
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Keys.Quit.Keys()) == 0 {
		cfg.Keys = DefaultKeyMap()
	}

	p := &Player{
		cfg:    cfg,
		logger: cfg.Logger,
		trips:  trip.NewHandler("player", trip.DefaultPolicy()),
		clock:  dolly.NewFrameClock(time.Now()),
		width:  cfg.Width,
		height: cfg.Height,
		typed:  make(map[string]bool),
		help:   help.New(),
	}
	p.help.Width = p.width

	if err := p.mount(s); err != nil {
		return nil, err
	}
	if cfg.Resume {
		p.resume()
	}
	return p, nil
}

func (p *Player) bodyHeight() int {
	if p.height > 1 {
		return p.height - 1
	}
	return 1
}

func (p *Player) layout() dolly.Layout {
	return dolly.Layout{Width: p.width, Height: p.bodyHeight()}
}

// mount replaces the running orchestrator with one for s. On error the old
// one keeps running.
func (p *Player) mount(s *story.Story) error {
	orch, err := dolly.New(s.DollyPanels(), s.Config,
		dolly.WithScheduler(p.clock),
		dolly.WithLogger(p.logger),
		dolly.WithTrips(p.trips),
		dolly.WithLayout(p.layout()),
	)
	if err != nil {
		return err
	}
	p.teardown()

	p.story, p.orch = s, orch
	bus := orch.Bus()
	p.unsubs = append(p.unsubs,
		bus.Subscribe(dolly.EventStage, p.onStage),
		bus.Subscribe(dolly.EventReleased, p.onReleased),
	)
	p.credits = newCreditsView(s.Credits, p.width, p.bodyHeight(), p.logger)
	return orch.Mount()
}

func (p *Player) teardown() {
	p.stopTyping()
	if p.unlockTimer != nil {
		p.unlockTimer.Stop()
		p.unlockTimer = nil
	}
	for _, u := range p.unsubs {
		u()
	}
	p.unsubs = p.unsubs[:0]
	if p.orch != nil {
		p.orch.Dispose()
	}
}

func (p *Player) resume() {
	if p.cfg.Bookmarks == nil {
		return
	}
	b, ok, err := p.cfg.Bookmarks.Load(p.story.Title)
	if err != nil {
		p.logger.Warn("bookmark unreadable", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := p.orch.Restore(b.State); err != nil {
		p.logger.Warn("bookmark rejected", zap.Int("stage", b.State.Stage), zap.Error(err))
		return
	}
	if !b.State.Locked && p.unlockTimer != nil {
		p.unlockTimer.Stop()
		p.unlockTimer = nil
	}
	p.logger.Info("resumed from bookmark", zap.Int("stage", b.State.Stage), zap.Time("saved_at", b.SavedAt))
}

func (p *Player) saveBookmark() {
	if p.cfg.Bookmarks == nil {
		return
	}
	if err := p.cfg.Bookmarks.Save(p.story.Title, p.orch.Snapshot()); err != nil {
		p.logger.Warn("bookmark not saved", zap.Error(err))
	}
}

// Init starts the frame ticker and the reload listener.
func (p *Player) Init() tea.Cmd {
	return tea.Batch(p.tick(), p.waitForChange())
}

func (p *Player) tick() tea.Cmd {
	if p.cfg.FrameInterval <= 0 {
		return nil
	}
	return tea.Tick(p.cfg.FrameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (p *Player) waitForChange() tea.Cmd {
	ch := p.cfg.Changes
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		path, ok := <-ch
		if !ok {
			return nil
		}
		return ReloadMsg{Path: path}
	}
}

// Update implements tea.Model.
func (p *Player) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.resize(msg.Width, msg.Height)

	case frameMsg:
		now := time.Time(msg)
		if !p.lastFrame.IsZero() {
			p.advance(now.Sub(p.lastFrame))
		}
		p.lastFrame = now
		return p, p.tick()

	case ElapseMsg:
		p.advance(msg.D)

	case ReloadMsg:
		p.reload(msg.Path)
		return p, p.waitForChange()

	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelDown:
			return p, p.scroll(dolly.Wheel(WheelDelta), msg)
		case tea.MouseButtonWheelUp:
			return p, p.scroll(dolly.Wheel(-WheelDelta), msg)
		}

	case tea.KeyMsg:
		return p, p.handleKey(msg)
	}
	return p, nil
}

func (p *Player) handleKey(msg tea.KeyMsg) tea.Cmd {
	keys := p.cfg.Keys
	threshold := p.orch.Config().ScrollThreshold
	switch {
	case key.Matches(msg, keys.Quit):
		p.saveBookmark()
		p.quitting = true
		return tea.Quit
	case key.Matches(msg, keys.Unlock):
		p.unlock()
	case key.Matches(msg, keys.Down):
		return p.scroll(dolly.Key(LineDelta), msg)
	case key.Matches(msg, keys.Up):
		return p.scroll(dolly.Key(-LineDelta), msg)
	case key.Matches(msg, keys.PageDown):
		return p.scroll(dolly.Key(PageDelta), msg)
	case key.Matches(msg, keys.PageUp):
		return p.scroll(dolly.Key(-PageDelta), msg)
	case key.Matches(msg, keys.End):
		if p.orch.State().Released {
			p.credits.vp.GotoBottom()
			return nil
		}
		return p.scroll(dolly.Key(threshold), msg)
	case key.Matches(msg, keys.Home):
		if p.orch.State().Released {
			p.credits.vp.GotoTop()
			return nil
		}
		return p.scroll(dolly.Key(-threshold), msg)
	}
	return nil
}

// scroll feeds in to the narrative. Input the narrative does not consume
// scrolls the credits natively.
func (p *Player) scroll(in dolly.Input, msg tea.Msg) tea.Cmd {
	p.seq++
	if p.orch.Feed(in.WithSeq(p.seq)) {
		return nil
	}
	if !p.orch.State().Released {
		return nil
	}
	var cmd tea.Cmd
	p.credits.vp, cmd = p.credits.vp.Update(msg)
	return cmd
}

func (p *Player) advance(d time.Duration) {
	if d <= 0 {
		return
	}
	p.clock.Step(d)
	p.orch.Tick()
}

func (p *Player) resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	p.width, p.height = w, h
	p.help.Width = w
	p.orch.Resize(p.layout())
	p.credits.resize(w, p.bodyHeight())
}

// unlock skips the typewriter if one is running, otherwise it releases the
// intro lock.
func (p *Player) unlock() {
	if p.typing != nil {
		p.finishTyping(p.typing)
		return
	}
	if p.unlockTimer != nil {
		p.unlockTimer.Stop()
		p.unlockTimer = nil
	}
	p.publish(dolly.EventUnlock, nil)
}

func (p *Player) publish(event string, payload any) {
	if err := p.orch.Bus().Publish(event, payload); err != nil {
		p.logger.Warn("narrative handler failed", zap.String("event", event), zap.Error(err))
	}
}

func (p *Player) onStage(payload any) {
	ev, ok := payload.(dolly.StageEvent)
	if !ok {
		return
	}
	p.enter(ev.Stage, ev.Locked)
}

// enter starts whatever the panel at stage plays on arrival.
func (p *Player) enter(stage int, locked bool) {
	if stage < 0 || stage >= len(p.story.Panels) {
		return
	}
	sp := p.story.Panels[stage]
	switch sp.Kind {
	case story.KindTitle:
		if locked && sp.UnlockAfter > 0 && p.unlockTimer == nil {
			p.scheduleUnlock(sp.UnlockAfter)
		}
	case story.KindQuestion:
		p.startTyping(sp)
	}

	// With the entry gate a question must be ready before it is entered, so
	// it types while the panel before it is on screen.
	if p.orch.Config().ReadinessGate == dolly.GateEntry && stage+1 < len(p.story.Panels) {
		if next := p.story.Panels[stage+1]; next.Kind == story.KindQuestion {
			p.startTyping(next)
		}
	}
}

func (p *Player) scheduleUnlock(d time.Duration) {
	t, err := p.clock.After(d, func() {
		p.unlockTimer = nil
		p.publish(dolly.EventUnlock, nil)
	})
	if err != nil {
		p.logger.Warn("intro unlock timer unavailable", zap.Error(err))
		return
	}
	p.unlockTimer = t
}

func (p *Player) onReleased(any) {
	p.logger.Debug("credits released to native scrolling")
	p.credits.vp.GotoTop()
}

func (p *Player) reload(path string) {
	s, err := story.Load(path)
	if err != nil {
		p.notice = "reload failed"
		p.logger.Warn("story reload rejected", zap.String("path", path), zap.Error(err))
		return
	}

	snap := p.orch.Snapshot()
	if err := p.mount(s); err != nil {
		p.notice = "reload failed"
		p.logger.Warn("story reload could not mount", zap.String("path", path), zap.Error(err))
		return
	}

	last := len(s.Panels) - 1
	if snap.Stage > last {
		snap = dolly.NarrativeState{Stage: last}
	}
	snap.Accumulator = 0
	if snap.Released && (snap.Stage != last || !s.Panels[snap.Stage].Reveal) {
		snap.Released = false
		snap.Progress = 0
	}
	if err := p.orch.Restore(snap); err != nil {
		p.logger.Warn("position lost on reload", zap.Error(err))
	}
	p.notice = "reloaded"
	p.logger.Info("story reloaded", zap.String("path", path), zap.Int("panels", len(s.Panels)))
}

// Seek jumps to stage at progress with the intro lock released and any typing
// finished. It is how still frames of each panel are taken.
func (p *Player) Seek(stage int, progress float64) error {
	if p.unlockTimer != nil {
		p.unlockTimer.Stop()
		p.unlockTimer = nil
	}
	if err := p.orch.Restore(dolly.NarrativeState{Stage: stage, Progress: progress}); err != nil {
		return fmt.Errorf("seek %d: %w", stage, err)
	}
	if p.typing != nil {
		p.finishTyping(p.typing)
	}
	return nil
}

// Close disposes the orchestrator and every pending timer.
func (p *Player) Close() error {
	p.teardown()
	return nil
}

// CurrentStage returns the order of the panel on screen.
func (p *Player) CurrentStage() int { return p.orch.State().Stage }

// CurrentMode names what the player is doing.
func (p *Player) CurrentMode() string {
	s := p.orch.State()
	_, moving := p.orch.Controller().Transition()
	switch {
	case s.Released:
		return "released"
	case moving:
		return "transition"
	case p.typing != nil:
		return "typing"
	case s.Locked:
		return "locked"
	case p.orch.Controller().Cooling():
		return "cooldown"
	default:
		return "idle"
	}
}

// Conditions reports the named flags a driver can wait on.
func (p *Player) Conditions() map[string]bool {
	s := p.orch.State()
	ctrl := p.orch.Controller()
	_, moving := ctrl.Transition()
	c := map[string]bool{
		"locked":        s.Locked,
		"transitioning": moving,
		"cooling":       ctrl.Cooling(),
		"typing":        p.typing != nil,
		"released":      s.Released,
		"reloaded":      p.notice == "reloaded",
	}
	for _, sp := range p.story.Panels {
		if sp.Advance == dolly.WaitForSignal {
			c["ready:"+sp.ID] = ctrl.Ready(sp.ID)
		}
	}
	return c
}

// Story returns the story being played.
func (p *Player) Story() *story.Story { return p.story }

// Orchestrator returns the running orchestrator.
func (p *Player) Orchestrator() *dolly.Orchestrator { return p.orch }

// Trips returns every problem recorded since the player started, across reloads.
func (p *Player) Trips() *trip.Handler { return p.trips }
