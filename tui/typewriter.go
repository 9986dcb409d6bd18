package tui

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dolly"
	"github.com/teranos/dolly/story"
)

// typewriter types a question one rune per keystroke. It holds its own
// scroll lock token while typing and signals readiness when done.
type typewriter struct {
	id    string
	text  []rune
	shown int
	speed time.Duration
	token *dolly.Token
	timer dolly.Timer
}

func (tw *typewriter) visible() string { return string(tw.text[:tw.shown]) }

func (p *Player) startTyping(sp story.Panel) {
	if p.typed[sp.ID] {
		p.markReady(sp.ID)
		return
	}
	if p.typing != nil {
		return
	}

	tw := &typewriter{id: sp.ID, text: []rune(sp.Body), speed: sp.TypeSpeed}
	if tw.speed <= 0 || len(tw.text) == 0 {
		p.finishTyping(tw)
		return
	}
	token, err := p.orch.Locks().Acquire("typewriter:" + sp.ID)
	if err != nil {
		p.logger.Warn("typewriter lock refused", zap.String("panel", sp.ID), zap.Error(err))
	}
	tw.token = token
	p.typing = tw
	p.scheduleKeystroke(tw)
}

func (p *Player) scheduleKeystroke(tw *typewriter) {
	t, err := p.clock.After(tw.speed, func() { p.keystroke(tw) })
	if err != nil {
		p.finishTyping(tw)
		return
	}
	tw.timer = t
}

func (p *Player) keystroke(tw *typewriter) {
	if p.typing != tw {
		return
	}
	tw.timer = nil
	tw.shown++
	if tw.shown >= len(tw.text) {
		p.finishTyping(tw)
		return
	}
	p.scheduleKeystroke(tw)
}

func (p *Player) finishTyping(tw *typewriter) {
	p.halt(tw)
	tw.shown = len(tw.text)
	p.typed[tw.id] = true
	p.logger.Debug("question typed", zap.String("panel", tw.id))
	p.markReady(tw.id)
}

// stopTyping abandons the running typewriter without signalling readiness.
func (p *Player) stopTyping() {
	if p.typing != nil {
		p.halt(p.typing)
	}
}

func (p *Player) halt(tw *typewriter) {
	if tw.timer != nil {
		tw.timer.Stop()
		tw.timer = nil
	}
	if tw.token != nil {
		if err := p.orch.Locks().Release(tw.token); err != nil {
			p.logger.Debug("typewriter lock already gone", zap.Error(err))
		}
		tw.token = nil
	}
	if p.typing == tw {
		p.typing = nil
	}
}

func (p *Player) markReady(id string) {
	if p.orch.Controller().Ready(id) {
		return
	}
	p.publish(dolly.EventReady, id)
}

// typedText is what a question panel shows right now.
func (p *Player) typedText(sp story.Panel) (text string, typing bool) {
	if p.typing != nil && p.typing.id == sp.ID {
		return p.typing.visible(), true
	}
	if p.typed[sp.ID] {
		return sp.Body, false
	}
	return "", false
}
