package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/teranos/dolly"
	"github.com/teranos/dolly/story"
)

// Palette. Opacity is drawn by blending a color toward the background.
const (
	colorBackground = "#0b0d12"
	colorTitle      = "#f4f1ea"
	colorBody       = "#d8d4cc"
	colorAccent     = "#e0a458"
	colorDim        = "#6b6f7a"
)

const maxContentWidth = 64

func blend(hex string, opacity float64) lipgloss.Color {
	fg, err := colorful.Hex(hex)
	if err != nil {
		return lipgloss.Color(hex)
	}
	bg, err := colorful.Hex(colorBackground)
	if err != nil {
		return lipgloss.Color(hex)
	}
	opacity = math.Max(0, math.Min(1, opacity))
	return lipgloss.Color(bg.BlendRgb(fg, opacity).Clamped().Hex())
}

func contentWidth(width int) int {
	w := width - 4
	if w > maxContentWidth {
		w = maxContentWidth
	}
	if w < 10 {
		w = 10
	}
	return w
}

// View implements tea.Model. Visible panels are stacked into the body rows
// at their slide offset; later panels draw over earlier ones.
func (p *Player) View() string {
	if p.quitting {
		return ""
	}
	h := p.bodyHeight()
	rows := make([]string, h)
	for _, v := range p.orch.Views() {
		if !v.Progress.ContentVisible {
			continue
		}
		lines := strings.Split(p.renderPanel(v), "\n")
		top := (h-len(lines))/2 + int(math.Round(v.Progress.TransformOffsetPx))
		for i, line := range lines {
			if row := top + i; row >= 0 && row < h {
				rows[row] = line
			}
		}
	}
	for i, row := range rows {
		rows[i] = lipgloss.PlaceHorizontal(p.width, lipgloss.Center, row)
	}
	return strings.Join(rows, "\n") + "\n" + p.statusLine()
}

func (p *Player) renderPanel(v dolly.PanelView) string {
	sp := p.story.Panels[v.Panel.Order]
	op := v.Progress.Opacity
	w := contentWidth(p.width)

	switch sp.Kind {
	case story.KindTitle:
		title := lipgloss.NewStyle().Bold(true).Foreground(blend(colorTitle, op)).
			Render(strings.ToUpper(sp.Title))
		sub := lipgloss.NewStyle().Foreground(blend(colorDim, op)).Render(sp.Body)
		hint := "scroll ↓"
		if p.orch.State().Locked {
			hint = "enter to begin"
		}
		return lipgloss.JoinVertical(lipgloss.Center, title, "", sub, "", "",
			lipgloss.NewStyle().Foreground(blend(colorAccent, op)).Render(hint))

	case story.KindQuestion:
		text, typing := p.typedText(sp)
		if typing {
			text += "▌"
		}
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blend(colorAccent, op)).
			Foreground(blend(colorBody, op)).
			Padding(1, 2).
			Width(w).
			Render(text)

	case story.KindMap:
		var b strings.Builder
		body := lipgloss.NewStyle().Foreground(blend(colorBody, op))
		mark := lipgloss.NewStyle().Bold(true).Foreground(blend(colorAccent, op))
		for _, seg := range highlight(sp.Body, sp.Highlights) {
			if seg.marked {
				b.WriteString(mark.Render(seg.text))
			} else {
				b.WriteString(body.Render(seg.text))
			}
		}
		return lipgloss.NewStyle().Width(w).Render(b.String())

	case story.KindCredits:
		return p.credits.view(op)
	}
	return ""
}

type segment struct {
	text   string
	marked bool
}

// highlight splits body around the first occurrence of each phrase, earliest
// first.
func highlight(body string, phrases []string) []segment {
	var out []segment
	for body != "" {
		at, phrase := -1, ""
		for _, ph := range phrases {
			if ph == "" {
				continue
			}
			if i := strings.Index(body, ph); i >= 0 && (at < 0 || i < at) {
				at, phrase = i, ph
			}
		}
		if at < 0 {
			out = append(out, segment{text: body})
			break
		}
		if at > 0 {
			out = append(out, segment{text: body[:at]})
		}
		out = append(out, segment{text: phrase, marked: true})
		body = body[at+len(phrase):]
	}
	return out
}

func (p *Player) statusLine() string {
	s := p.orch.State()
	dots := make([]string, len(p.story.Panels))
	for i := range dots {
		dots[i] = "·"
		if i == s.Stage {
			dots[i] = "●"
		}
	}
	left := lipgloss.NewStyle().Foreground(lipgloss.Color(colorDim)).Render(strings.Join(dots, " "))
	if p.notice != "" {
		left += "  " + lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)).Render(p.notice)
	}
	right := p.help.View(p.cfg.Keys)
	gap := p.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
