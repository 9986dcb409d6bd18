package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"
)

// creditsView is the trailing content. It scrolls natively once the
// narrative has handed scrolling back.
type creditsView struct {
	source string
	vp     viewport.Model
	logger *zap.Logger
}

func newCreditsView(markdown string, width, height int, logger *zap.Logger) creditsView {
	c := creditsView{source: markdown, vp: viewport.New(width, height), logger: logger}
	c.render(width)
	return c
}

func (c *creditsView) resize(width, height int) {
	c.vp.Width = width
	c.vp.Height = height
	c.render(width)
}

func (c *creditsView) render(width int) {
	out := c.source
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(contentWidth(width)),
	)
	if err == nil {
		out, err = r.Render(c.source)
	}
	if err != nil {
		c.logger.Warn("credits markdown not rendered", zap.Error(err))
		out = c.source
	}
	c.vp.SetContent(strings.TrimRight(out, "\n"))
}

// view fades the credits in as plain text and shows the styled markdown once
// fully opaque.
func (c *creditsView) view(opacity float64) string {
	if opacity >= 1 {
		return c.vp.View()
	}
	return lipgloss.NewStyle().Foreground(blend(colorBody, opacity)).Render(ansi.Strip(c.vp.View()))
}
