package dolly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func linearPanel() Panel {
	return Panel{
		ID:          "linear",
		Entry:       Window{T0: 0.2, T1: 0.4},
		Exit:        Window{T0: 0.6, T1: 0.8},
		EnterOffset: 0.5,
		ExitOffset:  0.25,
	}
}

func TestMapProgress_Windows(t *testing.T) {
	p := linearPanel()
	layout := Layout{Width: 80, Height: 20}

	tests := []struct {
		x       float64
		opacity float64
		offset  float64
		visible bool
	}{
		{0, 0, 10, false},
		{0.2, 0, 10, false},
		{0.3, 0.5, 5, true},
		{0.4, 1, 0, true},
		{0.5, 1, 0, true},
		{0.7, 0.5, -2.5, true},
		{0.8, 0, -5, false},
		{1, 0, -5, false},
	}
	for _, tt := range tests {
		got := MapProgress(p, tt.x, layout)
		assert.InDelta(t, tt.opacity, got.Opacity, 1e-9, "opacity at %g", tt.x)
		assert.InDelta(t, tt.offset, got.TransformOffsetPx, 1e-9, "offset at %g", tt.x)
		assert.Equal(t, tt.visible, got.ContentVisible, "visible at %g", tt.x)
	}
}

func TestMapProgress_NeverExtrapolates(t *testing.T) {
	p := linearPanel()
	p.EntryEasing = EaseOutCubic
	p.ExitEasing = EaseInOutCubic

	for _, x := range []float64{-5, -0.01, 1.01, 7, math.Inf(1), math.Inf(-1), math.NaN()} {
		got := MapProgress(p, x, DefaultLayout)
		assert.Equal(t, 0.0, got.Opacity, "opacity at %g", x)
		assert.False(t, got.ContentVisible)
	}
	for x := 0.0; x <= 1.0; x += 0.01 {
		got := MapProgress(p, x, DefaultLayout)
		assert.GreaterOrEqual(t, got.Opacity, 0.0)
		assert.LessOrEqual(t, got.Opacity, 1.0)
	}
}

func TestMapProgress_Easing(t *testing.T) {
	p := linearPanel()
	p.EntryEasing = EaseOutCubic

	got := MapProgress(p, 0.3, DefaultLayout)
	assert.InDelta(t, 0.875, got.Opacity, 1e-9)
}

func TestEasings(t *testing.T) {
	for _, name := range EasingNames() {
		e, ok := LookupEasing(name)
		assert.True(t, ok)
		assert.InDelta(t, 0, e(0), 1e-12, name)
		assert.InDelta(t, 1, e(1), 1e-12, name)
	}
	_, ok := LookupEasing("")
	assert.True(t, ok)
	_, ok = LookupEasing("elastic")
	assert.False(t, ok)
}

func TestTimeline(t *testing.T) {
	p := linearPanel()

	assert.InDelta(t, 0.4, Timeline(p, RoleActive, Forward, 0.9, 0), 1e-9)
	assert.InDelta(t, 0.5, Timeline(p, RoleActive, Forward, 0, 0.5), 1e-9)

	assert.InDelta(t, 0.0, Timeline(p, RoleIncoming, Forward, 0, 0), 1e-9)
	assert.InDelta(t, 0.4, Timeline(p, RoleIncoming, Forward, 1, 0), 1e-9)
	assert.InDelta(t, 0.8, Timeline(p, RoleIncoming, Backward, 0, 1), 1e-9)
	assert.InDelta(t, 0.6, Timeline(p, RoleIncoming, Backward, 1, 1), 1e-9)

	assert.InDelta(t, 0.8, Timeline(p, RoleOutgoing, Forward, 1, 0), 1e-9)
	assert.InDelta(t, 0.0, Timeline(p, RoleOutgoing, Backward, 1, 0), 1e-9)

	p.Reveal = true
	assert.InDelta(t, 0.18, Timeline(p, RoleActive, Forward, 0.3, 0), 1e-9)
	assert.InDelta(t, 0.6, Timeline(p, RoleActive, Forward, 1, 0), 1e-9)
	assert.InDelta(t, 0.0, Timeline(p, RoleIncoming, Forward, 0.7, 0), 1e-9)
	assert.InDelta(t, 0.0, Timeline(p, RoleHidden, Forward, 0.7, 0), 1e-9)
}
