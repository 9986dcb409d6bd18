package dolly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dolly/trip"
)

func TestRegistry_OrdersPanels(t *testing.T) {
	panels := testPanels(3)
	panels[0], panels[2] = panels[2], panels[0]

	reg, err := NewRegistry(panels)
	require.NoError(t, err)

	assert.Equal(t, 3, reg.Count())
	assert.Equal(t, 2, reg.Last())
	for i, p := range reg.Panels() {
		assert.Equal(t, i, p.Order)
	}

	p, ok := reg.Lookup("p1")
	require.True(t, ok)
	assert.Equal(t, 1, p.Order)

	_, ok = reg.Get(3)
	assert.False(t, ok)
	assert.Panics(t, func() { reg.MustGet(-1) })
}

func TestRegistry_Next(t *testing.T) {
	reg, err := NewRegistry(testPanels(3))
	require.NoError(t, err)

	tests := []struct {
		order int
		dir   Direction
		want  int
		ok    bool
	}{
		{0, Forward, 1, true},
		{1, Forward, 2, true},
		{2, Forward, 0, false},
		{2, Backward, 1, true},
		{0, Backward, 0, false},
		{1, DirectionNone, 0, false},
	}
	for _, tt := range tests {
		got, ok := reg.Next(tt.order, tt.dir)
		assert.Equal(t, tt.ok, ok, "Next(%d, %s)", tt.order, tt.dir)
		assert.Equal(t, tt.want, got, "Next(%d, %s)", tt.order, tt.dir)
	}
}

func TestRegistry_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]Panel) []Panel
	}{
		{"empty", func([]Panel) []Panel { return nil }},
		{"not zero based", func(p []Panel) []Panel {
			for i := range p {
				p[i].Order++
			}
			return p
		}},
		{"gap", func(p []Panel) []Panel { p[2].Order = 5; return p }},
		{"duplicate order", func(p []Panel) []Panel { p[2].Order = 1; return p }},
		{"empty id", func(p []Panel) []Panel { p[1].ID = ""; return p }},
		{"duplicate id", func(p []Panel) []Panel { p[1].ID = "p0"; return p }},
		{"entry reversed", func(p []Panel) []Panel { p[0].Entry = Window{0.3, 0.1}; return p }},
		{"entry overlaps exit", func(p []Panel) []Panel { p[0].Entry = Window{0, 0.8}; return p }},
		{"exit past one", func(p []Panel) []Panel { p[0].Exit = Window{0.8, 1.2}; return p }},
		{"negative start", func(p []Panel) []Panel { p[0].Entry = Window{-0.1, 0.2}; return p }},
		{"unknown easing", func(p []Panel) []Panel { p[0].ExitEasing = "bounce"; return p }},
		{"negative range", func(p []Panel) []Panel { p[0].SubScrollRange = -1; return p }},
		{"reveal not last", func(p []Panel) []Panel { p[1].Reveal = true; return p }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.mutate(testPanels(3)))
			require.Error(t, err)
			assert.True(t, errors.Is(err, trip.ErrConfig))

			tr, ok := trip.As(err)
			require.True(t, ok)
			assert.True(t, tr.IsFall())
		})
	}
}

func TestRegistry_TouchingWindowsAllowed(t *testing.T) {
	panels := testPanels(1)
	panels[0].Entry = Window{0, 0.5}
	panels[0].Exit = Window{0.5, 1}
	_, err := NewRegistry(panels)
	assert.NoError(t, err)
}

func TestRegistry_IsolatedFromCaller(t *testing.T) {
	panels := testPanels(2)
	reg, err := NewRegistry(panels)
	require.NoError(t, err)

	panels[0].ID = "changed"
	out := reg.Panels()
	out[1].ID = "changed too"

	assert.Equal(t, "p0", reg.MustGet(0).ID)
	assert.Equal(t, "p1", reg.MustGet(1).ID)
}
