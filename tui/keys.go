package tui

import "github.com/charmbracelet/bubbles/key"

// Scroll deltas produced by the keyboard and the mouse wheel, in the same
// units as the narrative threshold.
const (
	WheelDelta = 40.0
	LineDelta  = 40.0
	PageDelta  = 120.0
)

// KeyMap binds the player keys.
type KeyMap struct {
	Down     key.Binding
	Up       key.Binding
	PageDown key.Binding
	PageUp   key.Binding
	Home     key.Binding
	End      key.Binding
	Unlock   key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the stock bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "scroll")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "back")),
		PageDown: key.NewBinding(key.WithKeys(" ", "space", "pgdown"), key.WithHelp("space", "page")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "shift+space")),
		Home:     key.NewBinding(key.WithKeys("home")),
		End:      key.NewBinding(key.WithKeys("end")),
		Unlock:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "begin")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.PageDown, k.Unlock, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up, k.PageDown, k.PageUp},
		{k.Home, k.End, k.Unlock, k.Quit},
	}
}
