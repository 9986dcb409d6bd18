// Package story loads narrative files: the panel table, its copy text and the
// orchestrator tuning.
//
// Story files are YAML. Files ending in .json, .jsonc or .hujson are read as
// JSON with comments and trailing commas. DOLLY_* environment variables
// override the tuning after the file is read.
package story

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dolly"
	"github.com/teranos/dolly/trip"
)

//go:embed default.yaml
var defaultStory []byte

// EnvPrefix prefixes every tuning override.
const EnvPrefix = "DOLLY_"

// Kind selects how a panel is drawn.
type Kind string

const (
	KindTitle    Kind = "title"
	KindQuestion Kind = "question"
	KindMap      Kind = "map"
	KindCredits  Kind = "credits"
)

// Story is a parsed narrative file.
type Story struct {
	Title   string       `yaml:"title"`
	Config  dolly.Config `yaml:"config"`
	Panels  []Panel      `yaml:"panels"`
	Credits string       `yaml:"credits"`

	// Source is the file the story came from, empty for the bundled story.
	Source string `yaml:"-"`
}

// Panel is one panel as written in a story file. Order is its position in
// the list.
type Panel struct {
	ID      string            `yaml:"id"`
	Kind    Kind              `yaml:"kind"`
	Advance dolly.AdvanceMode `yaml:"advance"`

	Entry       [2]float64 `yaml:"entry"`
	Exit        [2]float64 `yaml:"exit"`
	EntryEasing string     `yaml:"entry_easing"`
	ExitEasing  string     `yaml:"exit_easing"`
	EnterOffset float64    `yaml:"enter_offset"`
	ExitOffset  float64    `yaml:"exit_offset"`

	SubScrollRange float64 `yaml:"sub_scroll_range"`
	Reveal         bool    `yaml:"reveal"`

	Title      string   `yaml:"title"`
	Body       string   `yaml:"body"`
	Highlights []string `yaml:"highlights"`

	// UnlockAfter releases the intro lock once the title has played.
	UnlockAfter time.Duration `yaml:"unlock_after"`
	// TypeSpeed is the delay per character of a typed question.
	TypeSpeed time.Duration `yaml:"type_speed"`
}

// Default returns the bundled story with environment overrides applied.
func Default() (*Story, error) {
	s, err := Parse(defaultStory, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("bundled story: %w", err)
	}
	return s, nil
}

// Format is the encoding of a story file.
type Format int

const (
	FormatYAML Format = iota
	FormatHuJSON
)

// FormatOf picks the format from a file name.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc", ".hujson":
		return FormatHuJSON
	default:
		return FormatYAML
	}
}

// Load reads, parses and validates the story at path.
func Load(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	s, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// Parse decodes data on top of dolly.DefaultConfig, applies environment
// overrides and validates the result.
func Parse(data []byte, format Format) (*Story, error) {
	if format == FormatHuJSON {
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, trip.Config("story is not valid JSON", trip.Context{"error": err.Error()})
		}
		data = std
	}

	s := &Story{Config: dolly.DefaultConfig()}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, trip.Config("story could not be decoded", trip.Context{"error": err.Error()})
	}
	if err := ApplyEnv(&s.Config); err != nil {
		return nil, trip.Config("environment override rejected", trip.Context{"error": err.Error()})
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyEnv overrides cfg from DOLLY_* variables.
func ApplyEnv(cfg *dolly.Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the tuning and the panel table the way the orchestrator
// will when mounting.
func (s *Story) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	for i, p := range s.Panels {
		switch p.Kind {
		case KindTitle, KindQuestion, KindMap, KindCredits:
		default:
			return trip.Config("unknown panel kind", trip.Context{"panel": p.ID, "order": i, "kind": string(p.Kind)})
		}
		if p.UnlockAfter < 0 || p.TypeSpeed < 0 {
			return trip.Config("panel delays must not be negative", trip.Context{"panel": p.ID})
		}
	}
	_, err := dolly.NewRegistry(s.DollyPanels())
	return err
}

// DollyPanels converts the panel table for the orchestrator.
func (s *Story) DollyPanels() []dolly.Panel {
	out := make([]dolly.Panel, len(s.Panels))
	for i, p := range s.Panels {
		out[i] = dolly.Panel{
			ID:             p.ID,
			Order:          i,
			Advance:        p.Advance,
			Entry:          dolly.Window{T0: p.Entry[0], T1: p.Entry[1]},
			Exit:           dolly.Window{T0: p.Exit[0], T1: p.Exit[1]},
			EntryEasing:    p.EntryEasing,
			ExitEasing:     p.ExitEasing,
			EnterOffset:    p.EnterOffset,
			ExitOffset:     p.ExitOffset,
			SubScrollRange: p.SubScrollRange,
			Reveal:         p.Reveal,
		}
	}
	return out
}

// Panel returns the story panel with id.
func (s *Story) Panel(id string) (Panel, bool) {
	for _, p := range s.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return Panel{}, false
}
