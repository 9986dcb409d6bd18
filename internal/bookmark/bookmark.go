// Package bookmark remembers where a viewer left each story.
//
// Bookmarks live in the per-user data directory managed by gdata. When that
// directory cannot be opened the store runs in degraded mode: loads find
// nothing and saves are dropped.
package bookmark

import (
	"fmt"
	"strings"
	"time"

	"github.com/quasilyte/gdata/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dolly"
)

const bookmarkObject = "bookmarks"

// Bookmark is one saved position.
type Bookmark struct {
	Story   string               `yaml:"story"`
	State   dolly.NarrativeState `yaml:"state"`
	SavedAt time.Time            `yaml:"saved_at"`
}

// Store reads and writes bookmarks. A nil manager is degraded mode.
type Store struct {
	manager *gdata.Manager
	logger  *zap.Logger
	now     func() time.Time
}

// Open opens the data directory of appName. It never fails; check Enabled.
func Open(appName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		logger.Warn("bookmarks disabled", zap.String("app", appName), zap.Error(err))
		m = nil
	}
	return NewStore(m, logger)
}

// NewStore wraps an opened manager, which may be nil.
func NewStore(m *gdata.Manager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{manager: m, logger: logger, now: time.Now}
}

// Enabled reports whether bookmarks are persisted.
func (s *Store) Enabled() bool { return s.manager != nil }

// Load returns the bookmark for story, if one was saved.
func (s *Store) Load(story string) (Bookmark, bool, error) {
	if s.manager == nil {
		return Bookmark{}, false, nil
	}
	key := Key(story)
	if !s.manager.ObjectPropExists(bookmarkObject, key) {
		return Bookmark{}, false, nil
	}
	data, err := s.manager.LoadObjectProp(bookmarkObject, key)
	if err != nil {
		return Bookmark{}, false, fmt.Errorf("load bookmark %s: %w", key, err)
	}
	var b Bookmark
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bookmark{}, false, fmt.Errorf("decode bookmark %s: %w", key, err)
	}
	return b, true, nil
}

// Save stores state as the bookmark for story.
func (s *Store) Save(story string, state dolly.NarrativeState) error {
	if s.manager == nil {
		return nil
	}
	data, err := yaml.Marshal(Bookmark{Story: story, State: state, SavedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode bookmark: %w", err)
	}
	key := Key(story)
	if err := s.manager.SaveObjectProp(bookmarkObject, key, data); err != nil {
		return fmt.Errorf("save bookmark %s: %w", key, err)
	}
	s.logger.Debug("bookmark saved", zap.String("story", story), zap.Int("stage", state.Stage))
	return nil
}

// Key turns a story name into a property name safe for the data directory.
func Key(story string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(story) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	key := strings.TrimSuffix(b.String(), "_")
	if key == "" {
		return "untitled"
	}
	return key
}
