package dolly

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dolly/trip"
)

// Suppressor turns native scrolling off and on.
type Suppressor interface {
	Suppress()
	Restore()
}

// SuppressorFuncs adapts two functions to a Suppressor. Nil fields are no-ops.
type SuppressorFuncs struct {
	OnSuppress func()
	OnRestore  func()
}

func (s SuppressorFuncs) Suppress() {
	if s.OnSuppress != nil {
		s.OnSuppress()
	}
}

func (s SuppressorFuncs) Restore() {
	if s.OnRestore != nil {
		s.OnRestore()
	}
}

// Token is an acquired scroll lock.
type Token struct {
	ID    string
	Owner string

	released bool
}

// LockManager reference-counts scroll suppression across owners. Scrolling is
// suppressed while at least one token is outstanding.
type LockManager struct {
	suppressor Suppressor
	logger     *zap.Logger
	held       map[string]*Token
}

// NewLockManager returns a manager driving s. A nil suppressor is a no-op.
func NewLockManager(s Suppressor, logger *zap.Logger) *LockManager {
	if s == nil {
		s = SuppressorFuncs{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockManager{suppressor: s, logger: logger, held: make(map[string]*Token)}
}

// Acquire takes a token for owner, suppressing scrolling on the first one.
func (m *LockManager) Acquire(owner string) (*Token, error) {
	if owner == "" {
		return nil, trip.NewTrip(trip.TypeLock, "lock owner is empty", nil)
	}
	t := &Token{ID: uuid.NewString(), Owner: owner}
	m.held[t.ID] = t
	if len(m.held) == 1 {
		m.suppressor.Suppress()
	}
	m.logger.Debug("scroll lock acquired",
		zap.String("owner", owner),
		zap.String("token", t.ID),
		zap.Int("count", len(m.held)))
	return t, nil
}

// Release returns t, restoring scrolling when it was the last token. Releasing
// a token twice, or a token from another manager, is an error and leaves the
// count unchanged.
func (m *LockManager) Release(t *Token) error {
	if t == nil {
		return trip.NewTrip(trip.TypeLock, "release of nil token", nil)
	}
	if t.released {
		return trip.NewTrip(trip.TypeLock, "token already released", trip.Context{
			"owner": t.Owner,
			"token": t.ID,
		})
	}
	if _, ok := m.held[t.ID]; !ok {
		return trip.NewTrip(trip.TypeLock, "token not held by this manager", trip.Context{
			"owner": t.Owner,
			"token": t.ID,
		})
	}
	t.released = true
	delete(m.held, t.ID)
	if len(m.held) == 0 {
		m.suppressor.Restore()
	}
	m.logger.Debug("scroll lock released",
		zap.String("owner", t.Owner),
		zap.String("token", t.ID),
		zap.Int("count", len(m.held)))
	return nil
}

// Count returns the number of outstanding tokens.
func (m *LockManager) Count() int { return len(m.held) }

// Held reports whether scrolling is currently suppressed.
func (m *LockManager) Held() bool { return len(m.held) > 0 }

// releaseAll drops every token and restores scrolling if anything was held.
func (m *LockManager) releaseAll() {
	if len(m.held) == 0 {
		return
	}
	for id, t := range m.held {
		t.released = true
		delete(m.held, id)
	}
	m.suppressor.Restore()
}
