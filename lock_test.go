package dolly

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/dolly/trip"
)

type countingSuppressor struct {
	suppressed, restored int
}

func (c *countingSuppressor) Suppress() { c.suppressed++ }
func (c *countingSuppressor) Restore()  { c.restored++ }

func TestLockManager_ReferenceCounts(t *testing.T) {
	s := &countingSuppressor{}
	m := NewLockManager(s, nil)

	a, err := m.Acquire("narrative")
	require.NoError(t, err)
	b, err := m.Acquire("typewriter")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 1, s.suppressed)

	require.NoError(t, m.Release(a))
	assert.True(t, m.Held(), "acquire twice, release once leaves the lock held")
	assert.Equal(t, 0, s.restored)

	require.NoError(t, m.Release(b))
	assert.False(t, m.Held())
	assert.Equal(t, 1, s.restored)

	c, err := m.Acquire("narrative")
	require.NoError(t, err)
	assert.Equal(t, 2, s.suppressed)
	require.NoError(t, m.Release(c))
}

func TestLockManager_DoubleRelease(t *testing.T) {
	s := &countingSuppressor{}
	m := NewLockManager(s, nil)
	a, _ := m.Acquire("a")
	b, _ := m.Acquire("b")

	require.NoError(t, m.Release(a))
	err := m.Release(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trip.ErrLock))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 0, s.restored)

	other := NewLockManager(nil, nil)
	assert.Error(t, other.Release(b))
	assert.Error(t, m.Release(nil))
	assert.Equal(t, 1, m.Count())
}

func TestLockManager_RejectsEmptyOwner(t *testing.T) {
	m := NewLockManager(nil, nil)
	_, err := m.Acquire("")
	assert.True(t, errors.Is(err, trip.ErrLock))
	assert.Equal(t, 0, m.Count())
}

func TestLockManager_LogsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := NewLockManager(nil, zap.New(core))
	tok, _ := m.Acquire("narrative")
	_ = m.Release(tok)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "scroll lock acquired", entries[0].Message)
	assert.Equal(t, "narrative", entries[0].ContextMap()["owner"])
	assert.Equal(t, int64(0), entries[1].ContextMap()["count"])
}
