package stage

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func benchConfig() StageConfig {
	return StageConfig{Timeout: time.Second, BufferSize: 50}
}

// BenchmarkFrameCapture measures one message round trip through the
// program and the frame channel.
func BenchmarkFrameCapture(b *testing.B) {
	director := NewStageDirectorWithConfig(b, &mockNarrative{}, benchConfig()).Start()
	defer director.Stop()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		director.sendMessage(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	}
}

// BenchmarkPlayerElapse measures virtual time steps on a real player.
func BenchmarkPlayerElapse(b *testing.B) {
	director := NewStageDirectorWithConfig(b, newPlayer(b), benchConfig()).Start()
	defer director.Stop()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		director.Elapse(16 * time.Millisecond)
	}
}

// BenchmarkWrapperUpdate measures the capture path without a program.
func BenchmarkWrapperUpdate(b *testing.B) {
	director := NewStageDirectorWithConfig(b, &mockNarrative{}, StageConfig{Timeout: time.Second, BufferSize: 5})
	defer director.Stop()
	wrapper := stageModelWrapper{NarrativeModel: &mockNarrative{}, director: director}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		wrapper.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")})
	}

	stats := director.GetSynchronizationStats()
	b.ReportMetric(float64(stats["buffer_overflows"]), "overflows")
	b.ReportMetric(float64(stats["updates_processed"]), "processed")
}

func TestWrapperCountsOverflows(t *testing.T) {
	director := &StageDirector{
		t:         t,
		modelChan: make(chan modelUpdate, 2),
	}
	wrapper := stageModelWrapper{NarrativeModel: &mockNarrative{}, director: director}

	for i := 0; i < 5; i++ {
		wrapper.Update(tea.KeyMsg{Type: tea.KeyEnter})
	}

	stats := director.GetSynchronizationStats()
	assert.Equal(t, int64(5), stats["updates_generated"])
	assert.Equal(t, int64(2), stats["updates_sent"])
	assert.Equal(t, int64(3), stats["buffer_overflows"])
	assert.True(t, director.HasDroppedUpdates())
	assert.InDelta(t, 100, director.GetBufferUtilization(), 1e-9)

	director.ResetMetrics()
	assert.False(t, director.HasDroppedUpdates())
	assert.Equal(t, int64(5), director.GetSynchronizationStats()["updates_generated"], "sequence keeps counting")
}

func TestSyncDropsDuplicatesAndCountsGaps(t *testing.T) {
	director := &StageDirector{
		t:         t,
		modelChan: make(chan modelUpdate, 8),
		stopSync:  make(chan struct{}),
		syncDone:  make(chan struct{}),
	}
	go director.syncModelUpdates()

	for _, seq := range []int64{1, 2, 2, 5, 3} {
		director.modelChan <- modelUpdate{frame: Frame{Stage: int(seq)}, sequence: seq, timestamp: time.Now()}
	}
	require.Eventually(t, func() bool {
		return director.GetSynchronizationStats()["updates_processed"] == 3
	}, time.Second, time.Millisecond)

	close(director.stopSync)
	<-director.syncDone

	stats := director.GetSynchronizationStats()
	assert.Equal(t, int64(2), stats["duplicate_updates"], "2 repeated and 3 behind 5")
	assert.Equal(t, int64(1), stats["sequence_gaps"])
	assert.Equal(t, 5, director.Frame().Stage)
}
