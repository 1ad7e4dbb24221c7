package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockScanPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (m *mockScanPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.count, m.err
}

func (m *mockScanPruner) calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestCleanupJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewCleanupJob(nil, 30*24*time.Hour, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
		assert.Equal(t, 30*24*time.Hour, job.retention)
	})

	t.Run("runs cleanup on start with retention cutoff", func(t *testing.T) {
		now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
		pruner := &mockScanPruner{count: 3}

		job := NewCleanupJob(pruner, 48*time.Hour, time.Hour)
		job.now = func() time.Time { return now }

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return len(pruner.calls()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, now.Add(-48*time.Hour), pruner.calls()[0])
	})

	t.Run("repeats on every tick", func(t *testing.T) {
		pruner := &mockScanPruner{}

		job := NewCleanupJob(pruner, time.Hour, 10*time.Millisecond)
		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool { return len(pruner.calls()) >= 3 }, time.Second, 5*time.Millisecond)
	})

	t.Run("survives repository errors", func(t *testing.T) {
		pruner := &mockScanPruner{err: errors.New("db down")}

		job := NewCleanupJob(pruner, time.Hour, 10*time.Millisecond)
		job.Start()

		assert.Eventually(t, func() bool { return len(pruner.calls()) >= 2 }, time.Second, 5*time.Millisecond)
		job.Stop()
		job.Stop()
	})
}
