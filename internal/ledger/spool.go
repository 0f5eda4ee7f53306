package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// defaultSpoolCapacity bounds how many failed records are held for retry.
// Past that the oldest entries are dropped; the ledger is best-effort by
// contract and must not grow without bound during a long store outage.
const defaultSpoolCapacity = 1000

// spool is a bounded in-memory queue of usage records that failed to insert.
type spool struct {
	mu       sync.Mutex
	entries  []model.UsageRecord
	capacity int
}

func newSpool(capacity int) *spool {
	if capacity <= 0 {
		capacity = defaultSpoolCapacity
	}
	return &spool{capacity: capacity}
}

// Add queues a record for retry and returns how many old entries were
// dropped to make room.
func (s *spool) Add(rec model.UsageRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped int
	if len(s.entries) >= s.capacity {
		dropped = len(s.entries) - s.capacity + 1
		s.entries = s.entries[dropped:]
	}
	s.entries = append(s.entries, rec)
	return dropped
}

func (s *spool) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Flush retries all spooled records as one batch. On failure the records go
// back to the spool for the next pass.
func (s *spool) Flush(ctx context.Context, st store.Store) {
	s.mu.Lock()
	pending := s.entries
	s.entries = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	if _, err := st.InsertUsageBatch(ctx, pending); err != nil {
		s.mu.Lock()
		s.entries = append(pending, s.entries...)
		if len(s.entries) > s.capacity {
			s.entries = s.entries[len(s.entries)-s.capacity:]
		}
		s.mu.Unlock()
		zap.L().Warn("usage spool flush failed",
			zap.Int("pending", len(pending)),
			zap.Error(err))
		return
	}
	zap.L().Info("usage spool flushed", zap.Int("records", len(pending)))
}

// hourCounter tracks request counts per user in the current fixed hour
// window. It intentionally lives in process memory: the hourly rate check
// guards provider spend from a runaway client, not cross-instance quotas.
type hourCounter struct {
	mu          sync.Mutex
	windowStart time.Time
	counts      map[string]int
	nowFunc     func() time.Time
}

func newHourCounter(nowFunc func() time.Time) *hourCounter {
	return &hourCounter{counts: map[string]int{}, nowFunc: nowFunc}
}

func (c *hourCounter) roll(now time.Time) {
	if now.Sub(c.windowStart) >= time.Hour {
		c.windowStart = now.Truncate(time.Hour)
		c.counts = map[string]int{}
	}
}

func (c *hourCounter) Increment(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(c.nowFunc().UTC())
	c.counts[userID]++
}

func (c *hourCounter) Count(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(c.nowFunc().UTC())
	return c.counts[userID]
}
