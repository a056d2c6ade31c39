package taskqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sweeper runs the background timeout-sweep and orphan-GC loops,
// grounded on the same ticker-plus-pub/sub Run shape used by this
// codebase's other background engines: a single goroutine, a ticker,
// and a select loop that exits cleanly on context cancellation.
type Sweeper struct {
	queue    *Queue
	interval time.Duration
}

// NewSweeper builds a Sweeper polling at the given interval.
func NewSweeper(queue *Queue, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{queue: queue, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping timed-out active tasks
// and orphaned task hashes on each tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.queue.logger.Info("task queue sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.queue.logger.Info("task queue sweeper stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.queue.logger.Error("task queue sweeper tick", "error", err)
			}
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) error {
	sessions, err := s.activeSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing active sessions: %w", err)
	}

	for _, sessionID := range sessions {
		if err := s.sweepTimeouts(ctx, sessionID); err != nil {
			s.queue.logger.Error("sweeping timed-out tasks", "session_id", sessionID, "error", err)
		}
	}
	return s.sweepOrphans(ctx)
}

// activeSessions discovers session ids with a non-empty active set by
// scanning the active-set key pattern.
func (s *Sweeper) activeSessions(ctx context.Context) ([]string, error) {
	var sessions []string
	var cursor uint64
	for {
		keys, next, err := s.queue.rdb.Scan(ctx, cursor, "podex:tasks:*:active", 200).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			rest := strings.TrimPrefix(k, "podex:tasks:")
			rest = strings.TrimSuffix(rest, ":active")
			if rest != "" {
				sessions = append(sessions, rest)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessions, nil
}

func (s *Sweeper) sweepTimeouts(ctx context.Context, sessionID string) error {
	taskIDs, err := s.queue.rdb.SMembers(ctx, activeKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("listing active tasks: %w", err)
	}

	cutoff := time.Now().Add(-s.queue.visibilityTimeout)
	for _, taskID := range taskIDs {
		t, ok, err := s.queue.getTask(ctx, taskID)
		if err != nil {
			s.queue.logger.Error("fetching active task during sweep", "task_id", taskID, "error", err)
			continue
		}
		if !ok {
			// Orphaned active-set member with no backing task hash.
			s.queue.rdb.SRem(ctx, activeKey(sessionID), taskID)
			continue
		}
		if t.Status != StatusRunning || t.StartedAt.IsZero() || t.StartedAt.After(cutoff) {
			continue
		}

		reason := fmt.Sprintf("timed out after %s", s.queue.visibilityTimeout)
		if err := s.queue.Fail(ctx, sessionID, taskID, reason, true); err != nil {
			s.queue.logger.Error("failing timed-out task", "task_id", taskID, "error", err)
		}
	}
	return nil
}

// sweepOrphans scans task-hash keys and deletes any whose owning
// session no longer references them from pending, active, or
// completed.
func (s *Sweeper) sweepOrphans(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.queue.rdb.Scan(ctx, cursor, "podex:task:*", 200).Result()
		if err != nil {
			return fmt.Errorf("scanning task keys: %w", err)
		}
		for _, key := range keys {
			taskID := strings.TrimPrefix(key, "podex:task:")
			t, ok, err := s.queue.getTask(ctx, taskID)
			if err != nil || !ok {
				continue
			}
			referenced, err := s.isReferenced(ctx, t)
			if err != nil {
				s.queue.logger.Error("checking task reference during orphan GC", "task_id", taskID, "error", err)
				continue
			}
			if !referenced {
				s.queue.rdb.Del(ctx, key)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (s *Sweeper) isReferenced(ctx context.Context, t Task) (bool, error) {
	switch t.Status {
	case StatusPending:
		score := s.queue.rdb.ZScore(ctx, pendingKey(t.SessionID), t.ID)
		if err := score.Err(); err != nil {
			if err == redis.Nil {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case StatusRunning:
		n, err := s.queue.rdb.SIsMember(ctx, activeKey(t.SessionID), t.ID).Result()
		return n, err
	default:
		ids, err := s.queue.rdb.LRange(ctx, completedKey(t.SessionID), 0, -1).Result()
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if id == t.ID {
				return true, nil
			}
		}
		return false, nil
	}
}
