package taskqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

const (
	completedCap = 100
	pendingTTL   = 24 * time.Hour
	terminalTTL  = time.Hour
)

// Queue is a per-coordinator-instance handle onto the Redis-backed task
// queue. It holds no session-specific state; every method is keyed by
// session id.
type Queue struct {
	rdb    *redis.Client
	logger *slog.Logger

	visibilityTimeout time.Duration
}

// NewQueue builds a Queue. visibilityTimeout is how long a claimed task
// may run before the sweeper fails it for retry.
func NewQueue(rdb *redis.Client, logger *slog.Logger, visibilityTimeout time.Duration) *Queue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &Queue{rdb: rdb, logger: logger, visibilityTimeout: visibilityTimeout}
}

func score(priority Priority, retryCount int, at time.Time) float64 {
	frac := float64(at.UnixNano()) / float64(time.Second) / 1e9 // Unix time in units of 1e9 s (about 1.8 today): grows with time for FIFO within a class, far below the 10-point retry step
	return float64(priority) + frac + float64(10*retryCount)
}

func (q *Queue) publish(ctx context.Context, ev Event) {
	ev.Timestamp = time.Now().Unix()
	b, err := json.Marshal(ev)
	if err != nil {
		q.logger.Error("marshaling task event", "error", err)
		return
	}
	if err := q.rdb.Publish(ctx, UpdatesChannel, b).Err(); err != nil {
		q.logger.Error("publishing task event", "error", err)
	}
}

// Enqueue allocates a task id, persists the task hash, and adds it to
// the pending sorted set.
func (q *Queue) Enqueue(ctx context.Context, sessionID, agentRole string, priority Priority, payload map[string]any, maxRetries int) (Task, error) {
	now := time.Now()
	t := Task{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		AgentRole:  agentRole,
		Priority:   priority,
		Payload:    payload,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}

	if err := q.putTask(ctx, t, pendingTTL); err != nil {
		return Task{}, err
	}
	if err := q.rdb.ZAdd(ctx, pendingKey(sessionID), redis.Z{Score: score(priority, 0, now), Member: t.ID}).Err(); err != nil {
		return Task{}, coreerrors.Transport(err, "adding task %s to pending set", t.ID)
	}
	if err := q.rdb.ZAdd(ctx, historyKey(sessionID), redis.Z{Score: float64(now.UnixMicro()), Member: t.ID}).Err(); err != nil {
		return Task{}, coreerrors.Transport(err, "indexing task %s in history", t.ID)
	}

	q.publish(ctx, Event{Event: "task_created", TaskID: t.ID, SessionID: sessionID, Status: StatusPending})
	return t, nil
}

func (q *Queue) putTask(ctx context.Context, t Task, ttl time.Duration) error {
	b, err := json.Marshal(t)
	if err != nil {
		return coreerrors.Validation("serializing task %s: %v", t.ID, err)
	}
	if err := q.rdb.Set(ctx, taskKey(t.ID), b, ttl).Err(); err != nil {
		return coreerrors.Transport(err, "persisting task %s", t.ID)
	}
	return nil
}

func (q *Queue) getTask(ctx context.Context, taskID string) (Task, bool, error) {
	raw, err := q.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if err == redis.Nil {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, coreerrors.Transport(err, "fetching task %s", taskID)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, false, coreerrors.Fatal(err, "corrupt task record %s", taskID)
	}
	return t, true, nil
}

// Dequeue walks the pending sorted set in score order and attempts an
// atomic claim on the first live candidate. Entries whose task body has
// been garbage-collected are skipped and their stale sorted-set entry
// removed. Returns (Task{}, false, nil) if nothing is claimable.
func (q *Queue) Dequeue(ctx context.Context, sessionID, workerID string) (Task, bool, error) {
	key := pendingKey(sessionID)
	for {
		ids, err := q.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return Task{}, false, coreerrors.Transport(err, "scanning pending set for session %s", sessionID)
		}
		if len(ids) == 0 {
			return Task{}, false, nil
		}
		taskID := ids[0].Member.(string)

		t, ok, err := q.getTask(ctx, taskID)
		if err != nil {
			return Task{}, false, err
		}
		if !ok {
			// Task body expired or was never written; clean up and retry.
			q.rdb.ZRem(ctx, key, taskID)
			continue
		}

		removed, err := q.rdb.ZRem(ctx, key, taskID).Result()
		if err != nil {
			return Task{}, false, coreerrors.Transport(err, "claiming task %s", taskID)
		}
		if removed == 0 {
			// Another worker won the race; try the next candidate.
			continue
		}

		if err := q.rdb.SAdd(ctx, activeKey(sessionID), taskID).Err(); err != nil {
			return Task{}, false, coreerrors.Transport(err, "marking task %s active", taskID)
		}

		t.Status = StatusRunning
		t.StartedAt = time.Now()
		t.AssignedWorker = workerID
		if err := q.putTask(ctx, t, pendingTTL); err != nil {
			return Task{}, false, err
		}

		q.publish(ctx, Event{Event: "task_started", TaskID: t.ID, SessionID: sessionID, Status: StatusRunning})
		return t, true, nil
	}
}

// Complete is idempotent: completing an already-completed task is a
// no-op success.
func (q *Queue) Complete(ctx context.Context, sessionID, taskID string) error {
	t, ok, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("task %s not found", taskID)
	}
	if t.Status == StatusCompleted {
		return nil
	}

	if err := q.rdb.SRem(ctx, activeKey(sessionID), taskID).Err(); err != nil {
		return coreerrors.Transport(err, "removing task %s from active set", taskID)
	}
	if err := q.pushCompleted(ctx, sessionID, taskID); err != nil {
		return err
	}

	t.Status = StatusCompleted
	t.CompletedAt = time.Now()
	if err := q.putTask(ctx, t, terminalTTL); err != nil {
		return err
	}

	q.publish(ctx, Event{Event: "task_completed", TaskID: taskID, SessionID: sessionID, Status: StatusCompleted})
	return nil
}

func (q *Queue) pushCompleted(ctx context.Context, sessionID, taskID string) error {
	key := completedKey(sessionID)
	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, key, taskID)
	pipe.LTrim(ctx, key, 0, completedCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "recording task %s in completed list", taskID)
	}
	return nil
}

// Fail removes a task from the active set and either requeues it (if
// retry is requested and retries remain) or marks it terminally failed.
func (q *Queue) Fail(ctx context.Context, sessionID, taskID, errMsg string, retry bool) error {
	t, ok, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("task %s not found", taskID)
	}

	if err := q.rdb.SRem(ctx, activeKey(sessionID), taskID).Err(); err != nil {
		return coreerrors.Transport(err, "removing task %s from active set", taskID)
	}

	t.RetryCount++
	t.Error = errMsg

	if retry && t.RetryCount <= t.MaxRetries {
		t.Status = StatusPending
		t.StartedAt = time.Time{}
		t.AssignedWorker = ""
		if err := q.putTask(ctx, t, pendingTTL); err != nil {
			return err
		}
		if err := q.rdb.ZAdd(ctx, pendingKey(sessionID), redis.Z{
			Score:  score(t.Priority, t.RetryCount, time.Now()),
			Member: t.ID,
		}).Err(); err != nil {
			return coreerrors.Transport(err, "requeuing task %s", t.ID)
		}
		q.publish(ctx, Event{Event: "task_retry", TaskID: taskID, SessionID: sessionID, Status: StatusPending})
		return nil
	}

	t.Status = StatusFailed
	t.CompletedAt = time.Now()
	if err := q.putTask(ctx, t, terminalTTL); err != nil {
		return err
	}
	q.publish(ctx, Event{Event: "task_failed", TaskID: taskID, SessionID: sessionID, Status: StatusFailed})
	return nil
}

// Cancel is allowed iff the task is pending or running.
func (q *Queue) Cancel(ctx context.Context, sessionID, taskID string) error {
	t, ok, err := q.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("task %s not found", taskID)
	}
	if t.Status != StatusPending && t.Status != StatusRunning {
		return coreerrors.Conflict("task %s is %s, cannot cancel", taskID, t.Status)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, pendingKey(sessionID), taskID)
	pipe.SRem(ctx, activeKey(sessionID), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Transport(err, "removing task %s from pending/active", taskID)
	}

	t.Status = StatusCancelled
	t.CompletedAt = time.Now()
	if err := q.putTask(ctx, t, terminalTTL); err != nil {
		return err
	}
	q.publish(ctx, Event{Event: "task_cancelled", TaskID: taskID, SessionID: sessionID, Status: StatusCancelled})
	return nil
}

// History returns up to limit tasks created before the given cutoff
// (or the most recent ones, if before is nil), newest first. A task
// whose hash has expired past its terminalTTL is skipped and pruned
// from the index rather than surfaced as a gap in the page.
func (q *Queue) History(ctx context.Context, sessionID string, before *time.Time, limit int) ([]Task, error) {
	max := "+inf"
	if before != nil {
		max = strconv.FormatInt(before.UnixMicro()-1, 10)
	}

	ids, err := q.rdb.ZRevRangeByScore(ctx, historyKey(sessionID), &redis.ZRangeBy{
		Max:   max,
		Min:   "-inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "listing task history for session %s", sessionID)
	}

	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		t, ok, err := q.getTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			q.rdb.ZRem(ctx, historyKey(sessionID), id)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Stats reports current queue depths for a session.
func (q *Queue) Stats(ctx context.Context, sessionID string) (Stats, error) {
	pending, err := q.rdb.ZCard(ctx, pendingKey(sessionID)).Result()
	if err != nil {
		return Stats{}, coreerrors.Transport(err, "counting pending tasks")
	}
	active, err := q.rdb.SCard(ctx, activeKey(sessionID)).Result()
	if err != nil {
		return Stats{}, coreerrors.Transport(err, "counting active tasks")
	}
	completed, err := q.rdb.LLen(ctx, completedKey(sessionID)).Result()
	if err != nil {
		return Stats{}, coreerrors.Transport(err, "counting completed tasks")
	}
	return Stats{Pending: int(pending), Active: int(active), Completed: int(completed)}, nil
}
