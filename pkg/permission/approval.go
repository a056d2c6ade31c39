package permission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is what a human decided about a pending approval.
type Decision struct {
	Approved      bool
	AddAllowlist  bool
}

// pending is one in-flight approval future.
type pending struct {
	resultCh  chan Decision
	created   time.Time
	sessionID string
	command   string
}

// PendingInfo is the session/command context captured when an approval
// was requested. Resolve hands it back to the caller so a resolution
// can act on the command that was actually pending (e.g. persist it to
// a session's allowlist) without a second round trip to look it up.
type PendingInfo struct {
	SessionID string
	Command   string
}

// Broker tracks pending approvals and resolves them from a separate
// HTTP request. Futures unresolved past the TTL are swept and failed
// closed, so a dropped approval never blocks a tool call forever.
type Broker struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*pending
	ttl     time.Duration
}

// NewBroker builds a Broker. ttl bounds how long a pending approval
// waits before the sweeper fails it closed.
func NewBroker(ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Broker{pending: make(map[uuid.UUID]*pending), ttl: ttl}
}

// Request allocates a new pending-approval id and returns it along with
// a function that blocks until Resolve is called for that id, the
// sweeper expires it, or ctx is cancelled. sessionID and command are
// the context of the tool call under approval, handed back unchanged
// by Resolve.
func (b *Broker) Request(sessionID, command string) (uuid.UUID, func(ctx context.Context) (Decision, error)) {
	id := uuid.New()
	p := &pending{resultCh: make(chan Decision, 1), created: time.Now(), sessionID: sessionID, command: command}

	b.mu.Lock()
	b.pending[id] = p
	b.mu.Unlock()

	wait := func(ctx context.Context) (Decision, error) {
		select {
		case d := <-p.resultCh:
			return d, nil
		case <-ctx.Done():
			b.forget(id)
			return Decision{}, ctx.Err()
		}
	}
	return id, wait
}

// Resolve delivers a human decision to a pending approval. It returns
// false if the id is unknown (already resolved, expired, or invalid).
// On success it also returns the session/command context Request was
// called with, for callers that need to act on it (e.g. persisting an
// allowlist entry).
func (b *Broker) Resolve(id uuid.UUID, d Decision) (PendingInfo, bool) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return PendingInfo{}, false
	}
	p.resultCh <- d
	return PendingInfo{SessionID: p.sessionID, Command: p.command}, true
}

func (b *Broker) forget(id uuid.UUID) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Sweep fails closed any approval older than the broker's TTL. Callers
// run this on a ticker; it never blocks on a channel send since pending
// channels are always buffered.
func (b *Broker) Sweep() int {
	cutoff := time.Now().Add(-b.ttl)
	var expired []*pending

	b.mu.Lock()
	for id, p := range b.pending {
		if p.created.Before(cutoff) {
			expired = append(expired, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range expired {
		p.resultCh <- Decision{Approved: false}
	}
	return len(expired)
}

// Run starts a background sweeper loop on the given interval until ctx
// is cancelled.
func (b *Broker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}
