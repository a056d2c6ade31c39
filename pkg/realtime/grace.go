package realtime

import (
	"sync"
	"time"
)

// GraceCleaner defers freeing room-local state (terminal attachment,
// Yjs replica) for DisconnectGrace after a client disconnects, so a
// transient reconnect doesn't pay the cost of re-establishing state.
// A reconnect within the grace window calls Cancel to abort the
// pending cleanup.
type GraceCleaner struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	cleanup func(key string)
	grace   time.Duration
}

// NewGraceCleaner builds a GraceCleaner that invokes cleanup(key) if
// DisconnectGrace elapses without a Cancel(key).
func NewGraceCleaner(cleanup func(key string)) *GraceCleaner {
	return &GraceCleaner{timers: make(map[string]*time.Timer), cleanup: cleanup, grace: DisconnectGrace}
}

// NewGraceCleanerWithGrace is NewGraceCleaner with an overridable grace
// window, for deterministic tests.
func NewGraceCleanerWithGrace(cleanup func(key string), grace time.Duration) *GraceCleaner {
	return &GraceCleaner{timers: make(map[string]*time.Timer), cleanup: cleanup, grace: grace}
}

// Schedule starts (or restarts) the grace timer for key, identifying a
// (session, terminal) pair or a Yjs (session, doc) pair.
func (g *GraceCleaner) Schedule(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.timers[key]; ok {
		t.Stop()
	}
	g.timers[key] = time.AfterFunc(g.grace, func() {
		g.mu.Lock()
		delete(g.timers, key)
		g.mu.Unlock()
		g.cleanup(key)
	})
}

// Cancel aborts a pending cleanup for key, called when a client
// rejoins within the grace period.
func (g *GraceCleaner) Cancel(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[key]; ok {
		t.Stop()
		delete(g.timers, key)
	}
}
