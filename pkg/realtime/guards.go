package realtime

import "sync"

// YjsGuard tracks in-memory Yjs state per session, strictly in
// memory — never persisted across coordinator restarts, per the
// project's decision to follow the source's in-memory-only behavior.
// Excess updates are dropped and logged by the caller, never queued to
// grow unbounded.
type YjsGuard struct {
	mu          sync.Mutex
	docUpdates  map[string]int // doc key -> unapplied update count
	sessionSize map[string]int // session id -> total bytes held
}

func NewYjsGuard() *YjsGuard {
	return &YjsGuard{docUpdates: make(map[string]int), sessionSize: make(map[string]int)}
}

// Admit reports whether an incoming Yjs update of updateBytes for
// (sessionID, doc) may be admitted without exceeding either the
// per-doc unapplied-update cap or the per-session byte cap.
func (g *YjsGuard) Admit(sessionID, doc string, updateBytes int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.docUpdates[doc]+1 > MaxYjsUnappliedUpdates {
		return false
	}
	if g.sessionSize[sessionID]+updateBytes > MaxYjsSessionBytes {
		return false
	}
	g.docUpdates[doc]++
	g.sessionSize[sessionID] += updateBytes
	return true
}

// Applied marks n unapplied updates for doc as flushed, freeing their
// slot in the per-doc cap (but not the byte accounting, which tracks
// retained state, not in-flight update count).
func (g *YjsGuard) Applied(doc string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.docUpdates[doc] -= n
	if g.docUpdates[doc] < 0 {
		g.docUpdates[doc] = 0
	}
}

// Release frees a session's tracked byte usage, called once the
// disconnect grace period elapses with no reconnect.
func (g *YjsGuard) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessionSize, sessionID)
}

// TerminalMessageAllowed enforces the per-message terminal input cap.
func TerminalMessageAllowed(payload []byte) bool {
	return len(payload) <= MaxTerminalMessageBytes
}
