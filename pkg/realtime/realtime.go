// Package realtime implements the reverse-RPC and realtime hub: a
// namespaced websocket transport that lets self-hosted pods receive
// RPC calls they cannot accept inbound connections for, and lets
// browser/CLI clients join per-session collaboration rooms.
package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Namespace is one logical concern multiplexed over the same upgrade
// endpoint.
type Namespace string

const (
	NamespaceLocalPod Namespace = "/local-pod"
	NamespaceSession  Namespace = "/session"
	NamespaceTerminal Namespace = "/terminal"
	NamespaceYjs      Namespace = "/yjs"
	NamespaceVoice    Namespace = "/voice"
)

// Conn wraps one upgraded socket with the state the hub needs: its
// namespace, identity, room memberships, and a write mutex (gorilla's
// websocket.Conn forbids concurrent writers).
type Conn struct {
	ID        string
	Namespace Namespace
	PodID     string // set for NamespaceLocalPod connections
	UserID    string // set for user-facing namespaces
	SessionID string

	ws *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	rooms   map[string]bool
}

func newConn(id string, ns Namespace, ws *websocket.Conn) *Conn {
	return &Conn{ID: id, Namespace: ns, ws: ws, rooms: make(map[string]bool)}
}

// WriteJSON serializes v and writes it, serialized against concurrent
// writers on the same socket.
func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.ws.Close() }

func (c *Conn) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (c *Conn) markJoined(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

func (c *Conn) markLeft(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// Room name helpers, per §4.6.
func SessionRoom(sessionID string) string    { return "session:" + sessionID }
func TerminalRoom(workspaceID string) string { return "terminal:" + workspaceID }
func YjsRoom(sessionID, doc string) string   { return "yjs:" + sessionID + ":" + doc }
func AgentRoom(agentID string) string        { return "agent:" + agentID }

// Resource guard limits, enforced on every inbound message before
// routing.
const (
	MaxTerminalMessageBytes = 8 * 1024
	MaxYjsUnappliedUpdates  = 100
	MaxYjsSessionBytes      = 10 * 1024 * 1024
)

// DisconnectGrace is how long room-local state (terminal attachments,
// Yjs replicas) survives a client disconnect before being freed, to
// absorb transient reconnects.
const DisconnectGrace = 5 * time.Second

// HeartbeatInterval is how often a pod is expected to emit a heartbeat.
const HeartbeatInterval = 30 * time.Second

// HeartbeatMissThreshold is how many missed intervals before the host
// registry should demote a pod to unhealthy.
const HeartbeatMissThreshold = 3
