package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub owns every live connection, room membership, and pod registration.
// It is the single process-wide instance; a coordinator that shards
// sessions runs one Hub per shard.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn            // connection id -> conn
	pods  map[string]*Conn            // pod id -> its current conn (at most one live)
	rooms map[string]map[string]*Conn // room name -> connection id -> conn

	heartbeatMu sync.Mutex
	lastSeen    map[string]time.Time // pod id -> last heartbeat

	rpc *rpcTable
}

// NewHub builds an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		conns:    make(map[string]*Conn),
		pods:     make(map[string]*Conn),
		rooms:    make(map[string]map[string]*Conn),
		lastSeen: make(map[string]time.Time),
		rpc:      newRPCTable(),
	}
}

// Register adds a connection to the hub. If it's a pod connection and
// the pod id is already registered, the prior socket is forcibly
// disconnected, preserving at-most-one-active-connection per pod.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	var evicted *Conn
	if c.Namespace == NamespaceLocalPod && c.PodID != "" {
		if prior, ok := h.pods[c.PodID]; ok && prior.ID != c.ID {
			evicted = prior
		}
		h.pods[c.PodID] = c
	}
	h.mu.Unlock()

	if evicted != nil {
		h.logger.Info("pod reconnected, evicting prior socket", "pod_id", c.PodID)
		h.rpc.failAllForPod(c.PodID, errConnLost("prior connection evicted"))
		_ = evicted.Close()
		h.Unregister(evicted)
	}
}

// Unregister removes a connection from the hub: all its room
// memberships, its pod registration if any, and fails any pending RPC
// calls addressed to it.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	if c.Namespace == NamespaceLocalPod && c.PodID != "" {
		if cur, ok := h.pods[c.PodID]; ok && cur.ID == c.ID {
			delete(h.pods, c.PodID)
		}
	}
	for _, room := range c.joinedRooms() {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	if c.Namespace == NamespaceLocalPod && c.PodID != "" {
		h.rpc.failAllForPod(c.PodID, errConnLost("pod disconnected"))
	}
}

// Join adds c to room.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	h.mu.Unlock()
	c.markJoined(room)
}

// Leave removes c from room.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	c.markLeft(room)
}

// Emit broadcasts a message to every connection in room. Failures to
// write to an individual connection are logged, not propagated — a
// slow or dead peer never blocks delivery to the rest of the room.
func (h *Hub) Emit(room string, v any) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.WriteJSON(v); err != nil {
			h.logger.Warn("emit to room failed", "room", room, "conn_id", c.ID, "error", err)
		}
	}
}

// EmitToSession broadcasts to session:{id}.
func (h *Hub) EmitToSession(sessionID string, v any) { h.Emit(SessionRoom(sessionID), v) }

// EmitToTerminal broadcasts to terminal:{workspace_id}.
func (h *Hub) EmitToTerminal(workspaceID string, v any) { h.Emit(TerminalRoom(workspaceID), v) }

// EmitAgentAttention broadcasts to agent:{agent_id}.
func (h *Hub) EmitAgentAttention(agentID string, v any) { h.Emit(AgentRoom(agentID), v) }

// RecordHeartbeat updates a pod's last-seen timestamp.
func (h *Hub) RecordHeartbeat(podID string) {
	h.heartbeatMu.Lock()
	h.lastSeen[podID] = time.Now()
	h.heartbeatMu.Unlock()
}

// LastSeen returns a pod's last heartbeat time and whether it has ever
// heartbeated.
func (h *Hub) LastSeen(podID string) (time.Time, bool) {
	h.heartbeatMu.Lock()
	defer h.heartbeatMu.Unlock()
	t, ok := h.lastSeen[podID]
	return t, ok
}

// Unhealthy reports whether podID has missed HeartbeatMissThreshold
// consecutive heartbeat intervals.
func (h *Hub) Unhealthy(podID string) bool {
	t, ok := h.LastSeen(podID)
	if !ok {
		return true
	}
	return time.Since(t) > HeartbeatMissThreshold*HeartbeatInterval
}

// newConnID is the id generator for freshly upgraded connections.
func newConnID() string { return uuid.NewString() }
