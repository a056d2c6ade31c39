package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Identity is what the handshake authenticator resolves a bearer
// credential to. Exactly one of PodID/UserID is set.
type Identity struct {
	PodID  string
	UserID string
}

// Authenticator verifies a handshake bearer credential. Implemented by
// the device-auth package; defined narrowly here so this package
// doesn't import it, keeping realtime a leaf package like dockerhost.
type Authenticator interface {
	Authenticate(namespace Namespace, bearerToken string) (Identity, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades namespaced connections into the Hub after verifying
// the handshake credential. Unauthenticated connects are refused
// before the upgrade completes.
type Server struct {
	hub    *Hub
	auth   Authenticator
	logger *slog.Logger
}

func NewServer(hub *Hub, auth Authenticator, logger *slog.Logger) *Server {
	return &Server{hub: hub, auth: auth, logger: logger}
}

// Handle upgrades one connection for the given namespace. Mount it at
// each of /local-pod, /session, /terminal, /yjs, /voice.
func (s *Server) Handle(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer credential", http.StatusUnauthorized)
			return
		}

		identity, err := s.auth.Authenticate(ns, token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "namespace", ns, "error", err)
			return
		}

		conn := newConn(newConnID(), ns, ws)
		conn.PodID = identity.PodID
		conn.UserID = identity.UserID
		s.hub.Register(conn)

		go s.readLoop(conn)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.URL.Query().Get("token")
}

// inboundFrame is the envelope every client->server message arrives
// in; Type dispatches to a specific handler.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) readLoop(c *Conn) {
	defer s.hub.Unregister(c)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		if c.Namespace == NamespaceTerminal && !TerminalMessageAllowed(raw) {
			s.logger.Warn("dropping oversized terminal message", "conn_id", c.ID, "bytes", len(raw))
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("dropping malformed frame", "conn_id", c.ID, "error", err)
			continue
		}

		switch frame.Type {
		case "heartbeat":
			if c.PodID != "" {
				s.hub.RecordHeartbeat(c.PodID)
			}
		case "rpc_response":
			var resp rpcResponse
			if err := json.Unmarshal(frame.Data, &resp); err == nil {
				s.hub.HandlePodResponse(resp)
			}
		case "session_join":
			var body struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(frame.Data, &body); err == nil && body.SessionID != "" {
				c.SessionID = body.SessionID
				s.hub.Join(c, SessionRoom(body.SessionID))
			}
		case "session_leave":
			if c.SessionID != "" {
				s.hub.Leave(c, SessionRoom(c.SessionID))
			}
		default:
			// Other event types are routed by higher-level session/agent
			// logic, which registers its own dispatch; the hub only
			// handles transport-level concerns.
		}
	}
}

// pingLoop writes a ping frame every interval so NAT/load-balancer idle
// timeouts do not close a quiet connection. Handle does not start it;
// each upgraded connection runs only readLoop.
func (s *Server) pingLoop(c *Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := c.WriteJSON(map[string]string{"type": "ping"}); err != nil {
			return
		}
	}
}
