package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// dialPod upgrades a client websocket against an httptest server wired
// to the hub under test, registering the server side as podID's
// connection, and returns the client-side conn and a cleanup func once
// that registration has happened.
func dialPod(t *testing.T, hub *Hub, podID string) (*websocket.Conn, func()) {
	t.Helper()

	var serverConn *Conn
	registered := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/local-pod", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		c := newConn(newConnID(), NamespaceLocalPod, ws)
		c.PodID = podID
		hub.Register(c)
		serverConn = c
		close(registered)

		go func() {
			defer hub.Unregister(c)
			for {
				var frame inboundFrame
				if err := ws.ReadJSON(&frame); err != nil {
					return
				}
				if frame.Type == "rpc_request" {
					// Echo a canned response back for tests that want one.
				}
			}
		}()
	})

	srv := httptest.NewServer(mux)
	wsURL := "ws" + srv.URL[len("http"):] + "/local-pod"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server-side registration")
	}
	_ = serverConn

	cleanup := func() {
		client.Close()
		srv.Close()
	}
	return client, cleanup
}

func TestHub_RegisterAndRoomEmit(t *testing.T) {
	hub := testHub(t)
	client, cleanup := dialPod(t, hub, "pod-1")
	defer cleanup()

	hub.mu.RLock()
	conn, ok := hub.pods["pod-1"]
	hub.mu.RUnlock()
	if !ok {
		t.Fatal("expected pod-1 to be registered")
	}

	hub.Join(conn, SessionRoom("sess-1"))
	hub.EmitToSession("sess-1", map[string]string{"type": "workspace_status"})

	client.SetReadDeadline(time.Now().Add(time.Second))
	var got map[string]string
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("expected emitted message, got error: %v", err)
	}
	if got["type"] != "workspace_status" {
		t.Errorf("got = %v", got)
	}
}

func TestHub_ReconnectEvictsPriorSocket(t *testing.T) {
	hub := testHub(t)
	client1, cleanup1 := dialPod(t, hub, "pod-1")
	defer cleanup1()

	client2, cleanup2 := dialPod(t, hub, "pod-1")
	defer cleanup2()

	hub.mu.RLock()
	conn := hub.pods["pod-1"]
	hub.mu.RUnlock()

	client1.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client1.ReadMessage()
	if err == nil {
		t.Error("expected the evicted client's socket to be closed")
	}

	_ = client2
	if conn == nil {
		t.Fatal("expected pod-1 to still be registered via the newer connection")
	}
}

func TestHub_Unhealthy(t *testing.T) {
	hub := testHub(t)
	if !hub.Unhealthy("never-seen") {
		t.Error("expected a pod with no heartbeat to be unhealthy")
	}
	hub.RecordHeartbeat("pod-2")
	if hub.Unhealthy("pod-2") {
		t.Error("expected a freshly-heartbeated pod to be healthy")
	}
}

func TestHub_CallPodUnregisteredFails(t *testing.T) {
	hub := testHub(t)
	_, err := hub.CallPod(context.Background(), "no-such-pod", "health", nil, 0)
	if err == nil {
		t.Error("expected CallPod on an unregistered pod to fail")
	}
}
