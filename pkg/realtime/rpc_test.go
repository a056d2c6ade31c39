package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialEchoPod registers a pod connection whose read loop answers every
// rpc_request with a canned success response, so CallPod's round trip
// can be exercised without a real pod.
func dialEchoPod(t *testing.T, hub *Hub, podID string, answer func(rpcRequest) rpcResponse) func() {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/local-pod", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		c := newConn(newConnID(), NamespaceLocalPod, ws)
		c.PodID = podID
		hub.Register(c)

		go func() {
			defer hub.Unregister(c)
			for {
				var req rpcRequest
				if err := ws.ReadJSON(&req); err != nil {
					return
				}
				resp := answer(req)
				resp.CallID = req.CallID
				hub.HandlePodResponse(resp)
			}
		}()
	})

	srv := httptest.NewServer(mux)
	wsURL := "ws" + srv.URL[len("http"):] + "/local-pod"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Give the server a moment to complete registration before the
	// test issues CallPod.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		_, ok := hub.pods[podID]
		hub.mu.RUnlock()
		if ok {
			break
		}
		time.Sleep(time.Millisecond)
	}

	return func() {
		client.Close()
		srv.Close()
	}
}

func TestHub_CallPodRoundTrip(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cleanup := dialEchoPod(t, hub, "pod-1", func(req rpcRequest) rpcResponse {
		return rpcResponse{Result: map[string]any{"status": "ok", "method": req.Method}}
	})
	defer cleanup()

	result, err := hub.CallPod(context.Background(), "pod-1", "health", nil, time.Second)
	if err != nil {
		t.Fatalf("CallPod() error = %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["status"] != "ok" {
		t.Errorf("result = %#v", result)
	}
}

func TestHub_CallPodTimeout(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Pod never answers.
	cleanup := dialEchoPod(t, hub, "pod-slow", func(req rpcRequest) rpcResponse {
		select {} // block forever; the test only waits for the timeout path
	})
	defer cleanup()

	_, err := hub.CallPod(context.Background(), "pod-slow", "exec", nil, 30*time.Millisecond)
	if err == nil {
		t.Error("expected CallPod to time out")
	}
}

func TestHub_DisconnectFailsPendingCalls(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var cleanup func()
	cleanup = dialEchoPod(t, hub, "pod-die", func(req rpcRequest) rpcResponse {
		// Drop the connection and end the pod's read loop without
		// answering, so the call is resolved by the hub's disconnect path
		// (the loop's deferred Unregister) rather than by a response.
		cleanup()
		runtime.Goexit()
		return rpcResponse{}
	})
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic: %v", r)
		}
	}()

	_, err := hub.CallPod(context.Background(), "pod-die", "exec", nil, 2*time.Second)
	if err == nil {
		t.Error("expected CallPod to fail when the pod disconnects mid-call")
	}
}
