package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// rpcError is the error type of every pod RPC failure: connection loss,
// timeout and a pod's own error response all use it and differ only in
// their message.
type rpcError struct {
	msg string
}

func (e *rpcError) Error() string { return e.msg }

func errConnLost(reason string) error { return &rpcError{msg: "connection lost: " + reason} }
func errTimeout(method string, d time.Duration) error {
	return &rpcError{msg: fmt.Sprintf("pod RPC %q timed out after %s", method, d)}
}

// pendingCall is one outstanding coordinator -> pod RPC.
type pendingCall struct {
	podID  string
	result chan rpcOutcome
}

type rpcOutcome struct {
	value any
	err   error
}

// rpcTable tracks outstanding calls by correlation id.
type rpcTable struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newRPCTable() *rpcTable { return &rpcTable{pending: make(map[string]*pendingCall)} }

func (t *rpcTable) register(podID string) (string, *pendingCall) {
	callID := uuid.NewString()
	call := &pendingCall{podID: podID, result: make(chan rpcOutcome, 1)}
	t.mu.Lock()
	t.pending[callID] = call
	t.mu.Unlock()
	return callID, call
}

func (t *rpcTable) resolve(callID string, value any, err error) bool {
	t.mu.Lock()
	call, ok := t.pending[callID]
	if ok {
		delete(t.pending, callID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	call.result <- rpcOutcome{value: value, err: err}
	return true
}

func (t *rpcTable) evict(callID string) {
	t.mu.Lock()
	delete(t.pending, callID)
	t.mu.Unlock()
}

// failAllForPod resolves every pending call addressed to podID with
// err. Used on eviction and on disconnect, per §4.6's "disconnect must
// walk the table to cancel all pending calls for that pod".
func (t *rpcTable) failAllForPod(podID string, err error) {
	t.mu.Lock()
	var calls []*pendingCall
	for id, c := range t.pending {
		if c.podID == podID {
			calls = append(calls, c)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()
	for _, c := range calls {
		c.result <- rpcOutcome{err: err}
	}
}

// rpcRequest is the wire envelope sent coordinator -> pod.
type rpcRequest struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// rpcResponse is the wire envelope the pod sends back.
type rpcResponse struct {
	CallID string `json:"call_id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CallPod implements dockerhost.PodCaller: it allocates a correlation
// id, sends an rpc_request to the pod's socket, and blocks until the
// pod's rpc_response arrives, timeout elapses, or the pod disconnects.
func (h *Hub) CallPod(ctx context.Context, podID, method string, params any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	h.mu.RLock()
	conn, ok := h.pods[podID]
	h.mu.RUnlock()
	if !ok {
		return nil, errConnLost("pod not connected: " + podID)
	}

	callID, call := h.rpc.register(podID)

	if err := conn.WriteJSON(rpcRequest{Type: "rpc_request", CallID: callID, Method: method, Params: params}); err != nil {
		h.rpc.evict(callID)
		return nil, fmt.Errorf("sending rpc_request to pod %s: %w", podID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-call.result:
		return outcome.value, outcome.err
	case <-timer.C:
		h.rpc.evict(callID)
		return nil, errTimeout(method, timeout)
	case <-ctx.Done():
		h.rpc.evict(callID)
		return nil, ctx.Err()
	}
}

// HandlePodResponse resolves the pending call named by an inbound
// rpc_response frame. Call this from the pod connection's read loop.
func (h *Hub) HandlePodResponse(resp rpcResponse) {
	var err error
	if resp.Error != "" {
		err = &rpcError{msg: resp.Error}
	}
	h.rpc.resolve(resp.CallID, resp.Result, err)
}
