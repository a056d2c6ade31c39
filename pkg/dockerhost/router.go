package dockerhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Router keeps one Backend per host id, each wrapped in its own circuit
// breaker so a single flapping host can't retry-storm the coordinator
// or starve calls to healthy hosts.
type Router struct {
	mu       sync.RWMutex
	backends map[string]Backend
	breakers map[string]*gobreaker.CircuitBreaker
	onTrip   func(hostID string)
}

// NewRouter builds an empty Router. onTrip, if non-nil, is called every
// time a host's breaker transitions to open (used to emit a metric and
// notify operators).
func NewRouter(onTrip func(hostID string)) *Router {
	return &Router{
		backends: make(map[string]Backend),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		onTrip:   onTrip,
	}
}

// Register associates a host id with a concrete backend (CloudBackend or
// PodBackend) and creates its circuit breaker.
func (r *Router) Register(hostID string, backend Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[hostID] = backend
	r.breakers[hostID] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dockerhost:" + hostID,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen && r.onTrip != nil {
				r.onTrip(hostID)
			}
		},
	})
}

// Unregister drops a host's backend and breaker, e.g. when it goes
// permanently offline.
func (r *Router) Unregister(hostID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, hostID)
	delete(r.breakers, hostID)
}

func (r *Router) get(hostID string) (Backend, *gobreaker.CircuitBreaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[hostID]
	if !ok {
		return nil, nil, fmt.Errorf("no backend registered for host %s", hostID)
	}
	return b, r.breakers[hostID], nil
}

func call[T any](r *Router, hostID string, fn func(Backend) (T, error)) (T, error) {
	var zero T
	backend, breaker, err := r.get(hostID)
	if err != nil {
		return zero, err
	}

	result, err := breaker.Execute(func() (any, error) {
		return fn(backend)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

func (r *Router) CreateContainer(ctx context.Context, hostID string, spec ContainerSpec) (ContainerInfo, error) {
	return call(r, hostID, func(b Backend) (ContainerInfo, error) { return b.CreateContainer(ctx, spec) })
}

func (r *Router) Start(ctx context.Context, hostID, containerID string) error {
	_, err := call(r, hostID, func(b Backend) (struct{}, error) { return struct{}{}, b.Start(ctx, containerID) })
	return err
}

func (r *Router) Stop(ctx context.Context, hostID, containerID string, timeout time.Duration) error {
	_, err := call(r, hostID, func(b Backend) (struct{}, error) { return struct{}{}, b.Stop(ctx, containerID, timeout) })
	return err
}

func (r *Router) Remove(ctx context.Context, hostID, containerID string, force bool) error {
	_, err := call(r, hostID, func(b Backend) (struct{}, error) { return struct{}{}, b.Remove(ctx, containerID, force) })
	return err
}

func (r *Router) Exec(ctx context.Context, hostID, containerID string, req ExecRequest) (ExecResult, error) {
	return call(r, hostID, func(b Backend) (ExecResult, error) { return b.Exec(ctx, containerID, req) })
}

func (r *Router) Stats(ctx context.Context, hostID, containerID string) (Stats, error) {
	return call(r, hostID, func(b Backend) (Stats, error) { return b.Stats(ctx, containerID) })
}

func (r *Router) ServerStats(ctx context.Context, hostID string) (ServerStats, error) {
	return call(r, hostID, func(b Backend) (ServerStats, error) { return b.ServerStats(ctx) })
}

// WithReconnectBackoff retries fn with a bounded exponential backoff —
// used by pod-connection setup and other transient-failure-prone
// bootstrap calls, not the per-call circuit-broken path above.
func WithReconnectBackoff(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(fn, b)
}
