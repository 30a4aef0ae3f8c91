package gatt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OpKind identifies one asynchronous operation kind tracked by the Registry.
type OpKind int

const (
	OpConnect OpKind = iota
	OpDiscover
	OpRead
	OpWrite
	OpDescriptorWrite
	OpMtu
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpDiscover:
		return "discover"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpDescriptorWrite:
		return "descriptor write"
	case OpMtu:
		return "mtu request"
	default:
		return "unknown"
	}
}

// Result is the terminal resolution of one pending request: exactly one of a
// success payload or an error.
type Result struct {
	Value []byte
	MTU   int
	Err   error
}

// pendingKey is the registry slot identity. Read and write operations are keyed
// per characteristic; connect, discovery, descriptor-write and MTU use the zero
// CharacteristicKey because the stack allows only one of each in flight.
type pendingKey struct {
	Kind OpKind
	Char CharacteristicKey
}

// PendingRequest is a caller's in-flight request token. It is resolved exactly
// once: by the matching stack callback, by an overwriting request, by timeout,
// or by session teardown.
type PendingRequest struct {
	ID   uuid.UUID
	Kind OpKind
	Key  CharacteristicKey

	done     chan Result // buffered, written exactly once
	timer    *time.Timer
	registry *Registry
}

// Await blocks until the request resolves or ctx is done. A context cancellation
// withdraws the request from the registry so a late callback cannot resolve it.
func (p *PendingRequest) Await(ctx context.Context) Result {
	select {
	case res := <-p.done:
		return res
	case <-ctx.Done():
		if p.registry.withdraw(p) {
			return Result{Err: ctx.Err()}
		}
		// Resolved concurrently with the cancellation; the real result wins.
		return <-p.done
	}
}

// Registry tracks at most one in-flight request per (operation kind, key) slot.
// The existing-entry check and the install must be one critical section with
// respect to concurrent callback arrival, so a mutex guards the map.
type Registry struct {
	mu      sync.Mutex
	pending map[pendingKey]*PendingRequest
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRegistry creates a registry. A non-zero timeout arms a per-request timer
// that fails the request with ErrTimeout if the stack never calls back.
func NewRegistry(timeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		pending: make(map[pendingKey]*PendingRequest),
		timeout: timeout,
		logger:  logger,
	}
}

// Register installs a new pending request for the slot. If a prior request
// occupies the slot it is resolved with ErrOverwritten first - the old caller
// gets a terminal response before the new request takes the slot.
func (r *Registry) Register(kind OpKind, key CharacteristicKey) *PendingRequest {
	p := &PendingRequest{
		ID:       uuid.New(),
		Kind:     kind,
		Key:      key,
		done:     make(chan Result, 1),
		registry: r,
	}

	k := pendingKey{Kind: kind, Char: key}

	r.mu.Lock()
	if old, ok := r.pending[k]; ok {
		if old.timer != nil {
			old.timer.Stop()
		}
		old.done <- Result{Err: ErrOverwritten}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"op":         kind.String(),
				"key":        key.String(),
				"request_id": old.ID,
			}).Warn("Pending request overwritten by a newer request")
		}
	}
	r.pending[k] = p
	if r.timeout > 0 {
		p.timer = time.AfterFunc(r.timeout, func() { r.expire(p) })
	}
	r.mu.Unlock()

	return p
}

// Resolve removes the slot's pending request and delivers the result. Returns
// false when no request owns the slot; unexpected callbacks are logged and
// ignored, never surfaced as spurious errors.
func (r *Registry) Resolve(kind OpKind, key CharacteristicKey, res Result) bool {
	k := pendingKey{Kind: kind, Char: key}

	r.mu.Lock()
	p, ok := r.pending[k]
	if !ok {
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"op":  kind.String(),
				"key": key.String(),
			}).Debug("Completion for unknown request ignored")
		}
		return false
	}
	delete(r.pending, k)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- res
	r.mu.Unlock()
	return true
}

// Fail resolves the slot's pending request with an error.
func (r *Registry) Fail(kind OpKind, key CharacteristicKey, err error) bool {
	return r.Resolve(kind, key, Result{Err: err})
}

// Abort removes and fails a specific just-registered request. Used when the
// issuing call itself reports the command could not be started.
func (r *Registry) Abort(p *PendingRequest, err error) {
	if r.withdraw(p) {
		p.done <- Result{Err: err}
	}
}

// FailAll resolves every pending request with err and empties the registry.
// Called on teardown so no stale completion can reference a dead handle.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	for k, p := range r.pending {
		delete(r.pending, k)
		if p.timer != nil {
			p.timer.Stop()
		}
		p.done <- Result{Err: err}
	}
	r.mu.Unlock()
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// withdraw removes p if it still owns its slot. Returns false when the slot is
// empty or already taken over by a newer request.
func (r *Registry) withdraw(p *PendingRequest) bool {
	k := pendingKey{Kind: p.Kind, Char: p.Key}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.pending[k]
	if !ok || current != p {
		return false
	}
	delete(r.pending, k)
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

func (r *Registry) expire(p *PendingRequest) {
	if r.withdraw(p) {
		p.done <- Result{Err: ErrTimeout}
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"op":         p.Kind.String(),
				"key":        p.Key.String(),
				"request_id": p.ID,
			}).Warn("Pending request timed out waiting for stack callback")
		}
	}
}
