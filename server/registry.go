package server

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/recipebox/recipebox/logger"
)

// Conn is a push channel the registry can route to.
type Conn interface {
	// Send queues payload for delivery. It must not block on the network.
	Send(payload []byte) error
	// Writable reports whether the channel is open for writes.
	Writable() bool
}

// Registry maps client ids to live push channels. It is safe for concurrent
// use; sends to one client are delivered in call order because each Conn
// queues into a single writer.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	drops  atomic.Int64
	logger *zap.SugaredLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger.OrNop(log),
	}
}

// Register routes clientID to c. A later registration for the same id wins.
func (r *Registry) Register(clientID string, c Conn) {
	if c == nil {
		return
	}
	r.mu.Lock()
	prev, existed := r.conns[clientID]
	r.conns[clientID] = c
	n := len(r.conns)
	r.mu.Unlock()

	if existed && prev != c {
		r.logger.Infow("Client id re-registered on a new connection", logger.FieldClientID, clientID)
	}
	r.logger.Debugw("Client registered", logger.FieldClientID, clientID, logger.FieldCount, n)
}

// Remove deletes the entry for clientID. Removing an absent id is a no-op.
func (r *Registry) Remove(clientID string) bool {
	r.mu.Lock()
	_, ok := r.conns[clientID]
	delete(r.conns, clientID)
	r.mu.Unlock()
	return ok
}

// Unregister removes clientID only while it still routes to c, so a closing
// connection cannot evict the connection that replaced it.
func (r *Registry) Unregister(clientID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[clientID]; ok && cur == c {
		delete(r.conns, clientID)
		return true
	}
	return false
}

// Lookup returns the connection registered for clientID.
func (r *Registry) Lookup(clientID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[clientID]
	return c, ok
}

// Send queues payload for clientID and reports whether it was accepted.
// It never panics or returns an error: an unknown id, a closed channel, a
// full queue and a panicking Conn all yield false.
func (r *Registry) Send(clientID string, payload []byte) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.drops.Add(1)
			r.logger.Errorw("Push send panicked", logger.FieldClientID, clientID, "panic", rec)
			ok = false
		}
	}()

	c, found := r.Lookup(clientID)
	if !found {
		r.logger.Debugw("Push send to unregistered client", logger.FieldClientID, clientID)
		return false
	}
	if !c.Writable() {
		r.drops.Add(1)
		r.logger.Debugw("Push send to closed connection", logger.FieldClientID, clientID)
		return false
	}
	if err := c.Send(payload); err != nil {
		r.drops.Add(1)
		r.logger.Warnw("Push send failed", logger.FieldClientID, clientID, logger.FieldError, err)
		return false
	}
	return true
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Drops returns how many sends were refused by a registered connection.
func (r *Registry) Drops() int64 {
	return r.drops.Load()
}
