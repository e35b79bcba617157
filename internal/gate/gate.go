package gate

import (
	"context"
	"errors"
	"sync"

	"github.com/omaldonado/snapfield-backend/pkg/metrics"
)

// Gate is a process-wide bounded-concurrency slot allocator with strict FIFO
// waiters. It is orthogonal to quota: callers denied by the ledger never
// reach it. Constructed once at process start and passed by reference, never
// a package global.
type Gate struct {
	mu       sync.Mutex
	capacity int
	active   int
	waiters  []*waiter
	metrics  *metrics.CoreMetrics
}

type waiter struct {
	ready chan struct{}
}

// New builds a gate with the given slot capacity.
func New(capacity int, m *metrics.CoreMetrics) (*Gate, error) {
	if capacity <= 0 {
		return nil, errors.New("gate capacity must be positive")
	}
	return &Gate{capacity: capacity, metrics: m}, nil
}

// Acquire claims a slot, suspending in FIFO order while the gate is
// saturated. A context cancellation while queued unlinks the waiter; if the
// grant raced the cancellation, the slot is re-dispatched so none leaks.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.active < g.capacity {
		g.active++
		g.observeLocked()
		g.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	g.waiters = append(g.waiters, w)
	g.observeLocked()
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-w.ready:
			// Granted concurrently with cancellation: hand the slot on.
			g.releaseLocked()
		default:
			g.removeLocked(w)
		}
		g.observeLocked()
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees the caller's slot. If waiters exist the freed slot transfers
// to the head of the queue instead of going idle.
func (g *Gate) Release() {
	g.mu.Lock()
	g.releaseLocked()
	g.observeLocked()
	g.mu.Unlock()
}

// Active returns the number of held slots.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Waiting returns the number of queued waiters.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}

func (g *Gate) releaseLocked() {
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		// The slot transfers to the waiter; active stays unchanged.
		close(w.ready)
		return
	}
	if g.active > 0 {
		g.active--
	}
}

func (g *Gate) removeLocked(target *waiter) {
	for i, w := range g.waiters {
		if w == target {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}

func (g *Gate) observeLocked() {
	g.metrics.SetGateActive(g.active)
	g.metrics.SetGateWaiting(len(g.waiters))
}
