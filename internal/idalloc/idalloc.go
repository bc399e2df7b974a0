// Package idalloc allocates globally monotonic order ids, backed by a
// persisted counter so a process restart never reissues an id already
// handed out. The persisted counter is the source of truth: every
// allocation increments it directly, and no value is cached in memory.
package idalloc

import "sync"

// Counter is the persisted, atomically-incrementing sequence this
// allocator delegates to.
type Counter interface {
	NextCounter(name string) (int64, error)
	SeedCounter(name string, value int64) error
	CounterValue(name string) (int64, error)
}

const orderIDCounter = "order_id"

// Allocator hands out strictly increasing order ids. Next and SeedFloor
// are serialized by an internal mutex; in this process the dispatcher is
// its only caller.
type Allocator struct {
	mu      sync.Mutex
	counter Counter
}

// New wraps counter as an id allocator.
func New(counter Counter) *Allocator {
	return &Allocator{counter: counter}
}

// Next allocates and durably persists the next order id.
func (a *Allocator) Next() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter.NextCounter(orderIDCounter)
}

// SeedFloor ensures the next allocated id will be strictly greater than
// maxSeen, used during rebuild so replayed orders never collide with a
// freshly allocated id.
func (a *Allocator) SeedFloor(maxSeen int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counter.SeedCounter(orderIDCounter, maxSeen)
}
