// Package pool implements a bounded object pool with scoped-acquisition
// guards. Buffers are checked out for the duration of one extraction and
// returned automatically on Release regardless of how the operation ended.
package pool

import (
	"bytes"
	"strings"
	"sync"
)

// Recyclable is the capability required of pooled objects: a reset back to
// a blank, reusable state.
type Recyclable interface {
	Reset()
}

// Pool is a bounded store of reusable objects. Releasing beyond the maximum
// size drops the object instead of growing the pool.
type Pool[T Recyclable] struct {
	mu    sync.Mutex
	items []T
	max   int
	make  func() T
}

// New creates a pool holding at most max objects, constructing fresh ones
// with the given constructor. prewarm objects are built up front to avoid
// first-use allocation stalls.
func New[T Recyclable](max, prewarm int, construct func() T) *Pool[T] {
	if max <= 0 {
		max = 1
	}
	if prewarm > max {
		prewarm = max
	}
	p := &Pool[T]{max: max, make: construct}
	for i := 0; i < prewarm; i++ {
		p.items = append(p.items, construct())
	}
	return p
}

// Acquire checks an object out of the pool, constructing one when empty.
// Release the returned guard on every exit path — defer is the usual idiom.
func (p *Pool[T]) Acquire() *Guard[T] {
	p.mu.Lock()
	var v T
	if n := len(p.items); n > 0 {
		v = p.items[n-1]
		p.items = p.items[:n-1]
		p.mu.Unlock()
	} else {
		p.mu.Unlock()
		v = p.make()
	}
	return &Guard[T]{pool: p, value: v}
}

// Clear drops all pooled objects.
func (p *Pool[T]) Clear() {
	p.mu.Lock()
	p.items = nil
	p.mu.Unlock()
}

// Len returns the number of idle objects currently held.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Pool[T]) release(v T) {
	v.Reset()
	p.mu.Lock()
	if len(p.items) < p.max {
		p.items = append(p.items, v)
	}
	p.mu.Unlock()
}

// Guard is a scoped handle on a pooled object.
type Guard[T Recyclable] struct {
	pool  *Pool[T]
	value T
	once  sync.Once
}

// Value returns the guarded object. Do not retain it past Release.
func (g *Guard[T]) Value() T { return g.value }

// Release resets the object and returns it to the pool. Idempotent: extra
// calls are no-ops, so both a defer and an explicit early release are safe.
func (g *Guard[T]) Release() {
	g.once.Do(func() { g.pool.release(g.value) })
}

// ByteBuffer is a pooled bytes.Buffer pre-sized for extraction scratch work.
type ByteBuffer struct{ bytes.Buffer }

// StringBuilder is a pooled strings.Builder.
type StringBuilder struct{ strings.Builder }

const (
	stringScratchSize = 8 * 1024
	byteScratchSize   = 64 * 1024
)

// Buffers returns the process-wide scratch pools shared by extractors:
// 8 KB string builders and 64 KB byte buffers.
func Buffers() (*Pool[*StringBuilder], *Pool[*ByteBuffer]) {
	return stringPool, bytePool
}

var stringPool = New(32, 4, func() *StringBuilder {
	b := &StringBuilder{}
	b.Grow(stringScratchSize)
	return b
})

var bytePool = New(32, 4, func() *ByteBuffer {
	b := &ByteBuffer{}
	b.Grow(byteScratchSize)
	return b
})
