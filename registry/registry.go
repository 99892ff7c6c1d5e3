// Package registry implements the generic name-keyed plugin registry used
// for extractors, OCR backends, validators and post-processors.
//
// Entries carry a priority: List and Ordered report entries in execution
// order (priority descending, ties broken by registration order). Reads are
// pure — listing never mutates the registry or re-populates defaults.
package registry

import (
	"reflect"
	"sort"
	"sync"

	"github.com/hazyhaar/docintel/fault"
)

// Entry is a registered plugin.
type Entry[T any] struct {
	Name     string
	Priority int
	Value    T

	seq uint64
}

// Registry is a thread-safe name+priority plugin store.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[T]
	nextSeq uint64
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]*Entry[T])}
}

// Register adds or replaces the entry for name. Re-registering an existing
// name replaces the value but keeps the original registration order for
// tie-breaking.
func (r *Registry[T]) Register(name string, priority int, value T) error {
	if name == "" {
		return fault.Validation("register: name must not be empty")
	}
	if isNil(value) {
		return fault.Validation("register %q: implementation must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[name]; ok {
		prev.Priority = priority
		prev.Value = value
		return nil
	}
	r.nextSeq++
	r.entries[name] = &Entry[T]{Name: name, Priority: priority, Value: value, seq: r.nextSeq}
	return nil
}

// Unregister removes the entry for name. Removing a name that is not
// registered is a no-op success.
func (r *Registry[T]) Unregister(name string) error {
	if name == "" {
		return fault.Validation("unregister: name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	return nil
}

// Get returns the value registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		var zero T
		return zero, false
	}
	return e.Value, true
}

// List returns registered names in execution order. Pure read.
func (r *Registry[T]) List() []string {
	ordered := r.Ordered()
	names := make([]string, len(ordered))
	for i, e := range ordered {
		names[i] = e.Name
	}
	return names
}

// Ordered returns entries in execution order: priority descending, ties by
// registration order (earliest first).
func (r *Registry[T]) Ordered() []Entry[T] {
	r.mu.RLock()
	out := make([]Entry[T], 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Clear removes every entry, built-in defaults included. A subsequent List
// reports empty — nothing re-populates behind the caller's back.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry[T])
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// isNil reports whether a value of nillable kind is nil without tripping on
// non-nillable types.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
