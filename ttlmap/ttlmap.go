// Package ttlmap implements a key-value associative store with optional
// per-entry TTL, used by the ARP table and ARP pending-send queue. Entries
// are aged lazily against a caller-supplied monotonic clock: there is no
// background sweeper, matching the single-threaded, polled nature of the
// rest of the stack.
package ttlmap

// Clock returns a monotonically non-decreasing instant, expressed in
// whatever unit the caller likes (seconds, ticks, time.Time.UnixNano...)
// as long as it is consistent with the TTL passed to New.
type Clock func() int64

// CopyFunc, when supplied to New, is invoked on Set to give the map its
// own independent copy of a value rather than aliasing the caller's. This
// mirrors the ARP pending queue's need to own a private copy of a
// caller's frame buffer.
type CopyFunc[V any] func(dst *V, src V)

type entry[V any] struct {
	value V
	set   int64
	used  bool
}

// Map is a key -> (value, timestamp) associative store with an optional
// TTL. The zero value is not ready to use; call New.
type Map[K comparable, V any] struct {
	entries map[K]entry[V]
	clock   Clock
	ttl     int64 // 0 means entries never expire.
	copyFn  CopyFunc[V]
}

// New constructs a Map. If ttl is zero, entries never expire. If copyFn is
// nil, Set stores the value as given (a shallow copy for value types,
// shared backing array for slices/pointers).
func New[K comparable, V any](clock Clock, ttl int64, copyFn CopyFunc[V]) *Map[K, V] {
	return &Map[K, V]{
		entries: make(map[K]entry[V]),
		clock:   clock,
		ttl:     ttl,
		copyFn:  copyFn,
	}
}

// Set inserts or overwrites the value at k and refreshes its timestamp.
func (m *Map[K, V]) Set(k K, v V) {
	e := entry[V]{set: m.clock(), used: true}
	if m.copyFn != nil {
		m.copyFn(&e.value, v)
	} else {
		e.value = v
	}
	m.entries[k] = e
}

// Get returns the value at k and true, or the zero value and false if k
// is absent or its TTL has elapsed since the last Set.
func (m *Map[K, V]) Get(k K) (V, bool) {
	e, ok := m.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	if m.expired(e) {
		delete(m.entries, k)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether k is present and unexpired, without returning the
// value.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// Delete removes k unconditionally.
func (m *Map[K, V]) Delete(k K) {
	delete(m.entries, k)
}

// Len returns the number of entries, including any that have expired but
// have not yet been observed (and thus swept) by Get/ForEach.
func (m *Map[K, V]) Len() int { return len(m.entries) }

func (m *Map[K, V]) expired(e entry[V]) bool {
	return m.ttl > 0 && m.clock()-e.set >= m.ttl
}

// ForEach visits every unexpired entry, sweeping expired ones as it goes.
// Iteration order is unspecified. fn must not mutate the map.
func (m *Map[K, V]) ForEach(fn func(k K, v V) error) error {
	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
			continue
		}
		if err := fn(k, e.value); err != nil {
			return err
		}
	}
	return nil
}
