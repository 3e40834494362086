// Package demux implements the protocol-number/port -> receive-callback
// registry used by the IPv4 layer and the UDP port table to dispatch an
// incoming frame to the correct upper-layer handler.
package demux

import "errors"

// ErrRegistered is returned by Register when key is already taken.
var ErrRegistered = errors.New("demux: key already registered")

// Handler is the receive callback invoked on a demultiplexed frame. buf is
// the frame starting at this protocol's header; src carries any
// layer-specific addressing context the caller wants to pass down (e.g.
// the source IPv4 address for a UDP/TCP receiver).
type Handler[Src any] func(buf []byte, src Src) error

// Registry is a small, allocation-stable key -> Handler map. It is generic
// over the key type so it serves both IPv4 (protocol number, uint8) and
// UDP (destination port, uint16).
type Registry[K comparable, Src any] struct {
	handlers map[K]Handler[Src]
}

// NewRegistry constructs an empty Registry.
func NewRegistry[K comparable, Src any]() *Registry[K, Src] {
	return &Registry[K, Src]{handlers: make(map[K]Handler[Src])}
}

// Register installs fn under key. It fails if the key is already taken;
// callers must Unregister first to replace a handler.
func (r *Registry[K, Src]) Register(key K, fn Handler[Src]) error {
	if _, ok := r.handlers[key]; ok {
		return ErrRegistered
	}
	r.handlers[key] = fn
	return nil
}

// Unregister removes any handler installed at key. It is a no-op if none
// is present.
func (r *Registry[K, Src]) Unregister(key K) {
	delete(r.handlers, key)
}

// Lookup returns the handler registered at key, or nil, false if none.
func (r *Registry[K, Src]) Lookup(key K) (Handler[Src], bool) {
	fn, ok := r.handlers[key]
	return fn, ok
}

// Dispatch looks up key and, if a handler is registered, invokes it with
// buf and src. It reports whether a handler was found (regardless of the
// error the handler itself returned).
func (r *Registry[K, Src]) Dispatch(key K, buf []byte, src Src) (found bool, err error) {
	fn, ok := r.handlers[key]
	if !ok {
		return false, nil
	}
	return true, fn(buf, src)
}

// Keys returns every currently registered key. Order is unspecified.
func (r *Registry[K, Src]) Keys() []K {
	keys := make([]K, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	return keys
}
