// Package registry tracks the connections currently open against the relay
// and the optional display name each one has announced. It is pure in-memory
// bookkeeping scoped to a single process; nothing survives a restart.
package registry

import "sync"

// Registry is the sole owner of connection entries. An entry exists exactly
// as long as its connection is open: the relay registers on accept and
// unregisters on disconnect. Every operation is a discrete point mutation or
// a snapshot read, so a single RWMutex is all the locking needed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]string
}

func New() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Register adds a connection with no display name yet. Registering an id
// twice overwrites the existing entry, which also clears any announced name.
func (r *Registry) Register(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[connectionID] = ""
}

// SetDisplayName sets or replaces the display name of a registered
// connection. Last write wins; no history is kept. An unknown id is a no-op,
// since a client may announce a name before its registration settles.
func (r *Registry) SetDisplayName(connectionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[connectionID]; ok {
		r.entries[connectionID] = name
	}
}

// Unregister removes the entry if present. Removing an absent id is a no-op.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, connectionID)
}

// ListConnections returns a snapshot of the currently open connection ids.
// The relay resolves broadcast recipients from this snapshot, so a
// connection closing mid-broadcast simply misses that delivery.
func (r *Registry) ListConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// DisplayName reports the announced name of a connection and whether the
// connection is registered at all. The empty string means no name announced.
func (r *Registry) DisplayName(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.entries[connectionID]
	return name, ok
}

// Len reports how many connections are currently open.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
