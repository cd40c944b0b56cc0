package router

import "sync"

// Registry tracks which tabs have identified themselves as consumers.
// Nothing is persisted — it is rebuilt every session from ConsumerReady
// announcements — and nothing beyond the registration set is kept: there is
// no per-sync session object.
type Registry struct {
	mu    sync.Mutex
	order []string
	known map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{known: make(map[string]bool)}
}

// Register adds a consumer tab. Idempotent; no error conditions.
func (r *Registry) Register(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known[tabID] {
		return
	}
	r.known[tabID] = true
	r.order = append(r.order, tabID)
}

// Unregister removes a tab whose delivery failed. Removing an unknown tab
// is a no-op.
func (r *Registry) Unregister(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known[tabID] {
		return
	}
	delete(r.known, tabID)
	for i, id := range r.order {
		if id == tabID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// IDs returns the registered tabs in registration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered consumers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
