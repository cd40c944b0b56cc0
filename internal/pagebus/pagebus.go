// Package pagebus is the page-level messaging channel: a broadcast visible
// to every script sharing one tab, and to nothing outside it. It stands in
// for same-origin window messaging — the token interceptor posts here, the
// page bridge and the consumer application listen here. It never crosses
// tab boundaries.
package pagebus

import "sync"

// Page-level message protocol. Every message posted on a Bus is a flat map
// carrying a source tag and a type; listeners ignore messages whose source
// they don't recognise, since the page channel is shared with the page's
// own scripts.
const (
	KeySource = "source"
	KeyType   = "type"
	KeyToken  = "token"
	KeyEvents = "events"
	KeyError  = "error"
	KeyWeekOf = "weekOf"

	SourceApp    = "slotweave-app" // the consumer application's requests
	SourceBridge = "calbridge"     // everything the bridge subsystem posts

	TypeReadCalendar  = "readCalendar"
	TypeTokenCaptured = "tokenCaptured"
	TypeEvents        = "calendarEvents"
	TypeError         = "calendarError"
)

// Bus broadcasts messages to all listeners registered on the same page.
// Posting never blocks on slow listeners; each message is dispatched on its
// own goroutine per listener, matching the fire-and-forget semantics of the
// underlying page channel.
type Bus struct {
	mu        sync.RWMutex
	listeners []func(msg map[string]any)
}

func New() *Bus {
	return &Bus{}
}

// Listen registers a handler for every message posted to this page.
// Listeners cannot be removed; they live as long as the page.
func (b *Bus) Listen(handler func(msg map[string]any)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, handler)
	b.mu.Unlock()
}

// Post broadcasts a message to all current listeners, including ones
// registered by the poster itself.
func (b *Bus) Post(msg map[string]any) {
	b.mu.RLock()
	listeners := make([]func(map[string]any), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		go l(msg)
	}
}

// PostSync delivers to all listeners before returning. Tests use this to
// avoid racing against dispatch goroutines.
func (b *Bus) PostSync(msg map[string]any) {
	b.mu.RLock()
	listeners := make([]func(map[string]any), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		l(msg)
	}
}
