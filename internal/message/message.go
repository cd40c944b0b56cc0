// Package message defines the closed set of messages exchanged between the
// router, the tab agents, and the page-level scripts. Every variant fully
// determines the recipient's action; no implicit state is carried between
// messages.
package message

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators.
const (
	TypeConsumerReady  = "ConsumerReady"
	TypeFetchRequested = "FetchRequested"
	TypeFetchCommand   = "FetchCommand"
	TypeEventsReady    = "EventsReady"
	TypeFetchFailed    = "FetchFailed"
)

// Envelope is the wire form of every bridge message. Events and Error are
// only populated for the variants that carry them.
type Envelope struct {
	Type    string            `json:"type"`
	TabID   string            `json:"tabId,omitempty"`
	SyncID  string            `json:"syncId,omitempty"`
	Events  []NormalizedEvent `json:"events,omitempty"`
	WeekOf  string            `json:"weekOf,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// NormalizedEvent is the only event shape that crosses the extraction
// boundary. Start and End are 24-hour "HH:MM" strings; at least one of Date
// (ISO yyyy-mm-dd) or Day (weekday name) is set whenever extraction succeeds.
type NormalizedEvent struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
	Date  string `json:"date,omitempty"`
	Day   string `json:"day,omitempty"`
}

// ConsumerReady announces a consumer tab to the router.
func ConsumerReady(tabID string) Envelope {
	return Envelope{Type: TypeConsumerReady, TabID: tabID}
}

// FetchRequested asks the router to run a sync on behalf of a consumer tab.
func FetchRequested(tabID string) Envelope {
	return Envelope{Type: TypeFetchRequested, TabID: tabID}
}

// FetchCommand instructs a source tab's extraction engine to fetch now.
func FetchCommand(syncID string) Envelope {
	return Envelope{Type: TypeFetchCommand, SyncID: syncID}
}

// EventsReady carries a successful extraction result to consumers.
func EventsReady(events []NormalizedEvent, weekOf string, syncID string) Envelope {
	return Envelope{Type: TypeEventsReady, Events: events, WeekOf: weekOf, SyncID: syncID}
}

// FetchFailed carries a terminal, human-readable failure to consumers.
func FetchFailed(reason string, syncID string) Envelope {
	return Envelope{Type: TypeFetchFailed, Error: reason, SyncID: syncID}
}

// Decode parses a wire payload and validates the type discriminator.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case TypeConsumerReady, TypeFetchRequested, TypeFetchCommand, TypeEventsReady, TypeFetchFailed:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("decode message: unknown type %q", env.Type)
	}
}
