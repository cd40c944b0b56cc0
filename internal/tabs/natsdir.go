package tabs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weftlabs/calbridge/internal/bus"
)

// Browser-host control subjects. The host process that owns the actual
// browser answers these; when none is attached, calls fail undeliverable.
const (
	SubjectOpen  = "calbridge.browser.open"
	SubjectFocus = "calbridge.browser.focus"
)

// discoverWindow is how long List waits for tab agents to answer a
// discovery request. Agents answer immediately; the window only bounds
// stragglers.
const discoverWindow = 300 * time.Millisecond

// NATSDirectory enumerates tabs by scatter-gather over the bus: every live
// tab agent answers the discovery subject with its own Tab descriptor.
type NATSDirectory struct {
	bus    *bus.Client
	logger *slog.Logger
}

func NewNATSDirectory(b *bus.Client, logger *slog.Logger) *NATSDirectory {
	return &NATSDirectory{bus: b, logger: logger}
}

func (d *NATSDirectory) List(ctx context.Context) ([]Tab, error) {
	replies, err := d.bus.Gather(bus.SubjectDiscover, nil, discoverWindow)
	if err != nil {
		return nil, fmt.Errorf("discover tabs: %w", err)
	}

	out := make([]Tab, 0, len(replies))
	for _, r := range replies {
		var t Tab
		if err := json.Unmarshal(r, &t); err != nil {
			d.logger.Warn("malformed discovery reply", "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (d *NATSDirectory) Open(ctx context.Context, rawURL string) (Tab, error) {
	reply, err := d.bus.Call(SubjectOpen, map[string]string{"url": rawURL})
	if err != nil {
		return Tab{}, fmt.Errorf("open tab: %w", err)
	}
	var t Tab
	if err := json.Unmarshal(reply, &t); err != nil {
		return Tab{}, fmt.Errorf("open tab reply: %w", err)
	}
	return t, nil
}

func (d *NATSDirectory) Focus(ctx context.Context, tabID string) error {
	if err := d.bus.Send(SubjectFocus, map[string]string{"id": tabID}); err != nil {
		return fmt.Errorf("focus tab %s: %w", tabID, err)
	}
	return nil
}

// AnswerDiscovery registers a tab agent as a live tab: it will answer every
// discovery request with its own descriptor until the bus closes.
func AnswerDiscovery(b *bus.Client, self Tab) error {
	payload, err := json.Marshal(self)
	if err != nil {
		return fmt.Errorf("marshal tab descriptor: %w", err)
	}
	return b.Answer(bus.SubjectDiscover, func([]byte) []byte { return payload })
}
