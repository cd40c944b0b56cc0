package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/message"
	"github.com/weftlabs/calbridge/internal/tabs"
)

// fakeBus records directed sends and lets tests mark subjects dead.
type fakeBus struct {
	mu   sync.Mutex
	sent map[string][]message.Envelope
	dead map[string]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		sent: make(map[string][]message.Envelope),
		dead: make(map[string]bool),
	}
}

func (f *fakeBus) Serve(string, func(string, []byte)) error     { return nil }
func (f *fakeBus) Subscribe(string, func(string, []byte)) error { return nil }

func (f *fakeBus) Send(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[subject] {
		return fmt.Errorf("send %s: %w", subject, bus.ErrUndeliverable)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env, err := message.Decode(raw)
	if err != nil {
		return err
	}
	f.sent[subject] = append(f.sent[subject], env)
	return nil
}

func (f *fakeBus) sentTo(tabID string) []message.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[bus.TabSubject(tabID)]
}

func (f *fakeBus) kill(tabID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[bus.TabSubject(tabID)] = true
}

// fakeDirectory is an in-memory tab population.
type fakeDirectory struct {
	mu      sync.Mutex
	open    []tabs.Tab
	focused []string
	opened  []string
}

func (d *fakeDirectory) List(context.Context) ([]tabs.Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]tabs.Tab, len(d.open))
	copy(out, d.open)
	return out, nil
}

func (d *fakeDirectory) Open(_ context.Context, rawURL string) (tabs.Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := tabs.Tab{ID: fmt.Sprintf("opened-%d", len(d.opened)), URL: rawURL}
	d.opened = append(d.opened, rawURL)
	d.open = append(d.open, t)
	return t, nil
}

func (d *fakeDirectory) Focus(_ context.Context, tabID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.focused = append(d.focused, tabID)
	return nil
}

// recordingHistory captures sync records.
type recordingHistory struct {
	mu   sync.Mutex
	recs []SyncRecord
}

func (h *recordingHistory) RecordSync(_ context.Context, rec SyncRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func newTestRouter(fb *fakeBus, dir *fakeDirectory, hist History) *Router {
	rt := New(fb, dir, hist, slog.Default())
	rt.newID = func() string { return "sync-fixed" }
	return rt
}

func TestRegisterConsumerIdempotent(t *testing.T) {
	rt := newTestRouter(newFakeBus(), &fakeDirectory{}, nil)

	rt.RegisterConsumer("tab-a")
	rt.RegisterConsumer("tab-a")
	rt.RegisterConsumer("tab-b")

	if got := rt.Registry().Len(); got != 2 {
		t.Errorf("expected 2 consumers, got %d", got)
	}
}

func TestRequestSyncNoSourceTab(t *testing.T) {
	fb := newFakeBus()
	dir := &fakeDirectory{open: []tabs.Tab{
		{ID: "c1", URL: "https://app.slotweave.com/availability"},
	}}
	rt := newTestRouter(fb, dir, nil)
	rt.RegisterConsumer("other-consumer")

	rt.RequestSync(context.Background(), "c1")

	got := fb.sentTo("c1")
	if len(got) != 1 || got[0].Type != message.TypeFetchFailed {
		t.Fatalf("expected one FetchFailed to requester, got %+v", got)
	}
	if got[0].Error != ReasonNoSourceTab {
		t.Errorf("unexpected reason %q", got[0].Error)
	}
	// Requester only — no other consumer is notified.
	if other := fb.sentTo("other-consumer"); len(other) != 0 {
		t.Errorf("expected no messages to other consumers, got %+v", other)
	}
}

func TestRequestSyncSendsCommandToFirstMatchingSource(t *testing.T) {
	fb := newFakeBus()
	dir := &fakeDirectory{open: []tabs.Tab{
		{ID: "c1", URL: "http://localhost:3000/app"},
		{ID: "s-live", URL: "https://outlook.live.com/calendar"},
		{ID: "s-office", URL: "https://outlook.office.com/mail"},
	}}
	rt := newTestRouter(fb, dir, nil)

	rt.RequestSync(context.Background(), "c1")

	// outlook.office.com is the first pattern in the ordered list, so it
	// wins even though the live.com tab appears earlier.
	got := fb.sentTo("s-office")
	if len(got) != 1 || got[0].Type != message.TypeFetchCommand {
		t.Fatalf("expected FetchCommand to s-office, got %+v", got)
	}
	if len(fb.sentTo("s-live")) != 0 {
		t.Error("lower-priority source should not receive the command")
	}
	if got[0].SyncID == "" {
		t.Error("expected a correlation id on the command")
	}
}

func TestRequestSyncSourceUnreachable(t *testing.T) {
	fb := newFakeBus()
	dir := &fakeDirectory{open: []tabs.Tab{
		{ID: "s1", URL: "https://outlook.office.com/calendar"},
	}}
	fb.kill("s1")
	rt := newTestRouter(fb, dir, nil)

	rt.RequestSync(context.Background(), "c1")

	got := fb.sentTo("c1")
	if len(got) != 1 || got[0].Type != message.TypeFetchFailed {
		t.Fatalf("expected FetchFailed, got %+v", got)
	}
	if got[0].Error != ReasonSourceUnreachable {
		t.Errorf("unexpected reason %q", got[0].Error)
	}
}

func TestRelayResultBroadcastsIdenticallyToAllConsumers(t *testing.T) {
	fb := newFakeBus()
	rt := newTestRouter(fb, &fakeDirectory{}, nil)
	for _, id := range []string{"c1", "c2", "c3"} {
		rt.RegisterConsumer(id)
	}

	events := []message.NormalizedEvent{
		{Title: "Standup", Start: "09:30", End: "10:00", Date: "2025-06-09"},
		{Title: "Retro", Start: "15:00", End: "16:00", Date: "2025-06-13"},
	}
	rt.RelayResult(context.Background(), message.EventsReady(events, "2025-06-08", "sync-1"))

	for _, id := range []string{"c1", "c2", "c3"} {
		got := fb.sentTo(id)
		if len(got) != 1 || got[0].Type != message.TypeEventsReady {
			t.Fatalf("consumer %s: expected one EventsReady, got %+v", id, got)
		}
		if len(got[0].Events) != 2 || got[0].Events[0] != events[0] || got[0].Events[1] != events[1] {
			t.Errorf("consumer %s: events differ from broadcast payload", id)
		}
	}
}

func TestBroadcastPrunesDeadConsumers(t *testing.T) {
	fb := newFakeBus()
	rt := newTestRouter(fb, &fakeDirectory{}, nil)
	rt.RegisterConsumer("alive")
	rt.RegisterConsumer("gone")
	fb.kill("gone")

	rt.RelayError(context.Background(), message.FetchFailed("boom", "sync-1"))

	if got := rt.Registry().Len(); got != 1 {
		t.Errorf("expected dead consumer pruned, registry has %d", got)
	}
	if ids := rt.Registry().IDs(); len(ids) != 1 || ids[0] != "alive" {
		t.Errorf("unexpected registry contents %v", ids)
	}
	// Pruning is terminal: a later broadcast goes only to the survivor.
	rt.RelayError(context.Background(), message.FetchFailed("again", "sync-2"))
	if got := fb.sentTo("alive"); len(got) != 2 {
		t.Errorf("expected 2 deliveries to the survivor, got %d", len(got))
	}
}

func TestManualTriggerFocusesConsumerBeforeFetch(t *testing.T) {
	fb := newFakeBus()
	dir := &fakeDirectory{open: []tabs.Tab{
		{ID: "bg-consumer", URL: "https://app.slotweave.com/availability"},
		{ID: "s1", URL: "https://outlook.office.com/calendar"},
	}}
	rt := newTestRouter(fb, dir, nil)

	if err := rt.ManualTrigger(context.Background()); err != nil {
		t.Fatalf("manual trigger failed: %v", err)
	}

	if len(dir.focused) != 1 || dir.focused[0] != "bg-consumer" {
		t.Errorf("expected consumer tab focused, got %v", dir.focused)
	}
	if got := fb.sentTo("s1"); len(got) != 1 || got[0].Type != message.TypeFetchCommand {
		t.Errorf("expected fetch command after focus, got %+v", got)
	}
	// Errors from this fetch will land on the focused tab: it is now
	// registered.
	found := false
	for _, id := range rt.Registry().IDs() {
		if id == "bg-consumer" {
			found = true
		}
	}
	if !found {
		t.Error("expected focused consumer registered")
	}
}

func TestManualTriggerOpensConsumerAndDefers(t *testing.T) {
	fb := newFakeBus()
	dir := &fakeDirectory{open: []tabs.Tab{
		{ID: "s1", URL: "https://outlook.office.com/calendar"},
	}}
	rt := newTestRouter(fb, dir, nil)

	err := rt.ManualTrigger(context.Background())
	if err == nil {
		t.Fatal("expected the deferred-sync condition to be reported")
	}

	if len(dir.opened) != 1 || dir.opened[0] != tabs.ConsumerURL {
		t.Errorf("expected consumer tab opened at %s, got %v", tabs.ConsumerURL, dir.opened)
	}
	// No automatic follow-up fetch.
	if got := fb.sentTo("s1"); len(got) != 0 {
		t.Errorf("expected no fetch command after open-and-defer, got %+v", got)
	}
}

func TestResultsRecordedToHistory(t *testing.T) {
	fb := newFakeBus()
	hist := &recordingHistory{}
	rt := newTestRouter(fb, &fakeDirectory{}, hist)
	rt.RegisterConsumer("c1")

	events := []message.NormalizedEvent{{Title: "Standup", Start: "09:30", End: "10:00", Date: "2025-06-09"}}
	rt.RelayResult(context.Background(), message.EventsReady(events, "2025-06-08", "sync-ok"))
	rt.RelayError(context.Background(), message.FetchFailed("boom", "sync-bad"))

	if len(hist.recs) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(hist.recs))
	}
	ok, bad := hist.recs[0], hist.recs[1]
	if ok.Outcome != "ok" || ok.EventCount != 1 || ok.WeekOf != "2025-06-08" || ok.SyncID != "sync-ok" {
		t.Errorf("unexpected ok record %+v", ok)
	}
	if bad.Outcome != "error" || bad.Error != "boom" || bad.SyncID != "sync-bad" {
		t.Errorf("unexpected error record %+v", bad)
	}
}
