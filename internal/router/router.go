// Package router is the long-lived coordination process: it tracks
// consumer tabs, locates the source tab by URL pattern, relays fetch
// commands to the extraction engine, and fans results back out to every
// registered consumer. It never inspects event payloads.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/message"
	"github.com/weftlabs/calbridge/internal/tabs"
)

// Failure reasons the router itself produces.
const (
	ReasonNoSourceTab       = "No source tab found — open the web-mail calendar and try again"
	ReasonSourceUnreachable = "Could not communicate with the source tab — reload it and try again"
	ReasonNoConsumerTab     = "No consumer tab open — one has been opened, trigger the sync again once it loads"
)

// MessageBus is the slice of the bus the router needs. Directed sends
// return bus.ErrUndeliverable when the recipient is gone, which is what
// drives registry pruning.
type MessageBus interface {
	Serve(subject string, handler func(subject string, data []byte)) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
	Send(subject string, data any) error
}

// History records completed syncs. Optional; a nil History disables it.
type History interface {
	RecordSync(ctx context.Context, rec SyncRecord) error
}

// SyncRecord is one completed sync as the router saw it: routing metadata
// only, never the event payload.
type SyncRecord struct {
	SyncID     string
	Outcome    string // "ok" or "error"
	EventCount int
	WeekOf     string
	Error      string
}

type Router struct {
	bus      MessageBus
	dir      tabs.Directory
	registry *Registry
	history  History
	logger   *slog.Logger
	newID    func() string
}

func New(b MessageBus, dir tabs.Directory, history History, logger *slog.Logger) *Router {
	return &Router{
		bus:      b,
		dir:      dir,
		registry: NewRegistry(),
		history:  history,
		logger:   logger,
		newID:    func() string { return uuid.NewString() },
	}
}

// Registry exposes the registration set for status reporting.
func (rt *Router) Registry() *Registry { return rt.registry }

// Start subscribes the router to its two inbound flows: the consumer inbox
// (acked, so bridges can detect a dead router) and the result stream from
// extraction engines.
func (rt *Router) Start(ctx context.Context) error {
	err := rt.bus.Serve(bus.SubjectRouterInbox, func(_ string, data []byte) {
		rt.handleInbox(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("router start: %w", err)
	}
	err = rt.bus.Subscribe(bus.SubjectRouterResult, func(_ string, data []byte) {
		rt.handleResult(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("router start: %w", err)
	}
	rt.logger.Info("router ready")
	return nil
}

func (rt *Router) handleInbox(ctx context.Context, data []byte) {
	env, err := message.Decode(data)
	if err != nil {
		rt.logger.Error("malformed inbox message", "error", err)
		return
	}
	switch env.Type {
	case message.TypeConsumerReady:
		rt.RegisterConsumer(env.TabID)
	case message.TypeFetchRequested:
		rt.RequestSync(ctx, env.TabID)
	}
}

// RegisterConsumer adds a consumer tab to the registry. Idempotent.
func (rt *Router) RegisterConsumer(tabID string) {
	if tabID == "" {
		return
	}
	rt.registry.Register(tabID)
	rt.logger.Info("consumer registered", "tab", tabID, "consumers", rt.registry.Len())
}

// RequestSync registers the requester, locates the source tab by the
// ordered URL pattern list, and relays a fetch command to its extraction
// engine. Failures before the command is delivered go to the requester
// only; everything after delivery flows through the broadcast path.
func (rt *Router) RequestSync(ctx context.Context, requestingTabID string) {
	rt.RegisterConsumer(requestingTabID)

	open, err := rt.dir.List(ctx)
	if err != nil {
		rt.logger.Error("tab listing failed", "error", err)
		rt.sendToTab(requestingTabID, message.FetchFailed(ReasonNoSourceTab, ""))
		return
	}

	source, ok := tabs.FindFirst(open, tabs.SourcePatterns)
	if !ok {
		rt.logger.Warn("no source tab found", "open_tabs", len(open))
		rt.sendToTab(requestingTabID, message.FetchFailed(ReasonNoSourceTab, ""))
		return
	}

	// Correlation ID for logs and history only: routing stays
	// uncorrelated, so overlapping syncs still resolve last-write-wins.
	syncID := rt.newID()
	rt.logger.Info("sync requested", "sync_id", syncID, "requester", requestingTabID, "source", source.ID)

	if err := rt.bus.Send(bus.TabSubject(source.ID), message.FetchCommand(syncID)); err != nil {
		if errors.Is(err, bus.ErrUndeliverable) {
			rt.logger.Warn("source tab unreachable", "sync_id", syncID, "source", source.ID)
			rt.sendToTab(requestingTabID, message.FetchFailed(ReasonSourceUnreachable, syncID))
			return
		}
		rt.logger.Error("fetch command send failed", "sync_id", syncID, "error", err)
		rt.sendToTab(requestingTabID, message.FetchFailed(ReasonSourceUnreachable, syncID))
	}
}

func (rt *Router) handleResult(ctx context.Context, data []byte) {
	env, err := message.Decode(data)
	if err != nil {
		rt.logger.Error("malformed result message", "error", err)
		return
	}
	switch env.Type {
	case message.TypeEventsReady:
		rt.RelayResult(ctx, env)
	case message.TypeFetchFailed:
		rt.RelayError(ctx, env)
	}
}

// RelayResult broadcasts a successful fetch to every registered consumer —
// not just the original requester, since a sync may be triggered from a tab
// other than the one displaying results and multiple consumer tabs may be
// open.
func (rt *Router) RelayResult(ctx context.Context, env message.Envelope) {
	rt.broadcast(env)
	rt.record(ctx, SyncRecord{
		SyncID:     env.SyncID,
		Outcome:    "ok",
		EventCount: len(env.Events),
		WeekOf:     env.WeekOf,
	})
}

// RelayError broadcasts a terminal fetch failure to every registered
// consumer.
func (rt *Router) RelayError(ctx context.Context, env message.Envelope) {
	rt.broadcast(env)
	rt.record(ctx, SyncRecord{
		SyncID:  env.SyncID,
		Outcome: "error",
		Error:   env.Error,
	})
}

// broadcast delivers to each registered consumer individually; a delivery
// failure silently de-registers that tab. No retry — the registry heals
// itself as dead tabs are discovered.
func (rt *Router) broadcast(env message.Envelope) {
	for _, tabID := range rt.registry.IDs() {
		if err := rt.bus.Send(bus.TabSubject(tabID), env); err != nil {
			if errors.Is(err, bus.ErrUndeliverable) {
				rt.logger.Info("pruning dead consumer", "tab", tabID)
				rt.registry.Unregister(tabID)
				continue
			}
			rt.logger.Error("broadcast send failed", "tab", tabID, "error", err)
		}
	}
}

// sendToTab delivers to a single tab, pruning it if gone.
func (rt *Router) sendToTab(tabID string, env message.Envelope) {
	if err := rt.bus.Send(bus.TabSubject(tabID), env); err != nil {
		if errors.Is(err, bus.ErrUndeliverable) {
			rt.registry.Unregister(tabID)
			return
		}
		rt.logger.Error("send failed", "tab", tabID, "error", err)
	}
}

// ManualTrigger handles toolbar and keyboard invocations. The consumer tab
// is resolved by URL pattern rather than current focus so errors surface
// where the user expects them; if none exists one is opened and the sync
// stops there — the freshly opened tab announces readiness but no
// follow-up fetch is issued automatically.
func (rt *Router) ManualTrigger(ctx context.Context) error {
	open, err := rt.dir.List(ctx)
	if err != nil {
		return fmt.Errorf("manual trigger: %w", err)
	}

	consumer, ok := tabs.FindFirst(open, tabs.ConsumerPatterns)
	if !ok {
		opened, err := rt.dir.Open(ctx, tabs.ConsumerURL)
		if err != nil {
			return fmt.Errorf("manual trigger: open consumer tab: %w", err)
		}
		rt.logger.Info("opened consumer tab, deferring sync", "tab", opened.ID)
		return errors.New(ReasonNoConsumerTab)
	}

	if err := rt.dir.Focus(ctx, consumer.ID); err != nil {
		rt.logger.Warn("could not focus consumer tab", "tab", consumer.ID, "error", err)
	}
	rt.RequestSync(ctx, consumer.ID)
	return nil
}

func (rt *Router) record(ctx context.Context, rec SyncRecord) {
	if rt.history == nil {
		return
	}
	if err := rt.history.RecordSync(ctx, rec); err != nil {
		rt.logger.Error("history record failed", "sync_id", rec.SyncID, "error", err)
	}
}
