package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/message"
)

// MessageBus is the slice of the bus the engine needs.
type MessageBus interface {
	Serve(subject string, handler func(subject string, data []byte)) error
	Publish(subject string, data any) error
}

// Engine attaches one strategy to a source tab: it serves fetch commands on
// the tab's directed subject and reports exactly one result per command
// back to the router. Commands are never queued against each other;
// overlapping fetches proceed concurrently and the router broadcasts
// whichever result lands last.
type Engine struct {
	bus      MessageBus
	strategy Strategy
	tabID    string
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(b MessageBus, strategy Strategy, tabID string, logger *slog.Logger) *Engine {
	return &Engine{
		bus:      b,
		strategy: strategy,
		tabID:    tabID,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins serving fetch commands. The delivery ack goes back before
// the fetch runs, so the router only ever learns whether the engine was
// reachable.
func (e *Engine) Start(ctx context.Context) error {
	err := e.bus.Serve(bus.TabSubject(e.tabID), func(_ string, data []byte) {
		env, err := message.Decode(data)
		if err != nil {
			e.logger.Error("malformed tab message", "error", err)
			return
		}
		if env.Type != message.TypeFetchCommand {
			return
		}
		go e.run(ctx, env.SyncID)
	})
	if err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	e.logger.Info("extraction engine ready", "tab", e.tabID, "strategy", e.strategy.Name())
	return nil
}

func (e *Engine) run(ctx context.Context, syncID string) {
	e.logger.Info("fetch command received", "sync_id", syncID, "strategy", e.strategy.Name())

	events, err := e.strategy.Fetch(ctx)
	if err != nil {
		e.logger.Warn("fetch failed", "sync_id", syncID, "error", err)
		if pubErr := e.bus.Publish(bus.SubjectRouterResult, message.FetchFailed(err.Error(), syncID)); pubErr != nil {
			e.logger.Error("failed to report fetch failure", "error", pubErr)
		}
		return
	}

	out := message.EventsReady(events, WeekOf(e.now()), syncID)
	if err := e.bus.Publish(bus.SubjectRouterResult, out); err != nil {
		e.logger.Error("failed to report fetch result", "error", err)
		return
	}
	e.logger.Info("fetch complete", "sync_id", syncID, "events", len(events))
}
