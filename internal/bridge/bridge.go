// Package bridge is the consumer tab's protocol translator: it converts
// between the scheduling application's page-level messages and the bridge's
// inter-tab messages. It performs no data transformation and is the only
// component the scheduling application ever talks to.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/message"
	"github.com/weftlabs/calbridge/internal/pagebus"
)

// reasonRouterGone is published straight to the page when the router is
// unreachable — waiting for a response that will never come helps nobody.
const reasonRouterGone = "the bridge background service is not running"

// MessageBus is the slice of the bus the bridge needs.
type MessageBus interface {
	Serve(subject string, handler func(subject string, data []byte)) error
	Send(subject string, data any) error
}

type Bridge struct {
	bus    MessageBus
	page   *pagebus.Bus
	tabID  string
	logger *slog.Logger
}

func New(b MessageBus, page *pagebus.Bus, tabID string, logger *slog.Logger) *Bridge {
	return &Bridge{bus: b, page: page, tabID: tabID, logger: logger}
}

// Start wires both directions and announces this tab to the router. The
// announcement is fire-and-forget: during extension startup races the
// router may not exist yet, and the next fetch request re-registers anyway.
func (b *Bridge) Start() error {
	if err := b.serveRouterMessages(); err != nil {
		return err
	}
	b.page.Listen(b.onPageMessage)

	if err := b.bus.Send(bus.SubjectRouterInbox, message.ConsumerReady(b.tabID)); err != nil {
		b.logger.Debug("consumer-ready announcement not delivered", "error", err)
	}
	b.logger.Info("page bridge ready", "tab", b.tabID)
	return nil
}

// serveRouterMessages republishes router results verbatim onto the page
// channel.
func (b *Bridge) serveRouterMessages() error {
	err := b.bus.Serve(bus.TabSubject(b.tabID), func(_ string, data []byte) {
		env, err := message.Decode(data)
		if err != nil {
			b.logger.Error("malformed router message", "error", err)
			return
		}
		switch env.Type {
		case message.TypeEventsReady:
			b.page.Post(map[string]any{
				pagebus.KeySource: pagebus.SourceBridge,
				pagebus.KeyType:   pagebus.TypeEvents,
				pagebus.KeyEvents: env.Events,
				pagebus.KeyWeekOf: env.WeekOf,
			})
		case message.TypeFetchFailed:
			b.page.Post(map[string]any{
				pagebus.KeySource: pagebus.SourceBridge,
				pagebus.KeyType:   pagebus.TypeError,
				pagebus.KeyError:  env.Error,
			})
		}
	})
	if err != nil {
		return fmt.Errorf("bridge start: %w", err)
	}
	return nil
}

// onPageMessage forwards the application's read-calendar requests to the
// router. Anything not carrying the application's source tag is someone
// else's traffic on the shared channel and is ignored.
func (b *Bridge) onPageMessage(msg map[string]any) {
	if msg[pagebus.KeySource] != pagebus.SourceApp || msg[pagebus.KeyType] != pagebus.TypeReadCalendar {
		return
	}

	err := b.bus.Send(bus.SubjectRouterInbox, message.FetchRequested(b.tabID))
	if err == nil {
		return
	}
	if errors.Is(err, bus.ErrUndeliverable) {
		b.logger.Warn("router unreachable, reporting to page")
		b.page.Post(map[string]any{
			pagebus.KeySource: pagebus.SourceBridge,
			pagebus.KeyType:   pagebus.TypeError,
			pagebus.KeyError:  reasonRouterGone,
		})
		return
	}
	b.logger.Error("failed to forward fetch request", "error", err)
}
