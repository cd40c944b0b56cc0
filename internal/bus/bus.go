// Package bus wraps the NATS connection that stands in for the browser's
// inter-tab messaging runtime. Directed sends report delivery explicitly so
// callers can prune dead recipients instead of swallowing failures.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subject layout. Tab-directed subjects are built with TabSubject.
const (
	SubjectRouterInbox  = "calbridge.router.inbox"
	SubjectRouterResult = "calbridge.router.result"
	SubjectDiscover     = "calbridge.tabs.discover"
	SubjectRegistered   = "calbridge.agent.registered"
)

// ErrUndeliverable reports that a directed send found no listener — the
// recipient tab is closed, navigated away, or never attached.
var ErrUndeliverable = errors.New("no listener on subject")

// deliveryTimeout bounds the ack wait on directed sends. This is a delivery
// acknowledgement, not a result wait; results arrive asynchronously.
const deliveryTimeout = 3 * time.Second

// TabSubject returns the directed-message subject for a tab.
func TabSubject(tabID string) string {
	return "calbridge.tab." + tabID + ".msg"
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish fire-and-forgets a JSON payload. Used where the original system
// broadcast without caring about delivery.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Send delivers a JSON payload to a single recipient and waits for its ack.
// Returns ErrUndeliverable when nobody is listening.
func (c *Client) Send(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = c.conn.Request(subject, payload, deliveryTimeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
			return fmt.Errorf("send %s: %w", subject, ErrUndeliverable)
		}
		return fmt.Errorf("send %s: %w", subject, err)
	}
	return nil
}

// Call delivers a JSON payload and returns the responder's reply body.
// Returns ErrUndeliverable when nobody is listening.
func (c *Client) Call(subject string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := c.conn.Request(subject, payload, deliveryTimeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("call %s: %w", subject, ErrUndeliverable)
		}
		return nil, fmt.Errorf("call %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Answer registers a responder whose return value becomes the reply body.
func (c *Client) Answer(subject string, fn func(data []byte) []byte) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		_ = msg.Respond(fn(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("answer %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

// Subscribe registers a handler for a subject.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Serve registers a handler for directed sends; the ack is sent before the
// handler runs so the sender only learns about delivery, never the outcome.
func (c *Client) Serve(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		_ = msg.Respond(nil)
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("serve %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("serving", "subject", subject)
	return nil
}

// Gather publishes a request and collects every reply that arrives within
// the window. Used for tab discovery, where any number of tabs may answer.
func (c *Client) Gather(subject string, data any, window time.Duration) ([][]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	inbox := nats.NewInbox()
	sub, err := c.conn.SubscribeSync(inbox)
	if err != nil {
		return nil, fmt.Errorf("subscribe inbox: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.PublishRequest(subject, inbox, payload); err != nil {
		return nil, fmt.Errorf("publish request %s: %w", subject, err)
	}

	var replies [][]byte
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break // window elapsed
		}
		replies = append(replies, msg.Data)
	}
	return replies, nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
