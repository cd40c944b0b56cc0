package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/weftlabs/calbridge/internal/message"
	"github.com/weftlabs/calbridge/internal/pagebus"
)

// graphPageSize caps each calendar-view page from the cloud API.
const graphPageSize = 100

// TokenStrategy queries the cloud calendar API with a bearer token captured
// from the page's own traffic. It retains only the most recent capture and
// learns about staleness solely from a 401: the token is then discarded so
// the next command fails fast instead of repeating a doomed call.
type TokenStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expired bool // a previous call was rejected with 401
}

func NewTokenStrategy(baseURL string, logger *slog.Logger) *TokenStrategy {
	return &TokenStrategy{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger,
		now:     time.Now,
	}
}

func (t *TokenStrategy) Name() string { return StrategyToken }

// AttachPageBus subscribes to token-capture broadcasts on the page channel.
func (t *TokenStrategy) AttachPageBus(pb *pagebus.Bus) {
	pb.Listen(func(msg map[string]any) {
		if msg[pagebus.KeySource] != pagebus.SourceBridge || msg[pagebus.KeyType] != pagebus.TypeTokenCaptured {
			return
		}
		tok, _ := msg[pagebus.KeyToken].(string)
		if tok != "" {
			t.SetToken(tok)
		}
	})
}

// SetToken replaces the cached credential with a newer capture.
func (t *TokenStrategy) SetToken(token string) {
	t.mu.Lock()
	t.token = token
	t.expired = false
	t.mu.Unlock()
	t.logger.Debug("session token captured")
}

func (t *TokenStrategy) currentToken() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		if t.expired {
			return "", fmt.Errorf("%s", ReasonTokenExpired)
		}
		return "", fmt.Errorf("%s", ReasonTokenNotCaptured)
	}
	return t.token, nil
}

func (t *TokenStrategy) discardToken() {
	t.mu.Lock()
	t.token = ""
	t.expired = true
	t.mu.Unlock()
}

// graphEvent is the cloud API's event shape, restricted to the fields the
// query selects.
type graphEvent struct {
	Subject string `json:"subject"`
	Start   struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	ShowAs string `json:"showAs"`
}

type graphPage struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

func (t *TokenStrategy) Fetch(ctx context.Context) ([]message.NormalizedEvent, error) {
	token, err := t.currentToken()
	if err != nil {
		return nil, err
	}

	start, end := FetchWindow(t.now())
	q := url.Values{}
	q.Set("startDateTime", start.Format("2006-01-02T15:04:05"))
	q.Set("endDateTime", end.Format("2006-01-02T15:04:05"))
	q.Set("$select", "subject,start,end,showAs")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprintf("%d", graphPageSize))
	next := t.baseURL + "/me/calendarView?" + q.Encode()

	var events []message.NormalizedEvent
	for next != "" {
		page, err := t.fetchPage(ctx, next, token)
		if err != nil {
			return nil, err
		}
		for _, ge := range page.Value {
			if isFree(ge.ShowAs) {
				continue
			}
			// The provider returns wall-clock digits in the calendar's
			// configured zone with no offset; they are read literally.
			if ev, ok := normalizeWallClock(ge.Subject, ge.Start.DateTime, ge.End.DateTime); ok {
				events = append(events, ev)
			}
		}
		next = page.NextLink
	}

	t.logger.Info("token strategy fetched", "events", len(events))
	return events, nil
}

func (t *TokenStrategy) fetchPage(ctx context.Context, pageURL, token string) (graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return graphPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return graphPage{}, fmt.Errorf("calendar API call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		t.discardToken()
		return graphPage{}, fmt.Errorf("calendar API rejected the session token (401) — it will be recaptured on the next mail-tab request")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return graphPage{}, providerError(resp.StatusCode, readBody(resp))
	}

	var page graphPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return graphPage{}, fmt.Errorf("parse calendar response: %w", err)
	}
	return page, nil
}
