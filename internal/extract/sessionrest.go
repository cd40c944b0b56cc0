package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/weftlabs/calbridge/internal/message"
)

// owaPageSize caps each calendar-view page from the same-origin REST
// surface, which allows larger pages than the cloud API.
const owaPageSize = 250

// SessionRestStrategy queries the source origin's own REST surface. No
// token capture is needed: the browser's existing authenticated session
// rides along on the cookie jar. The server is asked for UTC-normalized
// timestamps, so unlike the token strategy the literals are parsed as UTC
// and then read out as local wall-clock fields.
type SessionRestStrategy struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionRestStrategy builds the strategy against the source origin.
// The jar carries the session cookies the surrounding browser session
// already holds.
func NewSessionRestStrategy(baseURL string, jar *cookiejar.Jar, logger *slog.Logger) *SessionRestStrategy {
	return &SessionRestStrategy{
		baseURL: baseURL,
		client:  &http.Client{Jar: jar},
		logger:  logger,
		now:     time.Now,
	}
}

func (s *SessionRestStrategy) Name() string { return StrategySessionRest }

// owaEvent is the REST surface's event shape; note the field casing
// differs from the cloud API.
type owaEvent struct {
	Subject string `json:"Subject"`
	Start   struct {
		DateTime string `json:"DateTime"`
	} `json:"Start"`
	End struct {
		DateTime string `json:"DateTime"`
	} `json:"End"`
	ShowAs string `json:"ShowAs"`
}

type owaPage struct {
	Value    []owaEvent `json:"value"`
	NextLink string     `json:"@odata.nextLink"`
}

func (s *SessionRestStrategy) Fetch(ctx context.Context) ([]message.NormalizedEvent, error) {
	start, end := FetchWindow(s.now())
	q := url.Values{}
	q.Set("startDateTime", start.Format("2006-01-02T15:04:05"))
	q.Set("endDateTime", end.Format("2006-01-02T15:04:05"))
	q.Set("$select", "Subject,Start,End,ShowAs")
	q.Set("$orderby", "Start/DateTime")
	q.Set("$top", fmt.Sprintf("%d", owaPageSize))
	next := s.baseURL + "/api/v2.0/me/calendarview?" + q.Encode()

	var events []message.NormalizedEvent
	for next != "" {
		page, err := s.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, oe := range page.Value {
			if isFree(oe.ShowAs) {
				continue
			}
			if ev, ok := normalizeUTC(oe.Subject, oe.Start.DateTime, oe.End.DateTime); ok {
				events = append(events, ev)
			}
		}
		next = page.NextLink
	}

	s.logger.Info("session REST strategy fetched", "events", len(events))
	return events, nil
}

func (s *SessionRestStrategy) fetchPage(ctx context.Context, pageURL string) (owaPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return owaPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := s.client.Do(req)
	if err != nil {
		return owaPage{}, fmt.Errorf("calendar REST call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return owaPage{}, fmt.Errorf("calendar REST call unauthorized (401) — the mail session has signed out")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return owaPage{}, providerError(resp.StatusCode, readBody(resp))
	}

	var page owaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return owaPage{}, fmt.Errorf("parse calendar response: %w", err)
	}
	return page, nil
}

// normalizeUTC interprets provider literals as UTC (the server was asked
// for UTC explicitly), converts to the local zone, and reads out wall-clock
// fields. The round-trip is deliberate and differs from the token
// strategy's no-conversion policy.
func normalizeUTC(subject, startLit, endLit string) (message.NormalizedEvent, bool) {
	st, ok := parseUTCLiteral(startLit)
	if !ok {
		return message.NormalizedEvent{}, false
	}
	en, ok := parseUTCLiteral(endLit)
	if !ok {
		return message.NormalizedEvent{}, false
	}
	return normalizeWallClock(subject,
		st.Format("2006-01-02T15:04:05"),
		en.Format("2006-01-02T15:04:05"))
}

// parseUTCLiteral appends the UTC marker the literal lacks, parses, and
// shifts into the local zone.
func parseUTCLiteral(lit string) (time.Time, bool) {
	if len(lit) < 19 {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, lit[:19]+"Z")
	if err != nil {
		return time.Time{}, false
	}
	return t.Local(), true
}
