// Package extract turns a fetch command into a list of normalized events
// using exactly one of three interchangeable strategies: a captured-token
// cloud API call, a session-authenticated REST call, or scraping the
// rendered calendar markup. A strategy returns exactly one result per
// command and never partially reports.
package extract

import (
	"context"
	"time"

	"github.com/weftlabs/calbridge/internal/message"
)

// Strategy names, selectable by configuration.
const (
	StrategyToken       = "token"
	StrategySessionRest = "sessionrest"
	StrategyDomScrape   = "domscrape"
)

// Failure reasons surfaced to consumers. All are terminal for the fetch
// attempt; nothing is retried automatically.
const (
	ReasonTokenNotCaptured = "no session token captured yet — let the mail tab finish loading and try again"
	ReasonTokenExpired     = "session token expired — reload the mail tab to capture a fresh one"
	ReasonNoEventsFound    = "no events found on the calendar view — make sure the calendar is visible on screen"
)

// Strategy is one extraction path. Fetch suspends on network I/O and
// returns either the full normalized event list for the fetch window or a
// terminal, human-readable error.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) ([]message.NormalizedEvent, error)
}

// fetchWindowDays is how far forward both API strategies query.
const fetchWindowDays = 28

// FetchWindow returns the query window: local Sunday midnight of the
// current week through 28 days forward.
func FetchWindow(now time.Time) (start, end time.Time) {
	now = now.Local()
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	start = start.AddDate(0, 0, -int(start.Weekday()))
	end = start.AddDate(0, 0, fetchWindowDays)
	return start, end
}

// WeekOf formats the window start as the ISO date consumers display.
func WeekOf(now time.Time) string {
	start, _ := FetchWindow(now)
	return start.Format("2006-01-02")
}
