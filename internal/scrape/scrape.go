// Package scrape recovers busy-time events from rendered calendar markup.
// It is the fallback extraction path for when no authenticated channel is
// viable: accessibility labels are the only stable structure the calendar
// surface offers, so everything here is heuristic and ordered first-match-wins.
package scrape

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/weftlabs/calbridge/internal/message"
)

// maxAncestorDepth bounds the upward walk when a label carries no date of
// its own. Calendar grids nest labelled wrappers deeply, but a date cell is
// never further than a handful of levels up.
const maxAncestorDepth = 12

// titlePrefixLen is how much of the title participates in the dedup key.
const titlePrefixLen = 16

type Scraper struct {
	logger *slog.Logger
	now    func() time.Time
}

func New(logger *slog.Logger) *Scraper {
	return &Scraper{logger: logger, now: time.Now}
}

// Scrape parses rendered markup and returns every deduplicated busy-time
// event it can recover. An empty slice with a nil error means the page
// parsed fine but held no recognisable events — usually the wrong calendar
// view is on screen.
func (s *Scraper) Scrape(r io.Reader) ([]message.NormalizedEvent, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var events []message.NormalizedEvent
	seen := make(map[string]bool)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if label, ok := attr(n, "aria-label"); ok {
				if ev, ok := s.eventFromNode(n, label); ok {
					key := dedupKey(ev)
					if !seen[key] {
						seen[key] = true
						events = append(events, ev)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	s.logger.Debug("scrape complete", "events", len(events))
	return events, nil
}

// eventFromNode turns one labelled element into an event, or reports that
// the element is not actionable (no full start–end range, or no resolvable
// date or day).
func (s *Scraper) eventFromNode(n *html.Node, label string) (message.NormalizedEvent, bool) {
	rng, ok := parseTimeRange(label)
	if !ok {
		return message.NormalizedEvent{}, false
	}
	if rng.Start >= rng.End {
		// Overnight or zero-length ranges are not representable; skip.
		return message.NormalizedEvent{}, false
	}

	title := s.titleFor(n, label, rng)
	date, day := s.resolveDate(n, label)
	if date == "" && day == "" {
		return message.NormalizedEvent{}, false
	}

	return message.NormalizedEvent{
		Title: title,
		Start: rng.Start,
		End:   rng.End,
		Date:  date,
		Day:   day,
	}, true
}

// titleFor derives the event title: the element's visible text with the
// time range stripped, falling back to the label itself with the range and
// date fragments removed.
func (s *Scraper) titleFor(n *html.Node, label string, rng timeRange) string {
	visible := tidyTitle(strings.Replace(visibleText(n), rng.Raw, "", 1))
	if visible != "" {
		return finishTitle(visible)
	}
	return finishTitle(stripDateFragments(label, rng.Raw))
}

// resolveDate runs the ordered resolution chain: weekday+date in the label,
// numeric date in the label, then an ancestor walk looking for a date
// attribute or a labelled date fragment. The first parser to succeed wins;
// conflicting candidates found later are never reconciled. When no full
// date resolves anywhere, a bare weekday from the label stands in.
func (s *Scraper) resolveDate(n *html.Node, label string) (date, day string) {
	now := s.now()

	if d, ok := dateFromWeekdayLabel(label, now); ok {
		return d, ""
	}
	if d, ok := dateFromNumericLabel(label); ok {
		return d, ""
	}

	anc := n.Parent
	for depth := 0; anc != nil && depth < maxAncestorDepth; depth++ {
		if anc.Type == html.ElementNode {
			if d, ok := dateFromAttributes(anc, now); ok {
				return d, ""
			}
			if ancLabel, ok := attr(anc, "aria-label"); ok {
				if d, ok := dateFromWeekdayLabel(ancLabel, now); ok {
					return d, ""
				}
				if d, ok := dateFromNumericLabel(ancLabel); ok {
					return d, ""
				}
			}
		}
		anc = anc.Parent
	}

	if w, ok := weekdayFromLabel(label); ok {
		return "", w
	}
	return "", ""
}

// dateFromAttributes inspects an element for a date-bearing attribute
// (anything with "date" in its name) and tries ISO, then numeric, then
// written formats on the value.
func dateFromAttributes(n *html.Node, now time.Time) (string, bool) {
	for _, a := range n.Attr {
		if !strings.Contains(strings.ToLower(a.Key), "date") || a.Val == "" {
			continue
		}
		if d, err := time.ParseInLocation("2006-01-02", a.Val, time.Local); err == nil {
			return d.Format("2006-01-02"), true
		}
		if d, ok := dateFromNumericLabel(a.Val); ok {
			return d, true
		}
		if d, ok := dateFromWeekdayLabel(a.Val, now); ok {
			return d, true
		}
	}
	return "", false
}

// visibleText concatenates the text nodes under an element, skipping
// script and style subtrees.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key && a.Val != "" {
			return a.Val, true
		}
	}
	return "", false
}

// dedupKey collapses the nested duplicate labels the calendar grid emits
// for one logical event: same resolved date (or day), same range, same
// title prefix — one event.
func dedupKey(ev message.NormalizedEvent) string {
	dateOrDay := ev.Date
	if dateOrDay == "" {
		dateOrDay = ev.Day
	}
	prefix := truncateRunes(ev.Title, titlePrefixLen)
	return dateOrDay + "|" + ev.Start + "|" + ev.End + "|" + prefix
}
