package extract

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/weftlabs/calbridge/internal/message"
)

// maxErrBody bounds how much of an upstream error body is surfaced to the
// consumer.
const maxErrBody = 200

// wallClockLen is the "yyyy-mm-ddThh:mm" prefix of a provider datetime
// literal; everything after it (seconds, fractional digits) is noise here.
const wallClockLen = 16

// providerError formats a non-2xx upstream response as a terminal reason.
func providerError(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrBody {
		text = text[:maxErrBody] + "…"
	}
	return fmt.Errorf("calendar API error %d: %s", status, text)
}

// readBody drains a response body for error reporting.
func readBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return body
}

// normalizeWallClock builds a NormalizedEvent from two provider datetime
// literals, reading the digits as-is with no offset conversion. Events that
// span days or have a non-increasing range can't satisfy the event
// invariants and are dropped.
func normalizeWallClock(subject, startLit, endLit string) (message.NormalizedEvent, bool) {
	if len(startLit) < wallClockLen || len(endLit) < wallClockLen {
		return message.NormalizedEvent{}, false
	}
	date := startLit[:10]
	start := startLit[11:16]
	end := endLit[11:16]
	if endLit[:10] != date || start >= end {
		return message.NormalizedEvent{}, false
	}
	title := strings.TrimSpace(subject)
	if title == "" {
		title = fallbackSubject
	}
	return message.NormalizedEvent{
		Title: title,
		Start: start,
		End:   end,
		Date:  date,
	}, true
}

// fallbackSubject labels events whose subject the provider withholds
// (private meetings come back blank).
const fallbackSubject = "Busy"

// isFree reports whether a provider transparency marker means the event
// does not block time.
func isFree(showAs string) bool {
	return strings.EqualFold(showAs, "free")
}
