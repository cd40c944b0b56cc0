package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// timeRangePattern matches a full start–end 12-hour range inside an
// accessibility label, e.g. "9:30 AM – 10:00 AM" or "12 PM - 1 PM".
// Single timestamps without a range are not actionable.
var timeRangePattern = regexp.MustCompile(
	`(?i)(\d{1,2})(?::(\d{2}))?\s*([AP]M)\s*(?:[–—-]|to)\s*(\d{1,2})(?::(\d{2}))?\s*([AP]M)`)

// weekdayDatePattern matches a written-out weekday+date fragment,
// e.g. "Monday, June 9, 2025" or "Monday June 9".
var weekdayDatePattern = regexp.MustCompile(
	`(?i)(Sunday|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday)\s*,?\s+` +
		`(January|February|March|April|May|June|July|August|September|October|November|December)\s+` +
		`(\d{1,2})(?:\s*,?\s*(\d{4}))?`)

// numericDatePattern matches a numeric M/D/Y date, e.g. "6/9/2025".
var numericDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)

// weekdayPattern matches a bare weekday name, used when no full date
// resolves anywhere.
var weekdayPattern = regexp.MustCompile(
	`(?i)\b(Sunday|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday)\b`)

var monthNumbers = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// timeRange is a matched start–end pair in 24-hour "HH:MM" form.
type timeRange struct {
	Start string
	End   string
	Raw   string // the matched label fragment, for stripping out of titles
}

// parseTimeRange extracts the first full start–end range from a label.
func parseTimeRange(label string) (timeRange, bool) {
	m := timeRangePattern.FindStringSubmatch(label)
	if m == nil {
		return timeRange{}, false
	}
	start := to24(m[1], m[2], m[3])
	end := to24(m[4], m[5], m[6])
	return timeRange{Start: start, End: end, Raw: m[0]}, true
}

// to24 converts 12-hour clock components to "HH:MM". Noon and midnight are
// special-cased: 12 AM becomes hour 00, 12 PM stays 12.
func to24(hourStr, minStr, meridiem string) string {
	hour, _ := strconv.Atoi(hourStr)
	min := 0
	if minStr != "" {
		min, _ = strconv.Atoi(minStr)
	}
	switch strings.ToUpper(meridiem) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, min)
}

// dateFromWeekdayLabel parses a written weekday+date fragment into an ISO
// date. A missing year is taken as the current year.
func dateFromWeekdayLabel(label string, now time.Time) (string, bool) {
	m := weekdayDatePattern.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	month, ok := monthNumbers[strings.ToLower(m[2])]
	if !ok {
		return "", false
	}
	day, _ := strconv.Atoi(m[3])
	year := now.Year()
	if m[4] != "" {
		year, _ = strconv.Atoi(m[4])
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	if d.Day() != day {
		return "", false // e.g. "June 31" rolled over
	}
	return d.Format("2006-01-02"), true
}

// dateFromNumericLabel parses an M/D/Y fragment into an ISO date.
func dateFromNumericLabel(label string) (string, bool) {
	m := numericDatePattern.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return "", false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if d.Day() != day {
		return "", false
	}
	return d.Format("2006-01-02"), true
}

// weekdayFromLabel pulls a bare weekday name out of a label, canonicalised
// to title case.
func weekdayFromLabel(label string) (string, bool) {
	m := weekdayPattern.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	name := strings.ToLower(m[1])
	return strings.ToUpper(name[:1]) + name[1:], true
}

// stripDateFragments removes the matched time range plus any weekday/date
// fragments from a label, leaving title-ish text behind.
func stripDateFragments(label, rawRange string) string {
	s := strings.Replace(label, rawRange, "", 1)
	s = weekdayDatePattern.ReplaceAllString(s, "")
	s = numericDatePattern.ReplaceAllString(s, "")
	s = weekdayPattern.ReplaceAllString(s, "")
	return tidyTitle(s)
}

// tidyTitle collapses whitespace and trims separator punctuation left
// behind after fragment removal.
func tidyTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " ,–—-·|")
	return s
}

const maxTitleLen = 120

// fallbackTitle is used when nothing title-like survives stripping.
const fallbackTitle = "Busy"

// finishTitle truncates and falls back to the generic busy label.
func finishTitle(s string) string {
	s = tidyTitle(s)
	s = truncateRunes(s, maxTitleLen)
	if s == "" {
		return fallbackTitle
	}
	return s
}

// truncateRunes cuts on rune boundaries so a multi-byte title never ends in
// a split rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
