// Package tabs models the browser tab population: which tabs exist, which
// are consumers or sources, and how to open or focus one. The router only
// ever talks to the Directory interface, so everything above it can be
// tested without a browser runtime.
package tabs

import (
	"context"
	"net/url"
	"strings"
)

// Tab identifies one open browser tab.
type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Pattern matches tabs by origin. Patterns are tested in declaration order
// and the first pattern with any matching tab wins.
type Pattern struct {
	Host    string
	AnyPort bool // match the host on any port (local development)
}

// Match reports whether a tab URL belongs to this pattern's origin.
func (p Pattern) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if p.AnyPort {
		return host == p.Host
	}
	// An explicit default port names the same origin as no port at all.
	port := u.Port()
	if port != "" && port != defaultPort(u.Scheme) {
		return false
	}
	return host == p.Host
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// ConsumerPatterns locates the scheduling application: the production origin
// plus any local-development origin on any port.
var ConsumerPatterns = []Pattern{
	{Host: "app.slotweave.com"},
	{Host: "localhost", AnyPort: true},
}

// SourcePatterns locates the web-mail client. Ordered: commercial cloud,
// two legacy regional variants, then the unified domain.
var SourcePatterns = []Pattern{
	{Host: "outlook.office.com"},
	{Host: "outlook.office365.com"},
	{Host: "outlook.live.com"},
	{Host: "outlook.cloud.microsoft"},
}

// ConsumerURL is where manualTrigger opens a fresh consumer tab when none
// exists.
const ConsumerURL = "https://app.slotweave.com/availability"

// FindFirst returns the first tab matching the ordered pattern list: the
// first pattern with any match wins, and within that pattern the first
// matching tab wins.
func FindFirst(open []Tab, patterns []Pattern) (Tab, bool) {
	for _, p := range patterns {
		for _, t := range open {
			if p.Match(t.URL) {
				return t, true
			}
		}
	}
	return Tab{}, false
}

// IsConsumer reports whether a URL belongs to a consumer origin.
func IsConsumer(rawURL string) bool {
	for _, p := range ConsumerPatterns {
		if p.Match(rawURL) {
			return true
		}
	}
	return false
}

// IsSource reports whether a URL belongs to a source origin.
func IsSource(rawURL string) bool {
	for _, p := range SourcePatterns {
		if p.Match(rawURL) {
			return true
		}
	}
	return false
}

// ShortID derives a compact tab identifier from a URL host, for logging.
func ShortID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "tab"
	}
	return strings.ReplaceAll(u.Hostname(), ".", "-")
}

// Directory enumerates and manipulates open tabs. The production
// implementation is NATS-backed (Directory in natsdir.go); tests use an
// in-memory fake.
type Directory interface {
	// List returns every currently open tab.
	List(ctx context.Context) ([]Tab, error)
	// Open creates a new tab at the given URL and returns it.
	Open(ctx context.Context, rawURL string) (Tab, error)
	// Focus brings an existing tab to the foreground.
	Focus(ctx context.Context, tabID string) error
}
