// Package intercept captures bearer credentials from the source page's own
// outbound traffic. It runs in the page's script context, not the bridge's:
// it knows nothing about the bus or the router, and only ever writes to the
// page-level channel. Wrapping is permanent for the lifetime of the page
// and must happen before the page's own scripts send anything.
package intercept

import (
	"net/http"
	"strings"

	"github.com/weftlabs/calbridge/internal/pagebus"
)

// Interceptor inspects outbound calls for a bearer credential addressed to
// the target API host and broadcasts each capture on the page channel.
// Write-only: the interceptor never reads a token back.
type Interceptor struct {
	targetHost string
	page       *pagebus.Bus
}

func New(targetHost string, page *pagebus.Bus) *Interceptor {
	return &Interceptor{targetHost: targetHost, page: page}
}

// Install permanently replaces the client's transport with the
// intercepting one. This is the request-based primitive; WrapLegacy covers
// the callback-based one.
func (i *Interceptor) Install(client *http.Client) {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = i.WrapTransport(base)
}

// WrapTransport returns a transport that inspects every request and then
// delegates unchanged — behavior and timing of the underlying call are
// never altered.
func (i *Interceptor) WrapTransport(base http.RoundTripper) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		i.inspect(req)
		return base.RoundTrip(req)
	})
}

// WrapLegacy wraps the callback-style send primitive the same way.
func (i *Interceptor) WrapLegacy(send func(*http.Request, func(*http.Response, error))) func(*http.Request, func(*http.Response, error)) {
	return func(req *http.Request, done func(*http.Response, error)) {
		i.inspect(req)
		send(req, done)
	}
}

// inspect broadcasts the credential when the request targets the API host
// and carries a bearer-style authorization header. The scheme prefix is
// stripped; the raw token goes out on the page channel, visible to any
// same-origin listener.
func (i *Interceptor) inspect(req *http.Request) {
	if req.URL == nil || !strings.EqualFold(req.URL.Hostname(), i.targetHost) {
		return
	}
	auth := req.Header.Get("Authorization")
	const scheme = "Bearer "
	if len(auth) <= len(scheme) || !strings.EqualFold(auth[:len(scheme)], scheme) {
		return
	}
	i.page.Post(map[string]any{
		pagebus.KeySource: pagebus.SourceBridge,
		pagebus.KeyType:   pagebus.TypeTokenCaptured,
		pagebus.KeyToken:  auth[len(scheme):],
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
