// tabagent attaches the bridge's per-tab scripts to one browser tab. The
// role is not chosen at runtime: exactly as the extension injects different
// scripts by URL pattern, the agent looks at the tab URL it was attached to
// and becomes either a consumer-side page bridge or a source-side
// extraction engine.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/weftlabs/calbridge/internal/bridge"
	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/config"
	"github.com/weftlabs/calbridge/internal/extract"
	"github.com/weftlabs/calbridge/internal/intercept"
	"github.com/weftlabs/calbridge/internal/pagebus"
	"github.com/weftlabs/calbridge/internal/tabs"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if cfg.TabURL == "" {
		slog.Error("TAB_URL is required")
		os.Exit(1)
	}
	tabID := cfg.TabID
	if tabID == "" {
		tabID = tabs.ShortID(cfg.TabURL) + "-" + uuid.NewString()[:8]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busClient, err := bus.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()

	self := tabs.Tab{ID: tabID, URL: cfg.TabURL}
	if err := tabs.AnswerDiscovery(busClient, self); err != nil {
		slog.Error("failed to join tab discovery", "error", err)
		os.Exit(1)
	}

	page := pagebus.New()

	switch {
	case tabs.IsConsumer(cfg.TabURL):
		br := bridge.New(busClient, page, tabID, slog.Default())
		if err := br.Start(); err != nil {
			slog.Error("failed to start page bridge", "error", err)
			os.Exit(1)
		}
		slog.Info("tabagent attached as consumer", "tab", tabID, "url", cfg.TabURL)

	case tabs.IsSource(cfg.TabURL):
		strategy, err := buildStrategy(cfg, page)
		if err != nil {
			slog.Error("failed to build extraction strategy", "error", err)
			os.Exit(1)
		}
		engine := extract.NewEngine(busClient, strategy, tabID, slog.Default())
		if err := engine.Start(ctx); err != nil {
			slog.Error("failed to start extraction engine", "error", err)
			os.Exit(1)
		}
		slog.Info("tabagent attached as source", "tab", tabID, "strategy", strategy.Name())

	default:
		slog.Error("tab URL matches neither consumer nor source patterns", "url", cfg.TabURL)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("tabagent stopping", "tab", tabID)
	cancel()
}

// buildStrategy selects the configured extraction path. The choice is
// configuration, not code: all three strategies ship and only one attaches.
func buildStrategy(cfg config.Config, page *pagebus.Bus) (extract.Strategy, error) {
	switch cfg.Strategy {
	case extract.StrategyToken:
		st := extract.NewTokenStrategy(cfg.GraphBaseURL, slog.Default())
		st.AttachPageBus(page)
		// The interceptor owns the page's outbound primitives from here
		// on; it broadcasts captures on the page channel the strategy
		// just subscribed to.
		graphHost, err := hostOf(cfg.GraphBaseURL)
		if err != nil {
			return nil, err
		}
		intercept.New(graphHost, page).Install(http.DefaultClient)
		return st, nil

	case extract.StrategySessionRest:
		base := cfg.OWABaseURL
		if base == "" {
			origin, err := originOf(cfg.TabURL)
			if err != nil {
				return nil, err
			}
			base = origin
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		return extract.NewSessionRestStrategy(base, jar, slog.Default()), nil

	case extract.StrategyDomScrape:
		if cfg.DOMURL == "" {
			return nil, fmt.Errorf("DOM_SNAPSHOT_URL is required for the domscrape strategy")
		}
		return extract.NewDomScrapeStrategy(&httpDOMSource{url: cfg.DOMURL}, slog.Default()), nil

	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
}

// httpDOMSource reads the tab's rendered markup from a devtools-style
// snapshot endpoint.
type httpDOMSource struct {
	url string
}

func (h *httpDOMSource) Snapshot(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	return u.Hostname(), nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
