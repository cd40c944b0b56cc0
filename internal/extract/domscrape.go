package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/weftlabs/calbridge/internal/message"
	"github.com/weftlabs/calbridge/internal/scrape"
)

// DOMSource hands the strategy a snapshot of the tab's rendered markup.
// The tab agent backs this with whatever it is attached to; tests back it
// with fixture HTML.
type DOMSource interface {
	Snapshot(ctx context.Context) (io.ReadCloser, error)
}

// DomScrapeStrategy recovers events from the rendered calendar when no
// authenticated channel is viable. A run that matches nothing is reported
// as its own failure, distinct from a hard error, because it usually means
// the wrong calendar view is on screen.
type DomScrapeStrategy struct {
	source  DOMSource
	scraper *scrape.Scraper
	logger  *slog.Logger
}

func NewDomScrapeStrategy(source DOMSource, logger *slog.Logger) *DomScrapeStrategy {
	return &DomScrapeStrategy{
		source:  source,
		scraper: scrape.New(logger),
		logger:  logger,
	}
}

func (d *DomScrapeStrategy) Name() string { return StrategyDomScrape }

func (d *DomScrapeStrategy) Fetch(ctx context.Context) ([]message.NormalizedEvent, error) {
	snap, err := d.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read calendar markup: %w", err)
	}
	defer snap.Close()

	events, err := d.scraper.Scrape(snap)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%s", ReasonNoEventsFound)
	}
	return events, nil
}
