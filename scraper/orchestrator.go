package scraper

import (
	"context"
	"log"
	"net/url"

	"reprojects/config"
	"reprojects/models"
)

const (
	AdvisoryEmptyParse  = "Showing demo projects because no data was parsed (site structure may have changed)."
	AdvisoryScrapeError = "Showing demo projects due to scrape error (likely blocked in deployment)."
)

// PageArchiver keeps a copy of a page that parsed to zero listings.
type PageArchiver interface {
	ArchivePage(ctx context.Context, city string, body []byte) error
}

// Orchestrator fetches a city's listings page and always returns content:
// extracted listings when there are any, demo listings plus an advisory otherwise.
type Orchestrator struct {
	site      *config.SiteConfig
	fetcher   Fetcher
	extractor *Extractor
	fallback  *FallbackGenerator
	archiver  PageArchiver
}

func NewOrchestrator(site *config.SiteConfig, fetcher Fetcher) *Orchestrator {
	return &Orchestrator{
		site:      site,
		fetcher:   fetcher,
		extractor: NewExtractor(site),
		fallback:  NewFallbackGenerator(site.Fallback),
	}
}

// SetArchiver enables archiving of pages that yield no listings
func (o *Orchestrator) SetArchiver(a PageArchiver) {
	o.archiver = a
}

func (o *Orchestrator) SiteID() string {
	return o.site.ID
}

// Scrape never fails: fetch errors and empty parses both degrade to demo data,
// told apart only by the advisory message.
func (o *Orchestrator) Scrape(ctx context.Context, city string) models.BatchResult {
	pageURL := o.site.URL(url.PathEscape(city))

	body, err := o.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Printf("Scrape: %s: %v", city, err)
		return models.BatchResult{
			Listings: o.fallback.Generate(city),
			Message:  AdvisoryScrapeError,
		}
	}

	listings := o.extractor.Extract(body, city)
	if len(listings) > 0 {
		log.Printf("Scrape: %s: %d listings from %s", city, len(listings), o.site.Name)
		return models.BatchResult{Listings: listings}
	}

	log.Printf("Scrape: %s: no listings parsed from %d bytes, serving demo data", city, len(body))
	if o.archiver != nil {
		if err := o.archiver.ArchivePage(ctx, city, body); err != nil {
			log.Printf("Scrape: archive page for %s: %v", city, err)
		}
	}

	return models.BatchResult{
		Listings: o.fallback.Generate(city),
		Message:  AdvisoryEmptyParse,
	}
}
