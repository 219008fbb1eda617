package workers

import (
	"context"
	"log"
	"strings"

	"reprojects/geocode"
	"reprojects/models"
)

// Outcome is how one listing left the enrichment step.
type Outcome int

const (
	OutcomeGeocoded Outcome = iota
	OutcomePreseeded
	OutcomeMissed
)

// EnrichStats counts outcomes for one batch. Failures are broken down by class.
type EnrichStats struct {
	Geocoded  int
	Preseeded int
	Misses    int
	Failures  map[geocode.Failure]int
}

func (s *EnrichStats) record(outcome Outcome, failure geocode.Failure) {
	switch outcome {
	case OutcomeGeocoded:
		s.Geocoded++
	case OutcomePreseeded:
		s.Preseeded++
	case OutcomeMissed:
		s.Misses++
		if s.Failures == nil {
			s.Failures = make(map[geocode.Failure]int)
		}
		s.Failures[failure]++
	}
}

// EmitFunc receives each listing right after its enrichment step. err is the
// lookup error for OutcomeMissed and nil otherwise.
type EmitFunc func(l models.Listing, outcome Outcome, err error)

// EnrichmentWorker attaches coordinates to listings, one lookup at a time.
type EnrichmentWorker struct {
	geocoder geocode.Geocoder
	country  string
}

func NewEnrichmentWorker(geocoder geocode.Geocoder, country string) *EnrichmentWorker {
	return &EnrichmentWorker{
		geocoder: geocoder,
		country:  country,
	}
}

// Query builds the lookup string for a listing location.
func (w *EnrichmentWorker) Query(location string) string {
	location = strings.TrimSpace(location)
	if w.country == "" || location == "" {
		return location
	}
	return location + ", " + w.country
}

// EnrichOne resolves a single listing. Listings that already carry both
// coordinates pass through without a lookup; any lookup failure leaves the
// listing with no coordinates.
func (w *EnrichmentWorker) EnrichOne(ctx context.Context, l models.Listing) (models.Listing, Outcome, error) {
	if l.HasCoordinates() {
		return l, OutcomePreseeded, nil
	}
	if err := ctx.Err(); err != nil {
		l.SetCoordinates(nil)
		return l, OutcomeMissed, err
	}

	coords, err := w.geocoder.Geocode(ctx, w.Query(l.Location))
	switch geocode.Classify(err) {
	case geocode.FailureNone:
		l.SetCoordinates(&coords)
		return l, OutcomeGeocoded, nil
	case geocode.FailureNotFound, geocode.FailureValidation:
		log.Printf("Enrichment: no coordinates for %s (%q): %v", l.ID, l.Location, err)
	default:
		log.Printf("Enrichment: geocode failed for %s (%q): %v", l.ID, l.Location, err)
	}

	l.SetCoordinates(nil)
	return l, OutcomeMissed, err
}

// Enrich processes listings in order. emit, when non-nil, is called with each
// listing as soon as it is done. The result always has one entry per input
// listing. Once ctx is done, remaining listings are emitted without a lookup.
func (w *EnrichmentWorker) Enrich(ctx context.Context, listings []models.Listing, emit EmitFunc) ([]models.Listing, EnrichStats) {
	var stats EnrichStats
	out := make([]models.Listing, 0, len(listings))
	cancelled := false

	for _, l := range listings {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			log.Printf("Enrichment: context done after %d of %d listings, skipping lookups: %v", len(out), len(listings), ctx.Err())
		}

		enriched, outcome, err := w.EnrichOne(ctx, l)
		stats.record(outcome, geocode.Classify(err))
		out = append(out, enriched)

		if emit != nil {
			emit(enriched, outcome, err)
		}
	}

	return out, stats
}
