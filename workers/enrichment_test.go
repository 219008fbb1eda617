package workers

import (
	"context"
	"errors"
	"testing"

	"reprojects/geocode"
	"reprojects/models"
)

// scriptedGeocoder answers by query and records every call.
type scriptedGeocoder struct {
	answers map[string]models.Coordinates
	errs    map[string]error
	calls   []string
}

func (g *scriptedGeocoder) Geocode(ctx context.Context, query string) (models.Coordinates, error) {
	g.calls = append(g.calls, query)
	if err, ok := g.errs[query]; ok {
		return models.Coordinates{}, err
	}
	if c, ok := g.answers[query]; ok {
		return c, nil
	}
	return models.Coordinates{}, geocode.ErrNotFound
}

func testListing(id, location string) models.Listing {
	return models.Listing{
		ID:          id,
		ProjectName: "Project " + id,
		Location:    location,
		PriceRange:  models.DefaultPriceRange,
		BuilderName: models.DefaultBuilderName,
	}
}

func TestEnrich_AttachesCoordinates(t *testing.T) {
	g := &scriptedGeocoder{answers: map[string]models.Coordinates{
		"Worli, Mumbai, India": {Lat: 19.01, Lng: 72.81},
		"Thane, India":         {Lat: 19.21, Lng: 72.97},
	}}
	w := NewEnrichmentWorker(g, "India")

	out, stats := w.Enrich(context.Background(), []models.Listing{
		testListing("mumbai-0", "Worli, Mumbai"),
		testListing("mumbai-1", "Thane"),
	}, nil)

	if len(out) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(out))
	}
	if c, ok := out[0].Coordinates(); !ok || c.Lat != 19.01 {
		t.Errorf("listing 0 coords = %+v, %v", c, ok)
	}
	if stats.Geocoded != 2 || stats.Misses != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(g.calls) != 2 || g.calls[0] != "Worli, Mumbai, India" {
		t.Errorf("calls = %v", g.calls)
	}
}

func TestEnrich_PreseededSkipsLookup(t *testing.T) {
	g := &scriptedGeocoder{}
	w := NewEnrichmentWorker(g, "India")

	seeded := testListing("pune-demo-1", "City Center")
	seeded.SetCoordinates(&models.Coordinates{Lat: 18.54, Lng: 73.87})

	out, stats := w.Enrich(context.Background(), []models.Listing{seeded}, nil)

	if len(g.calls) != 0 {
		t.Errorf("geocoder called for pre-seeded listing: %v", g.calls)
	}
	if stats.Preseeded != 1 {
		t.Errorf("Preseeded = %d, want 1", stats.Preseeded)
	}
	if c, _ := out[0].Coordinates(); c.Lat != 18.54 || c.Lng != 73.87 {
		t.Errorf("pre-seeded coordinates changed: %+v", c)
	}
}

func TestEnrich_FailuresBecomeNullAndContinue(t *testing.T) {
	g := &scriptedGeocoder{
		answers: map[string]models.Coordinates{"Baner, India": {Lat: 18.56, Lng: 73.78}},
		errs: map[string]error{
			"Kharadi, India": &geocode.ProviderError{Cause: errors.New("503")},
			"Wakad, India":   geocode.ErrMissingAPIKey,
		},
	}
	w := NewEnrichmentWorker(g, "India")

	input := []models.Listing{
		testListing("pune-0", "Kharadi"),
		testListing("pune-1", "Nowhere"),
		testListing("pune-2", "Wakad"),
		testListing("pune-3", "Baner"),
	}
	out, stats := w.Enrich(context.Background(), input, nil)

	if len(out) != len(input) {
		t.Fatalf("batch aborted: got %d of %d", len(out), len(input))
	}
	for i := 0; i < 3; i++ {
		if out[i].Lat != nil || out[i].Lng != nil {
			t.Errorf("listing %d should have null coordinates", i)
		}
	}
	if !out[3].HasCoordinates() {
		t.Error("listing after failures was not enriched")
	}

	if stats.Misses != 3 || stats.Geocoded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Failures[geocode.FailureProvider] != 1 ||
		stats.Failures[geocode.FailureNotFound] != 1 ||
		stats.Failures[geocode.FailureConfig] != 1 {
		t.Errorf("Failures = %v", stats.Failures)
	}
}

func TestEnrich_EmitsInOrderAsItGoes(t *testing.T) {
	g := &scriptedGeocoder{answers: map[string]models.Coordinates{
		"A, India": {Lat: 1, Lng: 1},
		"C, India": {Lat: 3, Lng: 3},
	}}
	w := NewEnrichmentWorker(g, "India")

	var emitted []string
	var outcomes []Outcome
	emit := func(l models.Listing, outcome Outcome, err error) {
		// each listing is emitted before the next lookup starts
		if len(g.calls) != len(emitted)+1 {
			t.Errorf("emit for %s after %d lookups", l.ID, len(g.calls))
		}
		emitted = append(emitted, l.ID)
		outcomes = append(outcomes, outcome)
		if outcome == OutcomeMissed && !errors.Is(err, geocode.ErrNotFound) {
			t.Errorf("missed %s with err %v", l.ID, err)
		}
	}

	w.Enrich(context.Background(), []models.Listing{
		testListing("a", "A"),
		testListing("b", "B"),
		testListing("c", "C"),
	}, emit)

	want := []string{"a", "b", "c"}
	for i := range want {
		if i >= len(emitted) || emitted[i] != want[i] {
			t.Fatalf("emitted = %v, want %v", emitted, want)
		}
	}
	if outcomes[1] != OutcomeMissed || outcomes[0] != OutcomeGeocoded {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestEnrich_CancelledContextKeepsEveryListing(t *testing.T) {
	g := &scriptedGeocoder{}
	w := NewEnrichmentWorker(g, "India")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seeded := testListing("a", "A")
	seeded.SetCoordinates(&models.Coordinates{Lat: 19.07, Lng: 72.87})
	in := []models.Listing{seeded, testListing("b", "B"), testListing("c", "C")}

	var emitted []string
	out, stats := w.Enrich(ctx, in, func(l models.Listing, _ Outcome, _ error) {
		emitted = append(emitted, l.ID)
	})

	if len(out) != len(in) {
		t.Fatalf("got %d listings, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID {
			t.Errorf("out[%d] = %s, want %s", i, out[i].ID, in[i].ID)
		}
	}
	if len(emitted) != len(in) {
		t.Errorf("emitted %v, want every listing", emitted)
	}
	if len(g.calls) != 0 {
		t.Errorf("geocoder called %d times after cancel", len(g.calls))
	}
	if !out[0].HasCoordinates() {
		t.Error("pre-seeded listing lost its coordinates")
	}
	if out[1].HasCoordinates() || out[2].HasCoordinates() {
		t.Error("unresolved listings should have no coordinates")
	}
	if stats.Preseeded != 1 || stats.Misses != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestQuery(t *testing.T) {
	tests := []struct {
		country  string
		location string
		want     string
	}{
		{"India", "Baner, Pune", "Baner, Pune, India"},
		{"India", "  Baner ", "Baner, India"},
		{"India", "", ""},
		{"", "Baner", "Baner"},
	}

	for _, tt := range tests {
		w := NewEnrichmentWorker(nil, tt.country)
		if got := w.Query(tt.location); got != tt.want {
			t.Errorf("Query(%q) with country %q = %q, want %q", tt.location, tt.country, got, tt.want)
		}
	}
}
