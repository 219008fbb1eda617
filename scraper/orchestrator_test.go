package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reprojects/config"
)

type recordingArchiver struct {
	city string
	body []byte
	err  error
}

func (a *recordingArchiver) ArchivePage(ctx context.Context, city string, body []byte) error {
	a.city = city
	a.body = body
	return a.err
}

func newTestOrchestrator(t *testing.T, handler http.HandlerFunc) (*Orchestrator, *string) {
	t.Helper()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	site := config.DefaultSite()
	site.URLTemplate = srv.URL + "/new-projects-in-{city}"
	return NewOrchestrator(site, NewHTTPFetcher(srv.Client(), site.UserAgent)), &gotPath
}

func TestScrape_ExtractedListings(t *testing.T) {
	page := loadFixture(t, "two_cards.html")
	o, path := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "Mozilla/5.0") {
			t.Errorf("expected browser user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Write(page)
	})

	result := o.Scrape(context.Background(), "mumbai")
	if *path != "/new-projects-in-mumbai" {
		t.Fatalf("unexpected request path %s", *path)
	}
	if result.Message != "" {
		t.Fatalf("expected no advisory, got %q", result.Message)
	}
	if result.IsFallback() {
		t.Fatalf("expected real data")
	}
	if len(result.Listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(result.Listings))
	}
}

func TestScrape_EmptyParseFallsBack(t *testing.T) {
	page := loadFixture(t, "no_cards.html")
	o, _ := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(page)
	})
	archiver := &recordingArchiver{err: errors.New("bucket unavailable")}
	o.SetArchiver(archiver)

	result := o.Scrape(context.Background(), "nowhereville")
	if result.Message != AdvisoryEmptyParse {
		t.Fatalf("expected empty-parse advisory, got %q", result.Message)
	}
	if len(result.Listings) != 3 {
		t.Fatalf("expected 3 demo listings, got %d", len(result.Listings))
	}
	for i, l := range result.Listings {
		want := "nowhereville-demo-" + string(rune('1'+i))
		if l.ID != want {
			t.Fatalf("expected id %s, got %s", want, l.ID)
		}
	}
	if archiver.city != "nowhereville" || len(archiver.body) != len(page) {
		t.Fatalf("expected page to be archived, got city=%q bytes=%d", archiver.city, len(archiver.body))
	}
}

func TestScrape_StatusErrorFallsBack(t *testing.T) {
	o, _ := newTestOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})
	archiver := &recordingArchiver{}
	o.SetArchiver(archiver)

	result := o.Scrape(context.Background(), "mumbai")
	if result.Message != AdvisoryScrapeError {
		t.Fatalf("expected scrape-error advisory, got %q", result.Message)
	}
	if len(result.Listings) != 3 || !result.Listings[0].HasCoordinates() {
		t.Fatalf("expected 3 demo listings with coordinates")
	}
	if archiver.city != "" {
		t.Fatalf("fetch failures must not be archived")
	}
}

func TestScrape_TransportErrorFallsBack(t *testing.T) {
	site := config.DefaultSite()
	site.URLTemplate = "http://127.0.0.1:1/{city}"
	o := NewOrchestrator(site, NewHTTPFetcher(http.DefaultClient, ""))

	result := o.Scrape(context.Background(), "mumbai")
	if result.Message != AdvisoryScrapeError {
		t.Fatalf("expected scrape-error advisory, got %q", result.Message)
	}
	if len(result.Listings) != 3 {
		t.Fatalf("expected 3 demo listings, got %d", len(result.Listings))
	}
}

func TestScrape_AdvisoriesDiffer(t *testing.T) {
	if AdvisoryEmptyParse == AdvisoryScrapeError {
		t.Fatalf("advisories must be distinguishable")
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client(), "").Fetch(context.Background(), srv.URL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", statusErr.StatusCode)
	}
}
