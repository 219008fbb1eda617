package workers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"reprojects/identity"
	"reprojects/models"
	"reprojects/storage"
)

// Scraper is the scrape step the canary probes.
type Scraper interface {
	Scrape(ctx context.Context, city string) models.BatchResult
	SiteID() string
}

// CanaryResult is the outcome of probing one city.
type CanaryResult struct {
	City      string        `json:"city"`
	CheckedAt time.Time     `json:"checked_at"`
	Listings  int           `json:"listings"`
	Fallback  bool          `json:"fallback"`
	Advisory  string        `json:"advisory,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Healthy reports whether real listings were extracted.
func (r CanaryResult) Healthy() bool {
	return !r.Fallback && r.Listings > 0
}

// CanaryWorker scrapes a few known cities on demand to catch selector drift
// before a user query does.
type CanaryWorker struct {
	scraper      Scraper
	recorder     storage.RunRecorder
	cities       []string
	probeTimeout time.Duration
	triggerCh    chan struct{}
	logFunc      LogFunc

	mu   sync.Mutex
	last map[string]CanaryResult
}

func NewCanaryWorker(scraper Scraper, cities []string) *CanaryWorker {
	keys := make([]string, 0, len(cities))
	for _, c := range cities {
		if k := identity.CityKey(c); k != "" {
			keys = append(keys, k)
		}
	}

	return &CanaryWorker{
		scraper:      scraper,
		recorder:     storage.NopRecorder{},
		cities:       keys,
		probeTimeout: 2 * time.Minute,
		triggerCh:    make(chan struct{}, 1),
		logFunc:      NoOpLogger,
		last:         make(map[string]CanaryResult),
	}
}

func (w *CanaryWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

func (w *CanaryWorker) SetRecorder(r storage.RunRecorder) {
	w.recorder = r
}

// Trigger causes the worker to probe on its next loop iteration
func (w *CanaryWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run waits for triggers until ctx is done
func (w *CanaryWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("Canary worker stopping")
			return
		case <-w.triggerCh:
			w.ProbeAll(ctx)
		}
	}
}

// ProbeAll probes every configured city in order.
func (w *CanaryWorker) ProbeAll(ctx context.Context) []CanaryResult {
	results := make([]CanaryResult, 0, len(w.cities))
	unhealthy := 0
	for _, city := range w.cities {
		if ctx.Err() != nil {
			break
		}
		r := w.Probe(ctx, city)
		if !r.Healthy() {
			unhealthy++
		}
		results = append(results, r)
	}

	if unhealthy > 0 {
		log.Printf("Canary: %s served fallback for %d of %d cities", w.scraper.SiteID(), unhealthy, len(results))
	} else {
		log.Printf("Canary: %s healthy for %d cities", w.scraper.SiteID(), len(results))
	}
	return results
}

// Probe scrapes city once and records the outcome as a canary run.
func (w *CanaryWorker) Probe(ctx context.Context, city string) CanaryResult {
	run := models.NewQueryRun(models.RunKindCanary, city)
	if err := w.recorder.CreateRun(ctx, run); err != nil {
		log.Printf("Canary: failed to record run: %v", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, w.probeTimeout)
	defer cancel()

	start := time.Now()
	batch := w.scraper.Scrape(probeCtx, city)
	result := CanaryResult{
		City:      city,
		CheckedAt: start,
		Listings:  len(batch.Listings),
		Fallback:  batch.IsFallback(),
		Advisory:  batch.Message,
		Duration:  time.Since(start),
	}

	run.ListingsFound = result.Listings
	run.Fallback = result.Fallback
	run.Advisory = result.Advisory
	for i := range batch.Listings {
		if batch.Listings[i].HasCoordinates() {
			run.Preseeded++
		}
	}

	var runErr error
	if !result.Healthy() {
		runErr = fmt.Errorf("fallback served: %s", result.Advisory)
		w.logFunc(run.ID, models.LogLevelWarn, city, fmt.Sprintf("Canary for %s served fallback: %s", city, result.Advisory))
	} else {
		w.logFunc(run.ID, models.LogLevelInfo, city, fmt.Sprintf("Canary for %s extracted %d listings", city, result.Listings))
	}
	run.Finish(runErr)
	if err := w.recorder.FinishRun(ctx, run); err != nil {
		log.Printf("Canary: failed to finish run: %v", err)
	}

	w.mu.Lock()
	w.last[city] = result
	w.mu.Unlock()

	return result
}

// LastResults returns the most recent probe per city, in configured order.
func (w *CanaryWorker) LastResults() []CanaryResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := make([]CanaryResult, 0, len(w.last))
	for _, city := range w.cities {
		if r, ok := w.last[city]; ok {
			results = append(results, r)
		}
	}
	return results
}
