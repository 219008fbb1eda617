package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"reprojects/geocode"
	"reprojects/identity"
	"reprojects/models"
	"reprojects/storage"
	"reprojects/workers"
)

var (
	ErrEmptyCity      = errors.New("cityName is required")
	ErrDuplicateQuery = errors.New("a query for this city is already running")
)

// Enricher attaches coordinates to a batch, emitting each listing as it completes.
type Enricher interface {
	Enrich(ctx context.Context, listings []models.Listing, emit workers.EmitFunc) ([]models.Listing, workers.EnrichStats)
}

// QueryService runs the ingestion pipeline for a city: scrape, enrich each
// listing and stream it into the aggregate store. At most one query per
// city is in flight at a time.
type QueryService struct {
	scraper  workers.Scraper
	enricher Enricher
	store    *storage.AggregateStore
	recorder storage.RunRecorder
	timeout  time.Duration
	baseCtx  context.Context

	mu       sync.Mutex
	inFlight map[string]uuid.UUID
	wg       sync.WaitGroup
}

func NewQueryService(scraper workers.Scraper, enricher Enricher, store *storage.AggregateStore) *QueryService {
	return &QueryService{
		scraper:  scraper,
		enricher: enricher,
		store:    store,
		recorder: storage.NopRecorder{},
		baseCtx:  context.Background(),
		inFlight: make(map[string]uuid.UUID),
	}
}

func (s *QueryService) SetRecorder(r storage.RunRecorder) {
	s.recorder = r
}

// SetTimeout bounds a whole query. Zero means no bound beyond the caller's context.
func (s *QueryService) SetTimeout(d time.Duration) {
	s.timeout = d
}

// SetContext sets the parent context of queries started with Start.
func (s *QueryService) SetContext(ctx context.Context) {
	s.baseCtx = ctx
}

// InFlight returns the id of the run currently holding city, if any.
func (s *QueryService) InFlight(city string) (uuid.UUID, bool) {
	key := identity.CityKey(city)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inFlight[key]
	return id, ok
}

// acquire claims key for run. Check and insert happen under one lock.
func (s *QueryService) acquire(key string, runID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = runID
	return true
}

func (s *QueryService) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

func (s *QueryService) claim(city string) (*models.QueryRun, error) {
	key := identity.CityKey(city)
	if key == "" {
		return nil, ErrEmptyCity
	}
	run := models.NewQueryRun(models.RunKindQuery, key)
	if !s.acquire(key, run.ID) {
		log.Printf("Query: %s already in flight, skipping duplicate", key)
		return nil, ErrDuplicateQuery
	}
	return run, nil
}

// Query runs the pipeline for city and returns once the store holds the
// final result. The returned run is never nil when err is nil.
func (s *QueryService) Query(ctx context.Context, city string) (*models.QueryRun, error) {
	run, err := s.claim(city)
	if err != nil {
		return nil, err
	}
	defer s.release(run.City)

	s.execute(ctx, run)
	return run, nil
}

// Start claims city and runs the pipeline in the background. A duplicate is
// rejected here, before any work starts. The returned run is still running.
func (s *QueryService) Start(city string) (*models.QueryRun, error) {
	run, err := s.claim(city)
	if err != nil {
		return nil, err
	}

	snapshot := *run
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(run.City)
		s.execute(s.baseCtx, run)
	}()

	return &snapshot, nil
}

// Wait blocks until every query started with Start has finished.
func (s *QueryService) Wait() {
	s.wg.Wait()
}

func (s *QueryService) execute(ctx context.Context, run *models.QueryRun) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.recorder.CreateRun(ctx, run); err != nil {
		log.Printf("Query: failed to record run: %v", err)
	}

	city := run.City
	session := s.store.Begin(city)
	log.Printf("Query: %s started (run %s)", city, run.ID)
	s.logRun(ctx, run, models.LogLevelInfo, "Query started")

	batch := s.scraper.Scrape(ctx, city)
	run.ListingsFound = len(batch.Listings)
	run.Fallback = batch.IsFallback()
	run.Advisory = batch.Message
	if run.Fallback {
		s.logRun(ctx, run, models.LogLevelWarn, batch.Message)
	}

	var stale bool
	emit := func(l models.Listing, outcome workers.Outcome, err error) {
		if stale {
			return
		}
		if _, addErr := session.Add(l); errors.Is(addErr, storage.ErrStaleSession) {
			stale = true
			log.Printf("Query: %s superseded, dropping remaining listings", city)
			return
		}
		if outcome == workers.OutcomeMissed && ctx.Err() == nil && geocode.Classify(err) != geocode.FailureNotFound {
			s.logRun(ctx, run, models.LogLevelWarn, fmt.Sprintf("No coordinates for %s: %v", l.ID, err))
		}
	}

	_, stats := s.enricher.Enrich(ctx, batch.Listings, emit)
	run.Geocoded = stats.Geocoded
	run.GeocodeMisses = stats.Misses
	run.Preseeded = stats.Preseeded

	var queryErr error
	switch {
	case stale:
		queryErr = storage.ErrStaleSession
	case ctx.Err() != nil:
		queryErr = fmt.Errorf("query interrupted: %w", ctx.Err())
	}

	if err := session.End(queryErr); err != nil && !stale {
		log.Printf("Query: %s superseded before completion", city)
		queryErr = storage.ErrStaleSession
	}

	run.Finish(queryErr)
	if queryErr != nil {
		s.logRun(ctx, run, models.LogLevelError, queryErr.Error())
	}
	log.Printf("Query: %s finished in %s: %d listings, %d geocoded, %d misses, %d pre-seeded",
		city, run.Duration().Round(time.Millisecond), run.ListingsFound, run.Geocoded, run.GeocodeMisses, run.Preseeded)

	// the run's own context may be done; record the outcome regardless
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.FinishRun(recordCtx, run); err != nil {
		log.Printf("Query: failed to finish run: %v", err)
	}
}

func (s *QueryService) logRun(ctx context.Context, run *models.QueryRun, level models.LogLevel, msg string) {
	entry := &models.QueryLog{
		RunID:     run.ID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		City:      run.City,
	}
	if err := s.recorder.Log(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("Query: failed to write run log: %v", err)
	}
}
