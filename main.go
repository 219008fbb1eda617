package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"reprojects/api"
	"reprojects/config"
	"reprojects/geocode"
	"reprojects/httputil"
	"reprojects/logging"
	"reprojects/models"
	"reprojects/scheduler"
	"reprojects/scraper"
	"reprojects/services"
	"reprojects/storage"
	"reprojects/workers"
)

var (
	cityOnce   = flag.String("city", "", "Run one query for this city, print the result and exit")
	canaryOnce = flag.Bool("canary", false, "Probe the canary cities once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting reprojects...")

	site := cfg.Site()
	log.Printf("Loaded %d site configs, scraping %s (%s, handler %s)", len(cfg.Sites), site.Name, site.ID, site.Handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients := httputil.NewClients(cfg)

	fetcher := scraper.NewFetcher(site, clients.Scraping)
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}
	orchestrator := scraper.NewOrchestrator(site, fetcher)

	if cfg.S3.Enabled() {
		archiver, err := storage.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: page archive disabled: %v", err)
		} else {
			orchestrator.SetArchiver(archiver)
			log.Printf("Archiving empty pages to s3://%s/pages/", cfg.S3.Bucket)
		}
	}

	geocoder := geocode.NewClient(clients.API, cfg.Geocoder.BaseURL, cfg.Geocoder.APIKey, cfg.Geocoder.MinInterval)
	if cfg.Geocoder.APIKey() == "" {
		log.Printf("Warning: %s is not set, geocoding requests will fail", cfg.Geocoder.APIKeyEnv)
	}
	enricher := workers.NewEnrichmentWorker(geocoder, cfg.Geocoder.Country)

	recorders := storage.MultiRecorder{}
	var history *storage.SQLiteStore
	if cfg.DBPath != "" {
		history, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		defer history.Close()
		recorders = append(recorders, history)
		log.Printf("SQLite run history: %s", cfg.DBPath)
	}
	if cfg.DBURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DBURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare Postgres schema: %v", err)
		}
		recorders = append(recorders, pgStore)
		log.Printf("Mirroring run history to Postgres: %s", maskConnectionString(cfg.DBURL))
	}

	store := storage.NewAggregateStore()
	queries := services.NewQueryService(orchestrator, enricher, store)
	queries.SetRecorder(recorders)
	queries.SetTimeout(cfg.Scraper.QueryTimeout)
	queries.SetContext(ctx)

	canary := workers.NewCanaryWorker(orchestrator, cfg.Scheduler.CanaryCities)
	canary.SetRecorder(recorders)
	canary.SetLogger(func(runID uuid.UUID, level models.LogLevel, city, message string) {
		entry := &models.QueryLog{RunID: runID, Timestamp: time.Now(), Level: level, Message: message, City: city}
		if err := recorders.Log(ctx, entry); err != nil {
			log.Printf("Canary: failed to write log: %v", err)
		}
	})

	// Handle one-shot commands
	if *cityOnce != "" {
		run, err := queries.Query(ctx, *cityOnce)
		if err != nil {
			log.Fatalf("Query failed: %v", err)
		}
		printJSON(map[string]any{"run": run, "state": store.Snapshot()})
		return
	}
	if *canaryOnce {
		printJSON(map[string]any{"results": canary.ProbeAll(ctx)})
		return
	}

	handler := api.NewHandler(orchestrator, geocoder, queries, store)
	handler.SetCanary(canary)
	if history != nil {
		handler.SetHistory(history)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := scheduler.New(cfg.Scheduler, canary)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		canary.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		sched.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}
	queries.Wait()
	log.Println("Goodbye!")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
