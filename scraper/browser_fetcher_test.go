package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"reprojects/config"
)

func TestNavigationTimeout(t *testing.T) {
	timeout, err := navigationTimeout(context.Background())
	if err != nil || timeout != defaultNavigationTimeout {
		t.Fatalf("no deadline: got %v, %v", timeout, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	timeout, err = navigationTimeout(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if timeout <= 0 || timeout > time.Minute {
		t.Fatalf("expected remaining budget, got %v", timeout)
	}
}

func TestNavigationTimeout_ExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	timeout, err := navigationTimeout(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v (timeout %v)", err, timeout)
	}
}

func TestBrowserFetcher_CancelledContext(t *testing.T) {
	f := NewBrowserFetcher(config.DefaultSite())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "https://example.com"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
