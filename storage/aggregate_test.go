package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"reprojects/models"
)

func listing(id, name string) models.Listing {
	return models.Listing{
		ID:          id,
		ProjectName: name,
		Location:    "Baner, Pune",
		PriceRange:  models.DefaultPriceRange,
		BuilderName: models.DefaultBuilderName,
	}
}

func withCoords(l models.Listing, lat, lng float64) models.Listing {
	l.SetCoordinates(&models.Coordinates{Lat: lat, Lng: lng})
	return l
}

func TestAddIfAbsent_KeepsFirst(t *testing.T) {
	s := NewAggregateStore()

	if !s.AddIfAbsent(listing("pune-0", "First")) {
		t.Fatal("first insert rejected")
	}
	if s.AddIfAbsent(listing("pune-0", "Second")) {
		t.Error("duplicate id inserted")
	}

	state := s.Snapshot()
	if len(state.Listings) != 1 {
		t.Fatalf("len = %d, want 1", len(state.Listings))
	}
	if state.Listings[0].ProjectName != "First" {
		t.Errorf("ProjectName = %q, want First", state.Listings[0].ProjectName)
	}
}

func TestAddIfAbsent_PreservesOrder(t *testing.T) {
	s := NewAggregateStore()
	for i := 0; i < 5; i++ {
		s.AddIfAbsent(listing(fmt.Sprintf("pune-%d", i), "p"))
	}

	state := s.Snapshot()
	for i, l := range state.Listings {
		if want := fmt.Sprintf("pune-%d", i); l.ID != want {
			t.Errorf("Listings[%d].ID = %s, want %s", i, l.ID, want)
		}
	}
}

func TestAddIfAbsent_DropsHalfCoordinates(t *testing.T) {
	s := NewAggregateStore()
	lat := 18.5
	l := listing("pune-0", "Half")
	l.Lat = &lat

	s.AddIfAbsent(l)

	got := s.Snapshot().Listings[0]
	if got.Lat != nil || got.Lng != nil {
		t.Errorf("stored lat=%v lng=%v, want both nil", got.Lat, got.Lng)
	}
}

func TestReplaceAll(t *testing.T) {
	s := NewAggregateStore()
	s.AddIfAbsent(listing("old", "Old"))

	s.ReplaceAll([]models.Listing{
		listing("a", "A"),
		listing("b", "B"),
		listing("a", "A again"),
	})

	state := s.Snapshot()
	if len(state.Listings) != 2 {
		t.Fatalf("len = %d, want 2", len(state.Listings))
	}
	if state.Listings[0].ProjectName != "A" {
		t.Errorf("duplicate in batch overwrote first: %q", state.Listings[0].ProjectName)
	}
}

func TestClearAndStatus(t *testing.T) {
	s := NewAggregateStore()
	s.AddIfAbsent(listing("a", "A"))
	s.SetLoading(true)
	s.SetError("network unreachable")

	state := s.Snapshot()
	if !state.Loading {
		t.Error("Loading = false")
	}
	if state.Error == nil || *state.Error != "network unreachable" {
		t.Errorf("Error = %v", state.Error)
	}

	s.Clear()
	s.SetError("")
	state = s.Snapshot()
	if len(state.Listings) != 0 {
		t.Errorf("len after Clear = %d", len(state.Listings))
	}
	if state.Error != nil {
		t.Errorf("Error = %q, want nil", *state.Error)
	}
}

func TestSnapshot_IsolatedFromStore(t *testing.T) {
	s := NewAggregateStore()
	s.AddIfAbsent(withCoords(listing("a", "A"), 18.5, 73.8))

	state := s.Snapshot()
	*state.Listings[0].Lat = 0
	state.Listings[0].ProjectName = "mutated"

	again := s.Snapshot()
	if *again.Listings[0].Lat != 18.5 {
		t.Errorf("store lat changed to %v", *again.Listings[0].Lat)
	}
	if again.Listings[0].ProjectName != "A" {
		t.Errorf("store name changed to %q", again.Listings[0].ProjectName)
	}
}

func TestVersionIncreases(t *testing.T) {
	s := NewAggregateStore()
	v0 := s.Snapshot().Version
	s.AddIfAbsent(listing("a", "A"))
	v1 := s.Snapshot().Version
	s.AddIfAbsent(listing("a", "A"))
	v2 := s.Snapshot().Version

	if v1 <= v0 {
		t.Errorf("version did not advance on insert: %d -> %d", v0, v1)
	}
	if v2 != v1 {
		t.Errorf("rejected duplicate advanced version: %d -> %d", v1, v2)
	}
}

func TestBegin_ResetsState(t *testing.T) {
	s := NewAggregateStore()
	s.AddIfAbsent(listing("a", "A"))
	s.SetError("old failure")

	sess := s.Begin("pune")

	state := s.Snapshot()
	if state.City != "pune" || sess.City() != "pune" {
		t.Errorf("City = %q / %q, want pune", state.City, sess.City())
	}
	if len(state.Listings) != 0 {
		t.Errorf("len = %d, want 0", len(state.Listings))
	}
	if !state.Loading {
		t.Error("Loading = false after Begin")
	}
	if state.Error != nil {
		t.Errorf("Error = %q, want nil", *state.Error)
	}
}

func TestSession_End(t *testing.T) {
	s := NewAggregateStore()
	sess := s.Begin("pune")
	sess.Add(listing("pune-0", "A"))

	if err := sess.End(errors.New("scrape failed")); err != nil {
		t.Fatalf("End: %v", err)
	}

	state := s.Snapshot()
	if state.Loading {
		t.Error("Loading = true after End")
	}
	if state.Error == nil || *state.Error != "scrape failed" {
		t.Errorf("Error = %v", state.Error)
	}
	if len(state.Listings) != 1 {
		t.Errorf("End dropped listings: %d", len(state.Listings))
	}
}

func TestSession_StaleWritesRefused(t *testing.T) {
	s := NewAggregateStore()
	old := s.Begin("pune")
	current := s.Begin("mumbai")

	if _, err := old.Add(listing("pune-0", "Late")); !errors.Is(err, ErrStaleSession) {
		t.Errorf("stale Add err = %v, want ErrStaleSession", err)
	}
	if err := old.Replace([]models.Listing{listing("pune-1", "Late")}); !errors.Is(err, ErrStaleSession) {
		t.Errorf("stale Replace err = %v, want ErrStaleSession", err)
	}
	if err := old.End(nil); !errors.Is(err, ErrStaleSession) {
		t.Errorf("stale End err = %v, want ErrStaleSession", err)
	}

	if added, err := current.Add(listing("mumbai-0", "Fresh")); err != nil || !added {
		t.Fatalf("current Add = %v, %v", added, err)
	}

	state := s.Snapshot()
	if state.City != "mumbai" || len(state.Listings) != 1 || state.Listings[0].ID != "mumbai-0" {
		t.Errorf("state = %+v", state)
	}
	if !state.Loading {
		t.Error("stale End cleared loading of the current query")
	}
}

func TestConcurrentAdds_InsertOnce(t *testing.T) {
	s := NewAggregateStore()
	sess := s.Begin("pune")

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := sess.Add(listing(fmt.Sprintf("pune-%d", n%10), "p"))
			if err != nil {
				t.Errorf("Add: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if inserted != 10 || s.Len() != 10 {
		t.Errorf("inserted = %d, Len = %d, want 10", inserted, s.Len())
	}
}

func TestState_WithLocation(t *testing.T) {
	s := NewAggregateStore()
	s.AddIfAbsent(withCoords(listing("a", "A"), 18.5, 73.8))
	s.AddIfAbsent(listing("b", "B"))

	if got := s.Snapshot().WithLocation(); got != 1 {
		t.Errorf("WithLocation = %d, want 1", got)
	}
}
