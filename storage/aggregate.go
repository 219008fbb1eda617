package storage

import (
	"errors"
	"sync"

	"reprojects/models"
)

// ErrStaleSession is returned when a session has been superseded by a newer Begin.
var ErrStaleSession = errors.New("query session superseded")

// State is a point-in-time copy of the aggregate.
type State struct {
	City     string           `json:"city"`
	Listings []models.Listing `json:"projects"`
	Loading  bool             `json:"isLoading"`
	Error    *string          `json:"error"`
	Version  uint64           `json:"version"`
}

// WithLocation counts listings that carry a coordinate pair.
func (s State) WithLocation() int {
	n := 0
	for i := range s.Listings {
		if s.Listings[i].HasCoordinates() {
			n++
		}
	}
	return n
}

// AggregateStore holds the listings of the current city query. It is the
// only shared mutable state in the pipeline; every method is safe for
// concurrent use.
type AggregateStore struct {
	mu         sync.RWMutex
	city       string
	listings   []models.Listing
	index      map[string]int
	loading    bool
	errMsg     *string
	version    uint64
	generation uint64
}

func NewAggregateStore() *AggregateStore {
	return &AggregateStore{index: make(map[string]int)}
}

// AddIfAbsent inserts l unless a listing with the same id is already held.
// Returns true when l was inserted.
func (s *AggregateStore) AddIfAbsent(l models.Listing) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(l)
}

func (s *AggregateStore) addLocked(l models.Listing) bool {
	if _, ok := s.index[l.ID]; ok {
		return false
	}
	s.index[l.ID] = len(s.listings)
	s.listings = append(s.listings, copyListing(l))
	s.version++
	return true
}

// ReplaceAll swaps the held listings for ls. Later duplicates of an id are dropped.
func (s *AggregateStore) ReplaceAll(ls []models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	for _, l := range ls {
		s.addLocked(l)
	}
	s.version++
}

func (s *AggregateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.version++
}

func (s *AggregateStore) resetLocked() {
	s.listings = nil
	s.index = make(map[string]int)
}

func (s *AggregateStore) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.version++
}

// SetError records a query-level failure. An empty message clears it.
func (s *AggregateStore) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		s.errMsg = nil
	} else {
		s.errMsg = &msg
	}
	s.version++
}

// Snapshot returns a copy that later mutations do not affect.
func (s *AggregateStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := make([]models.Listing, len(s.listings))
	for i, l := range s.listings {
		listings[i] = copyListing(l)
	}

	var errMsg *string
	if s.errMsg != nil {
		msg := *s.errMsg
		errMsg = &msg
	}

	return State{
		City:     s.city,
		Listings: listings,
		Loading:  s.loading,
		Error:    errMsg,
		Version:  s.version,
	}
}

func (s *AggregateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// Begin starts a new query for city: it clears the listings, sets loading
// and drops any previous error. Sessions started earlier become stale.
func (s *AggregateStore) Begin(city string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.city = city
	s.resetLocked()
	s.loading = true
	s.errMsg = nil
	s.version++

	return &Session{store: s, city: city, generation: s.generation}
}

// Session is the write handle of one query. Writes through a stale session
// are refused so a slow query cannot leak listings into a newer city.
type Session struct {
	store      *AggregateStore
	city       string
	generation uint64
}

func (sess *Session) City() string {
	return sess.city
}

// Add inserts l if the session is current. The bool reports whether it was new.
func (sess *Session) Add(l models.Listing) (bool, error) {
	s := sess.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != sess.generation {
		return false, ErrStaleSession
	}
	return s.addLocked(l), nil
}

// Replace swaps in a whole batch if the session is current.
func (sess *Session) Replace(ls []models.Listing) error {
	s := sess.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != sess.generation {
		return ErrStaleSession
	}
	s.resetLocked()
	for _, l := range ls {
		s.addLocked(l)
	}
	s.version++
	return nil
}

// End clears loading and records err as the query-level error. It is a
// no-op for a stale session.
func (sess *Session) End(err error) error {
	s := sess.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != sess.generation {
		return ErrStaleSession
	}
	s.loading = false
	if err != nil {
		msg := err.Error()
		s.errMsg = &msg
	}
	s.version++
	return nil
}

// copyListing detaches the coordinate pointers and drops half-set pairs.
func copyListing(l models.Listing) models.Listing {
	if c, ok := l.Coordinates(); ok {
		l.SetCoordinates(&c)
	} else {
		l.Lat, l.Lng = nil, nil
	}
	return l
}
