package models

import "math"

const (
	DefaultPriceRange  = "Price on request"
	DefaultBuilderName = "Builder information not available"
)

// Listing is one real-estate project scraped (or synthesized) for a city.
// Lat and Lng are either both set or both nil.
type Listing struct {
	ID          string   `json:"id"`
	ProjectName string   `json:"projectName"`
	Location    string   `json:"location"`
	PriceRange  string   `json:"priceRange"`
	BuilderName string   `json:"builderName"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// Coordinates is a single lat/lng pair
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite numbers
func (c Coordinates) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) &&
		!math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0)
}

// HasCoordinates reports whether the listing carries a complete coordinate pair.
func (l *Listing) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// Coordinates returns the pair, ok=false when the listing is not enriched.
func (l *Listing) Coordinates() (Coordinates, bool) {
	if !l.HasCoordinates() {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *l.Lat, Lng: *l.Lng}, true
}

// SetCoordinates attaches c, or clears both fields when c is nil or not finite.
func (l *Listing) SetCoordinates(c *Coordinates) {
	if c == nil || !c.Valid() {
		l.Lat, l.Lng = nil, nil
		return
	}
	lat, lng := c.Lat, c.Lng
	l.Lat, l.Lng = &lat, &lng
}

// BatchResult is what one scrape of a city produces.
// Message is set only when demo data was substituted.
type BatchResult struct {
	Listings []Listing `json:"projects"`
	Message  string    `json:"message,omitempty"`
}

// IsFallback reports whether the batch carries demo data
func (b BatchResult) IsFallback() bool {
	return b.Message != ""
}
