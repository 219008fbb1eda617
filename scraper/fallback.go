package scraper

import (
	"fmt"

	"reprojects/config"
	"reprojects/identity"
	"reprojects/models"
)

type demoProject struct {
	nameSuffix     string
	locationSuffix string
	priceRange     string
	builderName    string
	dLat, dLng     float64
}

// Offsets keep the three markers apart on a map.
var demoProjects = []demoProject{
	{"Heights", "City Center", "₹75L - ₹1.2Cr", "Demo Developers", 0.02, 0.02},
	{"Residency", "West", "₹55L - ₹90L", "Sample Constructions", -0.015, -0.01},
	{"Greens", "East", models.DefaultPriceRange, "Example Builders", 0.008, -0.02},
}

// FallbackGenerator produces deterministic demo listings for a city.
type FallbackGenerator struct {
	seeds    map[string]models.Coordinates
	centroid models.Coordinates
}

func NewFallbackGenerator(cfg config.FallbackConfig) *FallbackGenerator {
	seeds := make(map[string]models.Coordinates, len(cfg.Cities))
	for name, c := range cfg.Cities {
		seeds[identity.SeedKey(name)] = models.Coordinates{Lat: c.Lat, Lng: c.Lng}
	}
	return &FallbackGenerator{
		seeds:    seeds,
		centroid: models.Coordinates{Lat: cfg.CountryCentroid.Lat, Lng: cfg.CountryCentroid.Lng},
	}
}

// Base returns the seed coordinate for city, or the country centroid.
func (g *FallbackGenerator) Base(city string) models.Coordinates {
	if c, ok := g.seeds[identity.SeedKey(city)]; ok {
		return c
	}
	return g.centroid
}

func (g *FallbackGenerator) Generate(city string) []models.Listing {
	base := g.Base(city)
	display := identity.DisplayName(city)

	listings := make([]models.Listing, 0, len(demoProjects))
	for i, p := range demoProjects {
		listing := models.Listing{
			ID:          fmt.Sprintf("%s-demo-%d", city, i+1),
			ProjectName: fmt.Sprintf("%s %s", display, p.nameSuffix),
			Location:    fmt.Sprintf("%s %s", display, p.locationSuffix),
			PriceRange:  p.priceRange,
			BuilderName: p.builderName,
		}
		listing.SetCoordinates(&models.Coordinates{Lat: base.Lat + p.dLat, Lng: base.Lng + p.dLng})
		listings = append(listings, listing)
	}
	return listings
}
