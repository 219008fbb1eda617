package config

const DefaultSiteID = "magicbricks"

// DefaultSite is the built-in MagicBricks config. Selector groups run from
// site-specific markers to generic ones; none of them is assumed to exist.
func DefaultSite() *SiteConfig {
	return &SiteConfig{
		ID:          DefaultSiteID,
		Name:        "MagicBricks",
		Handler:     "http",
		URLTemplate: "https://www.magicbricks.com/new-projects-in-{city}",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Containers: [][]string{
			{".mb-srp__card", ".mb-srp__card--container"},
			{".project-card", "[data-project-id]"},
		},
		Fields: FieldRules{
			Name:     []string{".mb-srp__card--title", ".projName", ".project-title"},
			Location: []string{".mb-srp__card__summary--location", ".locName", ".project-location"},
			Price:    []string{".mb-srp__card__price--amount", ".price", ".project-price"},
			Builder:  []string{".mb-srp__card__ads--name", ".builder-name", ".developer-name"},
		},
		Fallback: FallbackConfig{
			CountryCentroid: LatLng{Lat: 20.5937, Lng: 78.9629},
			Cities: map[string]LatLng{
				"mumbai":    {Lat: 19.076, Lng: 72.8777},
				"delhi":     {Lat: 28.6139, Lng: 77.209},
				"bangalore": {Lat: 12.9716, Lng: 77.5946},
				"bengaluru": {Lat: 12.9716, Lng: 77.5946},
				"hyderabad": {Lat: 17.385, Lng: 78.4867},
				"chennai":   {Lat: 13.0827, Lng: 80.2707},
				"pune":      {Lat: 18.5204, Lng: 73.8567},
			},
		},
	}
}
