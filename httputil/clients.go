package httputil

import (
	"log"
	"net/http"
	"net/url"

	"reprojects/config"
)

type Clients struct {
	Scraping *http.Client // optionally proxied, for the listing site
	API      *http.Client // direct, for the geocoding provider
}

func NewClients(cfg *config.Config) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Proxy.URL != "" {
		if proxyURL, err := url.Parse(cfg.Proxy.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			log.Printf("Scraping client using proxy: %s", proxyURL.Host)
		} else {
			log.Printf("Warning: ignoring invalid PROXY_URL: %v", err)
		}
	}

	return &Clients{
		Scraping: &http.Client{
			Timeout:   cfg.Scraper.Timeout,
			Transport: transport,
		},
		API: &http.Client{Timeout: cfg.Geocoder.Timeout},
	}
}
