package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Geocoder  GeocoderConfig
	Proxy     ProxyConfig
	S3        S3Config
	Scheduler SchedulerConfig
	DBPath    string
	DBURL     string
	LogPath   string
	Sites     map[string]*SiteConfig
}

type ServerConfig struct {
	Addr string
}

type ScraperConfig struct {
	SiteID       string
	Timeout      time.Duration
	QueryTimeout time.Duration // whole scrape + enrichment run
}

type GeocoderConfig struct {
	BaseURL     string
	APIKeyEnv   string
	Country     string
	MinInterval time.Duration
	Timeout     time.Duration
}

// APIKey reads the provider credential from the environment on every call,
// so a key rotated in the process environment is picked up without a restart.
func (g GeocoderConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

type ProxyConfig struct {
	URL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, etc.
	AccessKeyID     string
	SecretAccessKey string
}

func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

type SchedulerConfig struct {
	Cron         string
	Interval     time.Duration
	CanaryCities []string
}

type SiteConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Handler     string         `yaml:"handler"`
	URLTemplate string         `yaml:"url_template"`
	UserAgent   string         `yaml:"user_agent"`
	Containers  [][]string     `yaml:"containers"`
	Fields      FieldRules     `yaml:"fields"`
	Fallback    FallbackConfig `yaml:"fallback"`
}

// FieldRules lists, per listing field, the selectors tried in order.
// A rule of the form "selector@attr" reads an attribute instead of text.
type FieldRules struct {
	Name     []string `yaml:"name"`
	Location []string `yaml:"location"`
	Price    []string `yaml:"price"`
	Builder  []string `yaml:"builder"`
}

type FallbackConfig struct {
	CountryCentroid LatLng            `yaml:"country_centroid"`
	Cities          map[string]LatLng `yaml:"cities"`
}

type LatLng struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// URL renders the listing page address for a city key.
func (s *SiteConfig) URL(city string) string {
	return strings.ReplaceAll(s.URLTemplate, "{city}", city)
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("LISTEN_ADDR", ":8080"),
		},
		Scraper: ScraperConfig{
			SiteID:       getEnv("SCRAPE_SITE", DefaultSiteID),
			Timeout:      getEnvDuration("SCRAPE_TIMEOUT", 20*time.Second),
			QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 5*time.Minute),
		},
		Geocoder: GeocoderConfig{
			BaseURL:     getEnv("GEOCODER_URL", "http://api.positionstack.com/v1/forward"),
			APIKeyEnv:   "POSITIONSTACK_API_KEY",
			Country:     getEnv("GEOCODER_COUNTRY", "India"),
			MinInterval: getEnvDuration("GEOCODER_MIN_INTERVAL", 250*time.Millisecond),
			Timeout:     getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:         os.Getenv("CANARY_CRON"),
			Interval:     getEnvDuration("CANARY_INTERVAL", 0),
			CanaryCities: getEnvList("CANARY_CITIES", []string{"mumbai"}),
		},
		DBPath:  getEnv("DB_PATH", "queries.db"),
		DBURL:   os.Getenv("DATABASE_URL"),
		LogPath: getEnv("LOG_PATH", "server.log"),
		Sites:   map[string]*SiteConfig{DefaultSiteID: DefaultSite()},
	}

	if err := cfg.loadSiteConfigs(getEnv("SITES_DIR", "config/sites")); err != nil {
		return nil, err
	}

	if _, ok := cfg.Sites[cfg.Scraper.SiteID]; !ok {
		return nil, fmt.Errorf("unknown site %q (SCRAPE_SITE)", cfg.Scraper.SiteID)
	}

	return cfg, nil
}

// Site returns the config of the site selected by SCRAPE_SITE.
func (c *Config) Site() *SiteConfig {
	return c.Sites[c.Scraper.SiteID]
}

func (c *Config) loadSiteConfigs(configDir string) error {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		site, err := ParseSite(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		c.Sites[site.ID] = site
	}

	return nil
}

// ParseSite decodes a site YAML document. Sections the document leaves out
// are taken from the built-in default site; id and url_template must be given.
func ParseSite(data []byte) (*SiteConfig, error) {
	site := DefaultSite()
	site.ID = ""
	site.URLTemplate = ""
	site.Containers = nil
	site.Fields = FieldRules{}
	site.Fallback.Cities = nil

	if err := yaml.Unmarshal(data, site); err != nil {
		return nil, err
	}
	if site.ID == "" {
		return nil, fmt.Errorf("site config missing id")
	}
	if !strings.Contains(site.URLTemplate, "{city}") {
		return nil, fmt.Errorf("site %s: url_template must contain {city}", site.ID)
	}

	def := DefaultSite()
	if len(site.Containers) == 0 {
		site.Containers = def.Containers
	}
	if len(site.Fields.Name) == 0 {
		site.Fields.Name = def.Fields.Name
	}
	if len(site.Fields.Location) == 0 {
		site.Fields.Location = def.Fields.Location
	}
	if len(site.Fields.Price) == 0 {
		site.Fields.Price = def.Fields.Price
	}
	if len(site.Fields.Builder) == 0 {
		site.Fields.Builder = def.Fields.Builder
	}
	if site.Fallback.Cities == nil {
		site.Fallback.Cities = def.Fallback.Cities
	}
	return site, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
