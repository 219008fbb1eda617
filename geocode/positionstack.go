package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"reprojects/models"
)

var (
	ErrMissingAPIKey = errors.New("PositionStack API key not configured")
	ErrEmptyQuery    = errors.New("location is required")
	ErrNotFound      = errors.New("location not found")
)

// ProviderError covers every other failure: transport, non-2xx, bad payload.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("geocoding failed: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Geocoder resolves a free-text location into one coordinate pair.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.Coordinates, error)
}

// Client calls the PositionStack forward-geocoding endpoint, one request
// at a time, paced by a limiter shared across callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     func() string
	limiter    *rate.Limiter
}

// NewClient builds a client. apiKey is consulted on every call; minInterval
// of zero disables pacing.
func NewClient(httpClient *http.Client, baseURL string, apiKey func() string, minInterval time.Duration) *Client {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type forwardResponse struct {
	Data  []json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type forwardResult struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (c *Client) Geocode(ctx context.Context, query string) (models.Coordinates, error) {
	key := c.apiKey()
	if key == "" {
		return models.Coordinates{}, ErrMissingAPIKey
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return models.Coordinates{}, ErrEmptyQuery
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.Coordinates{}, &ProviderError{Cause: err}
	}

	params := url.Values{}
	params.Set("access_key", key)
	params.Set("query", query)
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return models.Coordinates{}, &ProviderError{Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Coordinates{}, &ProviderError{Cause: redactKey(err, key)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Coordinates{}, &ProviderError{
			Cause: fmt.Errorf("provider status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var result forwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.Coordinates{}, &ProviderError{Cause: fmt.Errorf("decode response: %w", err)}
	}
	if result.Error != nil {
		return models.Coordinates{}, &ProviderError{
			Cause: fmt.Errorf("provider error %s: %s", result.Error.Code, result.Error.Message),
		}
	}

	return firstMatch(result.Data)
}

// firstMatch takes the first result. PositionStack answers a miss with
// either "data": [] or "data": [[]], so non-object entries count as a miss.
func firstMatch(data []json.RawMessage) (models.Coordinates, error) {
	if len(data) == 0 {
		return models.Coordinates{}, ErrNotFound
	}

	var match forwardResult
	if err := json.Unmarshal(data[0], &match); err != nil {
		return models.Coordinates{}, ErrNotFound
	}
	if match.Latitude == nil || match.Longitude == nil {
		return models.Coordinates{}, ErrNotFound
	}

	coords := models.Coordinates{Lat: *match.Latitude, Lng: *match.Longitude}
	if !coords.Valid() {
		return models.Coordinates{}, &ProviderError{Cause: fmt.Errorf("invalid coordinates %v,%v", coords.Lat, coords.Lng)}
	}
	return coords, nil
}

// redactKey strips the access key from url.Error messages before they are logged.
func redactKey(err error, key string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(key), "****")
	}
	return err
}
