package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/resilience"
)

const mapboxBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// mapboxResponse is the JSON response from the Mapbox forward-geocoding API.
// Center carries [longitude, latitude].
type mapboxResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		PlaceName string    `json:"place_name"`
		Relevance float64   `json:"relevance"`
	} `json:"features"`
}

// MapboxProvider is the primary, token-gated geocoding provider.
type MapboxProvider struct {
	httpClient *http.Client
	baseURL    string
	token      string
	breaker    *resilience.Breaker
}

// MapboxOption configures the provider.
type MapboxOption func(*MapboxProvider)

// WithMapboxBaseURL overrides the API base URL (tests).
func WithMapboxBaseURL(u string) MapboxOption {
	return func(p *MapboxProvider) { p.baseURL = u }
}

// WithMapboxHTTPClient sets a custom HTTP client.
func WithMapboxHTTPClient(hc *http.Client) MapboxOption {
	return func(p *MapboxProvider) { p.httpClient = hc }
}

// WithMapboxBreaker installs a circuit breaker around provider calls.
func WithMapboxBreaker(b *resilience.Breaker) MapboxOption {
	return func(p *MapboxProvider) { p.breaker = b }
}

// NewMapboxProvider creates the provider. An empty token leaves the provider
// configured but unavailable, so the cascade skips straight to the fallback.
func NewMapboxProvider(token string, opts ...MapboxOption) *MapboxProvider {
	p := &MapboxProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    mapboxBaseURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *MapboxProvider) Name() string { return "mapbox" }

// Available implements Provider. The provider is enabled only when a token
// is configured and its breaker (if any) admits calls.
func (p *MapboxProvider) Available() bool {
	if p.token == "" {
		return false
	}
	if p.breaker != nil && !p.breaker.Allow() {
		return false
	}
	return true
}

// Geocode implements Provider, returning the single best match.
func (p *MapboxProvider) Geocode(ctx context.Context, company, city string) (*model.Coordinates, error) {
	query := joinQuery(company, city)
	if query == "" {
		return nil, nil
	}

	params := url.Values{
		"access_token": {p.token},
		"limit":        {"1"},
	}
	reqURL := fmt.Sprintf("%s/%s.json?%s", p.baseURL, url.PathEscape(query), params.Encode())

	var coords *model.Coordinates
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "geocode: mapbox build request")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "geocode: mapbox request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "geocode: mapbox read body")
		}
		if resp.StatusCode != http.StatusOK {
			return resilience.NewUpstreamError("mapbox", resp.StatusCode, string(body))
		}

		var mr mapboxResponse
		if err := json.Unmarshal(body, &mr); err != nil {
			return eris.Wrap(err, "geocode: mapbox parse response")
		}
		if len(mr.Features) == 0 || len(mr.Features[0].Center) < 2 {
			return nil // clean no-match
		}

		center := mr.Features[0].Center
		coords = &model.Coordinates{Lat: center[1], Lon: center[0]}
		return nil
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return coords, nil
}

// joinQuery builds the free-form place query from the non-empty parts.
func joinQuery(company, city string) string {
	var parts []string
	if c := strings.TrimSpace(company); c != "" {
		parts = append(parts, c)
	}
	if c := strings.TrimSpace(city); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}
