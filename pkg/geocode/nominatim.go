package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/resilience"
	"github.com/sells-group/jobatlas/internal/throttle"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org"

// nominatimResult is one entry of the relevance-ordered result list.
// Coordinates come back as strings and need numeric coercion.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimProvider is the public fallback geocoder. Every call goes through
// the shared throttle: Nominatim's usage policy is strict about request
// rates and requires an identifying client agent.
type NominatimProvider struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	throttle   *throttle.Throttle
	breaker    *resilience.Breaker
}

// NominatimOption configures the provider.
type NominatimOption func(*NominatimProvider)

// WithNominatimBaseURL overrides the API base URL (tests).
func WithNominatimBaseURL(u string) NominatimOption {
	return func(p *NominatimProvider) { p.baseURL = u }
}

// WithNominatimHTTPClient sets a custom HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(p *NominatimProvider) { p.httpClient = hc }
}

// WithNominatimBreaker installs a circuit breaker around provider calls.
func WithNominatimBreaker(b *resilience.Breaker) NominatimOption {
	return func(p *NominatimProvider) { p.breaker = b }
}

// NewNominatimProvider creates the provider. The throttle is mandatory and
// shared with any other caller of the same public service.
func NewNominatimProvider(userAgent string, th *throttle.Throttle, opts ...NominatimOption) *NominatimProvider {
	p := &NominatimProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    nominatimBaseURL,
		userAgent:  userAgent,
		throttle:   th,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.throttle == nil {
		p.throttle = throttle.New(1, time.Second)
	}
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Available implements Provider.
func (p *NominatimProvider) Available() bool {
	return p.breaker == nil || p.breaker.Allow()
}

// Geocode implements Provider, taking the most relevant entry of the result
// list.
func (p *NominatimProvider) Geocode(ctx context.Context, company, city string) (*model.Coordinates, error) {
	query := joinQuery(company, city)
	if query == "" {
		return nil, nil
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := p.baseURL + "/search?" + params.Encode()

	var coords *model.Coordinates
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return eris.Wrap(err, "geocode: nominatim build request")
		}
		req.Header.Set("User-Agent", p.userAgent)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "geocode: nominatim request")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "geocode: nominatim read body")
		}
		if resp.StatusCode != http.StatusOK {
			return resilience.NewUpstreamError("nominatim", resp.StatusCode, string(body))
		}

		var results []nominatimResult
		if err := json.Unmarshal(body, &results); err != nil {
			return eris.Wrap(err, "geocode: nominatim parse response")
		}
		if len(results) == 0 {
			return nil // clean no-match
		}

		lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
		lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
		if latErr != nil || lonErr != nil {
			return eris.Errorf("geocode: nominatim returned non-numeric coordinates %q/%q", results[0].Lat, results[0].Lon)
		}

		coords = &model.Coordinates{Lat: lat, Lon: lon}
		return nil
	}

	run := func(ctx context.Context) error {
		if p.breaker != nil {
			return p.breaker.Do(ctx, call)
		}
		return call(ctx)
	}

	if err := p.throttle.Do(ctx, run); err != nil {
		return nil, err
	}
	return coords, nil
}
