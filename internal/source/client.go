// Package source fetches raw job postings from the upstream search API
// (Adzuna-compatible paged endpoint).
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobatlas/internal/resilience"
)

const (
	// PerPage bounds enforced by the upstream API.
	MinPerPage = 1
	MaxPerPage = 100

	defaultTimeout = 20 * time.Second
)

// Query describes one page of a job search.
type Query struct {
	What      string
	Where     string
	SalaryMin int
	SalaryMax int
	Page      int
	PerPage   int
}

// SearchResult is one page of raw provider records plus the total count hint.
type SearchResult struct {
	Count   int      `json:"count"`
	Results []RawJob `json:"results"`
}

// Client calls the upstream job search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	country    string
	appID      string
	appKey     string
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the request-per-second politeness limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithBreaker installs a circuit breaker around upstream calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a Client for the given country feed. The appID/appKey
// credential pair identifies the application to the upstream API; an empty
// pair is tolerated here (development mode) with a warning, and requests go
// out unauthenticated.
func NewClient(baseURL, country, appID, appKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		country:    country,
		appID:      appID,
		appKey:     appKey,
		limiter:    rate.NewLimiter(2, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.appID == "" || c.appKey == "" {
		zap.L().Warn("source: app credentials not configured, requests will likely be rejected upstream")
	}
	return c
}

// Search fetches one page of postings. PerPage is clamped to the upstream
// bounds and Page to a minimum of 1. A non-2xx response or transport failure
// is returned as an error carrying the upstream status and body snippet.
func (c *Client) Search(ctx context.Context, q Query) (*SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "source: rate limit")
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < MinPerPage {
		perPage = MinPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	params := url.Values{
		"results_per_page": {strconv.Itoa(perPage)},
		"content-type":     {"application/json"},
	}
	if c.appID != "" {
		params.Set("app_id", c.appID)
		params.Set("app_key", c.appKey)
	}
	if q.What != "" {
		params.Set("what", q.What)
	}
	if q.Where != "" {
		params.Set("where", q.Where)
	}
	if q.SalaryMin > 0 {
		params.Set("salary_min", strconv.Itoa(q.SalaryMin))
	}
	if q.SalaryMax > 0 {
		params.Set("salary_max", strconv.Itoa(q.SalaryMax))
	}

	reqURL := fmt.Sprintf("%s/%s/search/%d?%s", c.baseURL, c.country, page, params.Encode())

	var result *SearchResult
	fetch := func(ctx context.Context) error {
		r, err := c.fetchPage(ctx, reqURL)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("source: page fetched",
		zap.Int("page", page),
		zap.Int("results", len(result.Results)),
		zap.Int("count_hint", result.Count),
	)
	return result, nil
}

func (c *Client) fetchPage(ctx context.Context, reqURL string) (*SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "source: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "source: read body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewUpstreamError("source", resp.StatusCode, string(body))
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "source: parse response")
	}
	return &result, nil
}
