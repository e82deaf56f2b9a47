package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobatlas/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"count": 1234,
			"results": [
				{
					"id": "42",
					"title": "Go Developer",
					"company": {"display_name": "Acme"},
					"location": {"display_name": "Paris", "area": ["France", "Ile-de-France", "Paris"]},
					"salary_min": 45000,
					"salary_max": 60000,
					"latitude": 48.85,
					"longitude": 2.35,
					"redirect_url": "https://example.com/42",
					"created": "2026-08-01T10:00:00Z",
					"contract_time": "full_time"
				}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fr", "my-id", "my-key")

	res, err := c.Search(context.Background(), Query{What: "developer", Where: "paris", Page: 2, PerPage: 50})
	require.NoError(t, err)

	assert.Equal(t, "/fr/search/2", gotPath)
	assert.Equal(t, []string{"my-id"}, gotQuery["app_id"])
	assert.Equal(t, []string{"my-key"}, gotQuery["app_key"])
	assert.Equal(t, []string{"developer"}, gotQuery["what"])
	assert.Equal(t, []string{"50"}, gotQuery["results_per_page"])

	assert.Equal(t, 1234, res.Count)
	require.Len(t, res.Results, 1)
	raw := res.Results[0]
	assert.Equal(t, "42", raw.ID)
	assert.Equal(t, "Acme", raw.Company.DisplayName)
	require.NotNil(t, raw.Latitude)
	assert.InDelta(t, 48.85, *raw.Latitude, 1e-9)
}

func TestSearch_ClampsPageAndPerPage(t *testing.T) {
	var gotPath string
	var perPage []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		perPage = r.URL.Query()["results_per_page"]
		_, _ = io.WriteString(w, `{"count": 0, "results": []}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fr", "id", "key")
	_, err := c.Search(context.Background(), Query{Page: 0, PerPage: 500})
	require.NoError(t, err)

	assert.Equal(t, "/fr/search/1", gotPath)
	assert.Equal(t, []string{"100"}, perPage)
}

func TestSearch_UpstreamErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"display": "invalid app credentials"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fr", "bad", "creds")
	_, err := c.Search(context.Background(), Query{Page: 1, PerPage: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid app credentials")
}

func TestSearch_MissingCredentialsOmitted(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = io.WriteString(w, `{"count": 0, "results": []}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fr", "", "")
	_, err := c.Search(context.Background(), Query{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.NotContains(t, query, "app_id")
	assert.NotContains(t, query, "app_key")
}

func TestSearch_BreakerOpensOnRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := resilience.NewBreaker("source", 2, 0)
	c := NewClient(srv.URL, "fr", "id", "key", WithBreaker(b), WithRateLimit(1000))

	_, _ = c.Search(context.Background(), Query{Page: 1})
	_, _ = c.Search(context.Background(), Query{Page: 1})

	assert.Equal(t, resilience.BreakerOpen, b.State())
}
