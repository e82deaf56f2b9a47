package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobatlas/internal/ingest"
	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/ratelimit"
	"github.com/sells-group/jobatlas/internal/spatial"
	"github.com/sells-group/jobatlas/internal/store"
)

type stubStore struct {
	jobs       []model.Job
	lastFilter store.Filter
	searchErr  error
}

func (f *stubStore) UpsertJobs(context.Context, []model.Job) (int, error) { return 0, nil }

func (f *stubStore) SearchJobs(_ context.Context, filter store.Filter) ([]model.Job, error) {
	f.lastFilter = filter
	return f.jobs, f.searchErr
}

func (f *stubStore) JobsNear(context.Context, float64, float64, float64, int) ([]model.Job, error) {
	return f.jobs, nil
}

func (f *stubStore) JobsInBBox(context.Context, spatial.BBox, int) ([]model.Job, error) {
	return f.jobs, nil
}

func (f *stubStore) Migrate(context.Context) error { return nil }
func (f *stubStore) Close() error                  { return nil }

type stubImporter struct {
	summary ingest.Summary
	err     error
	calls   int
}

func (f *stubImporter) Run(context.Context, []int, int) (ingest.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func located(hash, title string, lat, lon float64, salaryMax int) model.Job {
	j := model.Job{
		ID:       "id-" + hash,
		Title:    title,
		Company:  "Acme",
		City:     "Paris",
		UniqHash: hash,
	}
	j.SetCoordinates(model.Coordinates{Lat: lat, Lon: lon})
	if salaryMax > 0 {
		j.SalaryMax = &salaryMax
	}
	return j
}

func newTestServer(st store.Store, im ImportRunner, opts Options) *httptest.Server {
	return httptest.NewServer(New(st, im, opts).Router())
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	var body map[string]string
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestJobsPlainSearch(t *testing.T) {
	st := &stubStore{jobs: []model.Job{located("a", "Go Developer", 48.85, 2.35, 0)}}
	ts := newTestServer(st, nil, Options{})
	defer ts.Close()

	var body struct {
		Data  []model.Job `json:"data"`
		Count int         `json:"count"`
	}
	resp := getJSON(t, ts.URL+"/api/jobs?what=go&city=paris&salary_min=40000&per_page=10", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Go Developer", body.Data[0].Title)

	assert.Equal(t, "go", st.lastFilter.What)
	assert.Equal(t, "paris", st.lastFilter.City)
	assert.Equal(t, 40000, st.lastFilter.SalaryMin)
	assert.Equal(t, 10, st.lastFilter.Limit)
}

func TestJobsBBoxFiltersAndSorts(t *testing.T) {
	st := &stubStore{jobs: []model.Job{
		located("low", "Go Developer", 48.2, 2.2, 40000),
		located("high", "Go Developer Senior", 48.3, 2.3, 90000),
		located("other", "Baker", 48.25, 2.25, 60000),
	}}
	ts := newTestServer(st, nil, Options{})
	defer ts.Close()

	var body struct {
		Data  []model.Job `json:"data"`
		Count int         `json:"count"`
	}
	resp := getJSON(t, ts.URL+"/api/jobs?bbox=2.0,48.0,2.5,48.5&what=developer&sort=salary_desc", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "high", body.Data[0].UniqHash)
	assert.Equal(t, "low", body.Data[1].UniqHash)
}

func TestJobsBBoxExactCut(t *testing.T) {
	// The store may return a superset of the viewport; the handler applies
	// the exact bbox cut on top.
	st := &stubStore{jobs: []model.Job{
		located("in", "Go Developer", 48.2, 2.2, 0),
		located("edge", "Go Developer", 49.0, 2.2, 0),
	}}
	ts := newTestServer(st, nil, Options{})
	defer ts.Close()

	var body struct {
		Data []model.Job `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/jobs?bbox=2.0,48.0,2.5,48.5", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "in", body.Data[0].UniqHash)
}

func TestJobsRadiusExactCut(t *testing.T) {
	st := &stubStore{jobs: []model.Job{
		located("near", "Go Developer", 48.81, 2.35, 0), // ~5 km out
		located("far", "Go Developer", 48.40, 2.35, 0),  // ~50 km out
		located("none", "Go Developer Remote", 0, 0, 0),
	}}
	st.jobs[2].Lat = nil
	st.jobs[2].Lon = nil
	ts := newTestServer(st, nil, Options{})
	defer ts.Close()

	var body struct {
		Data []model.Job `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/api/jobs?lat=48.8566&lon=2.3522&radius_km=10", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "near", body.Data[0].UniqHash)
}

func TestJobsBadBBox(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	var body map[string]any
	resp := getJSON(t, ts.URL+"/api/jobs?bbox=not,a,real,box", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid query", body["message"])
	assert.NotEmpty(t, body["hint"])
}

func TestJobsIncompleteRadius(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/jobs?lat=48.85&lon=2.35", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobsBadSort(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/jobs?sort=alphabetical", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitRejection(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{
		Limiter: ratelimit.New(time.Minute, 1),
	})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/jobs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	resp = getJSON(t, ts.URL+"/api/jobs", &body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Greater(t, body["retry_after_ms"].(float64), 0.0)
}

func TestRateLimitKeyedByForwardedFor(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{
		Limiter: ratelimit.New(time.Minute, 1),
	})
	defer ts.Close()

	get := func(ip string) int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/jobs", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, get("10.0.0.1, 172.16.0.9"))
	assert.Equal(t, http.StatusOK, get("10.0.0.2"))
}

func TestClustersAndExpand(t *testing.T) {
	st := &stubStore{jobs: []model.Job{
		located("a", "Go Developer", 48.8566, 2.3522, 0),
		located("b", "Data Engineer", 48.8570, 2.3530, 0),
	}}
	ts := newTestServer(st, nil, Options{})
	defer ts.Close()

	var body struct {
		Key      string `json:"key"`
		Clusters struct {
			Type     string `json:"type"`
			Features []struct {
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		} `json:"clusters"`
	}
	resp := getJSON(t, ts.URL+"/api/clusters?bbox=2.0,48.0,2.5,49.0&zoom=5", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body.Key)
	assert.Equal(t, "FeatureCollection", body.Clusters.Type)
	require.Len(t, body.Clusters.Features, 1)

	props := body.Clusters.Features[0].Properties
	assert.Equal(t, true, props["cluster"])
	assert.Equal(t, 2.0, props["count"])

	clusterID := int(props["clusterId"].(float64))
	var expanded struct {
		JobIDs []string `json:"jobIds"`
	}
	resp = getJSON(t, ts.URL+"/api/clusters/expand?key="+body.Key+"&id="+strconv.Itoa(clusterID), &expanded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []string{"id-a", "id-b"}, expanded.JobIDs)
}

func TestExpandUnknownKey(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/clusters/expand?key=gone&id=1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClustersRequireBBox(t *testing.T) {
	ts := newTestServer(&stubStore{}, nil, Options{})
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/api/clusters?zoom=5", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postImport(t *testing.T, url, secret string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/import", nil)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-Import-Secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestImportRequiresSecret(t *testing.T) {
	im := &stubImporter{summary: ingest.Summary{Imported: 7}}
	ts := newTestServer(&stubStore{}, im, Options{ImportSecret: "hunter2"})
	defer ts.Close()

	resp, _ := postImport(t, ts.URL, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postImport(t, ts.URL, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, im.calls)

	resp, body := postImport(t, ts.URL, "hunter2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7.0, body["imported"])
	assert.Equal(t, 1, im.calls)
}

func TestImportUnconfiguredSecret(t *testing.T) {
	ts := newTestServer(&stubStore{}, &stubImporter{}, Options{})
	defer ts.Close()

	resp, body := postImport(t, ts.URL, "anything")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, body["hint"])
}

func TestImportFailure(t *testing.T) {
	im := &stubImporter{err: assert.AnError}
	ts := newTestServer(&stubStore{}, im, Options{ImportSecret: "s"})
	defer ts.Close()

	resp, body := postImport(t, ts.URL, "s")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "import failed", body["message"])
}
