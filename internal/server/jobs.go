package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/spatial"
	"github.com/sells-group/jobatlas/internal/store"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// jobsQuery is the parsed parameter set of a jobs request.
type jobsQuery struct {
	what      string
	city      string
	salaryMin int
	salaryMax int
	page      int
	perPage   int
	bbox      *spatial.BBox
	center    *model.Coordinates
	radiusKm  float64
	sort      spatial.SortCriterion
}

func parseJobsQuery(r *http.Request) (*jobsQuery, error) {
	q := r.URL.Query()
	jq := &jobsQuery{
		what:      strings.TrimSpace(q.Get("what")),
		city:      strings.TrimSpace(q.Get("city")),
		salaryMin: intParam(q.Get("salary_min")),
		salaryMax: intParam(q.Get("salary_max")),
		page:      intParam(q.Get("page")),
		perPage:   intParam(q.Get("per_page")),
	}
	if jq.page < 1 {
		jq.page = 1
	}
	if jq.perPage < 1 {
		jq.perPage = defaultPerPage
	}
	if jq.perPage > maxPerPage {
		jq.perPage = maxPerPage
	}

	if raw := q.Get("bbox"); raw != "" {
		box, err := spatial.ParseBBox(raw)
		if err != nil {
			return nil, err
		}
		jq.bbox = box
	}

	if q.Get("lat") != "" || q.Get("lon") != "" || q.Get("radius_km") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
		radius, errRad := strconv.ParseFloat(q.Get("radius_km"), 64)
		if errLat != nil || errLon != nil || errRad != nil || radius <= 0 {
			return nil, errBadRadius
		}
		jq.center = &model.Coordinates{Lat: lat, Lon: lon}
		jq.radiusKm = radius
	}

	criterion, err := spatial.ParseSortCriterion(q.Get("sort"))
	if err != nil {
		return nil, err
	}
	jq.sort = criterion

	return jq, nil
}

var errBadRadius = eris.New("lat, lon and a positive radius_km are all required for a radius search")

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jq, err := parseJobsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	var (
		jobs     []model.Job
		spatialQ = jq.bbox != nil || jq.center != nil
	)
	switch {
	case jq.center != nil:
		jobs, err = s.store.JobsNear(r.Context(), jq.center.Lat, jq.center.Lon, jq.radiusKm, store.MaxNearLimit)
	case jq.bbox != nil:
		jobs, err = s.store.JobsInBBox(r.Context(), *jq.bbox, store.MaxNearLimit)
	default:
		jobs, err = s.store.SearchJobs(r.Context(), store.Filter{
			What:      jq.what,
			City:      jq.city,
			SalaryMin: jq.salaryMin,
			SalaryMax: jq.salaryMax,
			Limit:     jq.perPage,
			Offset:    (jq.page - 1) * jq.perPage,
		})
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed", "try again later")
		return
	}

	if spatialQ {
		// The store's geography is a prefilter; the exact cut happens here.
		if jq.center != nil {
			jobs = spatial.FilterRadius(jobs, jq.center.Lat, jq.center.Lon, jq.radiusKm)
		} else {
			jobs = spatial.FilterBBox(jobs, *jq.bbox)
		}
		jobs = filterInMemory(jobs, jq)
		if jq.sort != "" {
			jobs = spatial.SortJobs(jobs, jq.sort)
		}
		jobs = paginate(jobs, jq.page, jq.perPage)
	} else if jq.sort != "" {
		jobs = spatial.SortJobs(jobs, jq.sort)
	}

	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  jobs,
		"count": len(jobs),
	})
}

// filterInMemory applies the text and salary constraints to a spatially
// pre-filtered set. The store already applied the geography.
func filterInMemory(jobs []model.Job, jq *jobsQuery) []model.Job {
	if jq.what == "" && jq.city == "" && jq.salaryMin == 0 && jq.salaryMax == 0 {
		return jobs
	}
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if jq.what != "" &&
			!containsFold(j.Title, jq.what) && !containsFold(j.Description, jq.what) {
			continue
		}
		if jq.city != "" && !containsFold(j.City, jq.city) {
			continue
		}
		if jq.salaryMin > 0 && (j.SalaryMax == nil || *j.SalaryMax < jq.salaryMin) {
			continue
		}
		if jq.salaryMax > 0 && (j.SalaryMin == nil || *j.SalaryMin > jq.salaryMax) {
			continue
		}
		out = append(out, j)
	}
	return out
}

func paginate(jobs []model.Job, page, perPage int) []model.Job {
	start := (page - 1) * perPage
	if start >= len(jobs) {
		return nil
	}
	end := start + perPage
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end]
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
