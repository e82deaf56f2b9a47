// Package spatial filters and sorts job sets by geography. All functions are
// pure: inputs are never mutated.
package spatial

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// BBox is a geographic bounding box in canonical minLon,minLat,maxLon,maxLat
// order.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BBox) Contains(lat, lon float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a comma-separated 4-number box. Input order is
// disambiguated heuristically: the canonical reading is minLon,minLat,
// maxLon,maxLat, but when a value in a latitude slot falls outside ±90 the
// canonical reading is impossible and the input is reinterpreted as
// lat-first (minLat,minLon,maxLat,maxLon) and swapped. The heuristic is
// inherently ambiguous for small-magnitude boxes near the equator and prime
// meridian, where both readings are numerically valid; such inputs are taken
// as canonical.
func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, eris.Errorf("spatial: bbox needs 4 comma-separated numbers, got %d", len(parts))
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: bbox value %q", p)
		}
		vals[i] = v
	}

	// Canonical reading puts latitudes in slots 1 and 3.
	latSlotsValid := math.Abs(vals[1]) <= 90 && math.Abs(vals[3]) <= 90
	if !latSlotsValid {
		// Must be lat-first; swap to canonical.
		vals[0], vals[1] = vals[1], vals[0]
		vals[2], vals[3] = vals[3], vals[2]
	}

	b := &BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return nil, eris.Errorf("spatial: inverted bbox %s", s)
	}
	if math.Abs(b.MinLat) > 90 || math.Abs(b.MaxLat) > 90 {
		return nil, eris.Errorf("spatial: bbox latitude out of range in %s", s)
	}
	return b, nil
}

// FilterBBox returns the jobs inside the box. Jobs without coordinates never
// match.
func FilterBBox(jobs []model.Job, box BBox) []model.Job {
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if !j.HasCoordinates() {
			continue
		}
		if box.Contains(*j.Lat, *j.Lon) {
			out = append(out, j)
		}
	}
	return out
}

// FilterRadius returns the jobs within radiusKm of the center, by haversine
// distance. Jobs without coordinates never match.
func FilterRadius(jobs []model.Job, centerLat, centerLon, radiusKm float64) []model.Job {
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if !j.HasCoordinates() {
			continue
		}
		if Haversine(centerLat, centerLon, *j.Lat, *j.Lon) <= radiusKm {
			out = append(out, j)
		}
	}
	return out
}

// Haversine returns the great-circle distance in kilometers between two
// points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const deg2rad = math.Pi / 180

	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg2rad)*math.Cos(lat2*deg2rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// SortCriterion selects a job ordering.
type SortCriterion string

const (
	SortSalaryDesc SortCriterion = "salary_desc"
	SortSalaryAsc  SortCriterion = "salary_asc"
	SortDateDesc   SortCriterion = "date_desc"
)

// ParseSortCriterion validates a sort parameter; empty means no sorting.
func ParseSortCriterion(s string) (SortCriterion, error) {
	switch SortCriterion(s) {
	case SortSalaryDesc, SortSalaryAsc, SortDateDesc:
		return SortCriterion(s), nil
	case "":
		return "", nil
	default:
		return "", eris.Errorf("spatial: unknown sort criterion %q", s)
	}
}

// SortJobs returns a sorted copy. Missing salaries count as 0 and a missing
// postedAt as the epoch.
func SortJobs(jobs []model.Job, criterion SortCriterion) []model.Job {
	out := make([]model.Job, len(jobs))
	copy(out, jobs)

	switch criterion {
	case SortSalaryDesc:
		sort.SliceStable(out, func(i, k int) bool {
			return salaryOrZero(out[i].SalaryMax) > salaryOrZero(out[k].SalaryMax)
		})
	case SortSalaryAsc:
		sort.SliceStable(out, func(i, k int) bool {
			return salaryOrZero(out[i].SalaryMin) < salaryOrZero(out[k].SalaryMin)
		})
	case SortDateDesc:
		sort.SliceStable(out, func(i, k int) bool {
			return postedOrEpoch(out[i].PostedAt).After(postedOrEpoch(out[k].PostedAt))
		})
	}
	return out
}

func salaryOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func postedOrEpoch(t *time.Time) time.Time {
	if t == nil {
		return time.Unix(0, 0).UTC()
	}
	return *t
}
