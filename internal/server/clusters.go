package server

import (
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/jobatlas/internal/cluster"
	"github.com/sells-group/jobatlas/internal/spatial"
	"github.com/sells-group/jobatlas/internal/store"
)

// handleClusters builds a cluster index over the jobs in the requested
// viewport and returns the clusters for the zoom level as GeoJSON, plus an
// index key the client passes back to expand a cluster.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	box, err := parseBBoxParam(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	zoom := intParam(q.Get("zoom"))

	jobs, err := s.store.JobsInBBox(r.Context(), *box, store.MaxNearLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed", "try again later")
		return
	}

	points := make([]cluster.Point, 0, len(jobs))
	for _, j := range jobs {
		if !j.HasCoordinates() {
			continue
		}
		points = append(points, cluster.Point{ID: j.ID, Lat: *j.Lat, Lon: *j.Lon})
	}

	idx := cluster.BuildIndex(points, cluster.DefaultOptions())
	key := s.indexes.Put(idx)

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, f := range idx.Clusters(*box, zoom) {
		props := map[string]any{
			"count":   f.Count,
			"cluster": f.IsCluster(),
		}
		if f.IsCluster() {
			props["clusterId"] = f.ID
		} else {
			props["jobId"] = f.PointID
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(f.ID),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{f.Lon, f.Lat}),
			Properties: props,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":      key,
		"clusters": fc,
	})
}

// handleExpand resolves a cluster from a previous clusters call back to its
// member job ids.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key := q.Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "invalid query", "key is required")
		return
	}
	id, err := strconv.Atoi(q.Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", "id must be a cluster id")
		return
	}

	idx, ok := s.indexes.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "index not found", "re-query clusters and retry with the fresh key")
		return
	}

	ids := idx.Expand(id)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobIds": ids})
}

func parseBBoxParam(raw string) (*spatial.BBox, error) {
	if raw == "" {
		return nil, eris.New("bbox is required")
	}
	return spatial.ParseBBox(raw)
}
