// Package cluster groups nearby points into hierarchical clusters for map
// display. An Index is built once per job set; cluster queries per viewport
// and zoom are cheap and expansion recovers the full leaf set of any
// cluster.
package cluster

import (
	"math"

	"github.com/sells-group/jobatlas/internal/spatial"
)

// Options tunes index construction.
type Options struct {
	MinZoom int     // coarsest zoom clusters are built for
	MaxZoom int     // finest zoom; below it every point is a leaf
	Radius  float64 // cluster radius in pixels at each zoom
	Extent  float64 // tile extent in pixels
}

// DefaultOptions mirror common web-map tiling parameters.
func DefaultOptions() Options {
	return Options{MinZoom: 0, MaxZoom: 16, Radius: 60, Extent: 256}
}

// Point is one clusterable input, a job id with its location.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// Feature is one rendered marker: either a leaf (PointID set, Count 1) or an
// aggregate (Count > 1, centroid position, expandable by ID).
type Feature struct {
	ID      int     `json:"id"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Count   int     `json:"count"`
	PointID string  `json:"pointId,omitempty"`
}

// IsCluster reports whether the feature aggregates more than one point.
func (f Feature) IsCluster() bool { return f.Count > 1 }

// node is one entry of a zoom level: a leaf point or a cluster of nodes from
// the next finer level.
type node struct {
	id       int
	x, y     float64 // web-mercator world coordinates in [0,1)
	count    int
	children []*node
	pointID  string // set on leaves only
}

// Index holds the per-zoom cluster hierarchy for one static point set.
type Index struct {
	opts   Options
	levels map[int][]*node // zoom -> nodes visible at that zoom
	byID   map[int]*node
}

// BuildIndex clusters the points greedily per zoom level, from the finest
// zoom up. Points are compared in pixel space, so the grouping radius tracks
// the on-screen marker density at each zoom.
func BuildIndex(points []Point, opts Options) *Index {
	if opts.MaxZoom < opts.MinZoom {
		opts.MinZoom, opts.MaxZoom = opts.MaxZoom, opts.MinZoom
	}
	if opts.Radius <= 0 {
		opts.Radius = DefaultOptions().Radius
	}
	if opts.Extent <= 0 {
		opts.Extent = DefaultOptions().Extent
	}

	idx := &Index{
		opts:   opts,
		levels: make(map[int][]*node, opts.MaxZoom-opts.MinZoom+1),
		byID:   make(map[int]*node),
	}

	nextID := 0
	newNode := func(n *node) *node {
		n.id = nextID
		nextID++
		idx.byID[n.id] = n
		return n
	}

	// Finest level: every point is a leaf.
	current := make([]*node, 0, len(points))
	for _, p := range points {
		x, y := project(p.Lon, p.Lat)
		current = append(current, newNode(&node{x: x, y: y, count: 1, pointID: p.ID}))
	}
	idx.levels[opts.MaxZoom] = current

	for zoom := opts.MaxZoom - 1; zoom >= opts.MinZoom; zoom-- {
		current = clusterLevel(current, zoom, opts, newNode)
		idx.levels[zoom] = current
	}

	return idx
}

// clusterLevel merges nodes whose pixel distance at the given zoom is within
// the radius, greedily in input order, producing the next coarser level.
func clusterLevel(nodes []*node, zoom int, opts Options, newNode func(*node) *node) []*node {
	// World size in pixels at this zoom.
	worldPx := opts.Extent * math.Exp2(float64(zoom))
	r := opts.Radius / worldPx

	out := make([]*node, 0, len(nodes))
	used := make([]bool, len(nodes))

	for i, n := range nodes {
		if used[i] {
			continue
		}
		used[i] = true

		var members []*node
		sumX, sumY := n.x*float64(n.count), n.y*float64(n.count)
		total := n.count

		for k := i + 1; k < len(nodes); k++ {
			if used[k] {
				continue
			}
			m := nodes[k]
			if dist(n.x, n.y, m.x, m.y) <= r {
				used[k] = true
				members = append(members, m)
				sumX += m.x * float64(m.count)
				sumY += m.y * float64(m.count)
				total += m.count
			}
		}

		if members == nil {
			// Nothing merged; the node carries up unchanged.
			out = append(out, n)
			continue
		}

		members = append([]*node{n}, members...)
		out = append(out, newNode(&node{
			x:        sumX / float64(total),
			y:        sumY / float64(total),
			count:    total,
			children: members,
		}))
	}
	return out
}

// Clusters returns the features visible in the box at the given zoom. Zoom
// is clamped to the built range.
func (idx *Index) Clusters(box spatial.BBox, zoom int) []Feature {
	if zoom < idx.opts.MinZoom {
		zoom = idx.opts.MinZoom
	}
	if zoom > idx.opts.MaxZoom {
		zoom = idx.opts.MaxZoom
	}

	var out []Feature
	for _, n := range idx.levels[zoom] {
		lon, lat := unproject(n.x, n.y)
		if !box.Contains(lat, lon) {
			continue
		}
		out = append(out, Feature{
			ID:      n.id,
			Lat:     lat,
			Lon:     lon,
			Count:   n.count,
			PointID: n.pointID,
		})
	}
	return out
}

// Expand resolves a cluster id back to its full member leaf set, across any
// aggregation depth. Unknown ids yield nil.
func (idx *Index) Expand(id int) []string {
	n, ok := idx.byID[id]
	if !ok {
		return nil
	}
	var leaves []string
	collectLeaves(n, &leaves)
	return leaves
}

func collectLeaves(n *node, out *[]string) {
	if n.pointID != "" {
		*out = append(*out, n.pointID)
		return
	}
	for _, child := range n.children {
		collectLeaves(child, out)
	}
}

// project maps lon/lat to web-mercator world coordinates in [0,1).
func project(lon, lat float64) (x, y float64) {
	x = lon/360 + 0.5

	sin := math.Sin(lat * math.Pi / 180)
	y = 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	// Clamp the poles.
	y = math.Min(1, math.Max(0, y))
	return x, y
}

// unproject is the inverse of project.
func unproject(x, y float64) (lon, lat float64) {
	lon = (x - 0.5) * 360
	y2 := (0.5 - y) * 4 * math.Pi
	lat = math.Atan(math.Sinh(y2/2)) * 180 / math.Pi
	return lon, lat
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx, dy := x1-x2, y1-y2
	return math.Sqrt(dx*dx + dy*dy)
}
