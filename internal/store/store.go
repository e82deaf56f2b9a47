// Package store persists normalized jobs and answers the spatial and
// text queries the API serves. Two backends are provided: SQLite for
// single-node deployments and Postgres for shared ones.
package store

import (
	"context"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/spatial"
)

const (
	// DefaultNearLimit caps proximity results when the caller does not
	// ask for a limit.
	DefaultNearLimit = 100
	// MaxNearLimit is the hard ceiling on any single query's result set.
	MaxNearLimit = 1000
)

// Filter narrows a SearchJobs call. Zero values mean "no constraint".
type Filter struct {
	What      string
	City      string
	SalaryMin int
	SalaryMax int
	Limit     int
	Offset    int
}

// Store is the persistence contract the importer and API server share.
type Store interface {
	// UpsertJobs writes a batch of jobs, merging on uniq_hash so that a
	// later import of the same posting overwrites the earlier row. It
	// returns the number of rows written.
	UpsertJobs(ctx context.Context, jobs []model.Job) (int, error)

	// SearchJobs returns jobs matching the filter, newest first.
	SearchJobs(ctx context.Context, f Filter) ([]model.Job, error)

	// JobsNear returns jobs with coordinates within radiusKm of the
	// given point, ordered by distance then recency.
	JobsNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]model.Job, error)

	// JobsInBBox returns jobs whose coordinates fall inside the box.
	JobsInBBox(ctx context.Context, box spatial.BBox, limit int) ([]model.Job, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultNearLimit
	}
	if limit > MaxNearLimit {
		return MaxNearLimit
	}
	return limit
}
