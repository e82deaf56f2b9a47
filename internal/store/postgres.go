package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/db"
	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/spatial"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	uniq_hash   TEXT PRIMARY KEY,
	id          TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	source      TEXT NOT NULL,
	title       TEXT NOT NULL,
	company     TEXT NOT NULL,
	city        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	remote      BOOLEAN NOT NULL DEFAULT FALSE,
	salary_min  INTEGER,
	salary_max  INTEGER,
	lat         DOUBLE PRECISION,
	lon         DOUBLE PRECISION,
	posted_at   TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_city ON jobs(city);
CREATE INDEX IF NOT EXISTS idx_jobs_coords ON jobs(lat, lon);
CREATE INDEX IF NOT EXISTS idx_jobs_posted_at ON jobs(posted_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var jobUpsertConfig = db.UpsertConfig{
	Table: "jobs",
	Columns: []string{
		"uniq_hash", "id", "source_id", "source", "title", "company", "city",
		"description", "url", "remote", "salary_min", "salary_max",
		"lat", "lon", "posted_at",
	},
	ConflictKeys: []string{"uniq_hash"},
}

func (s *PostgresStore) UpsertJobs(ctx context.Context, jobs []model.Job) (int, error) {
	rows := make([][]any, len(jobs))
	for i, j := range jobs {
		rows[i] = []any{
			j.UniqHash, j.ID, j.SourceID, j.Source, j.Title, j.Company, j.City,
			j.Description, j.URL, j.Remote, j.SalaryMin, j.SalaryMax,
			j.Lat, j.Lon, j.PostedAt,
		}
	}
	return db.Upsert(ctx, s.pool, jobUpsertConfig, rows)
}

const postgresJobColumns = `uniq_hash, id, source_id, source, title, company, city,
	description, url, remote, salary_min, salary_max, lat, lon, posted_at`

func (s *PostgresStore) SearchJobs(ctx context.Context, f Filter) ([]model.Job, error) {
	query := `SELECT ` + postgresJobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if f.What != "" {
		p := arg(f.What)
		query += ` AND (title ILIKE '%' || ` + p + ` || '%' OR description ILIKE '%' || ` + p + ` || '%')`
	}
	if f.City != "" {
		query += ` AND city ILIKE '%' || ` + arg(f.City) + ` || '%'`
	}
	if f.SalaryMin > 0 {
		query += ` AND salary_max >= ` + arg(f.SalaryMin)
	}
	if f.SalaryMax > 0 {
		query += ` AND salary_min <= ` + arg(f.SalaryMax)
	}
	query += ` ORDER BY posted_at DESC NULLS LAST, uniq_hash LIMIT ` + arg(clampLimit(f.Limit))
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search jobs")
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

// jobsNearQuery ranks rows by great-circle distance computed in SQL so the
// database applies the radius cut and the limit before anything crosses the
// wire.
const jobsNearQuery = `
SELECT ` + postgresJobColumns + ` FROM (
	SELECT *, (` + haversineExpr + `) AS distance_km
	FROM jobs
	WHERE lat IS NOT NULL AND lon IS NOT NULL
) ranked
WHERE distance_km <= $3
ORDER BY distance_km ASC, posted_at DESC NULLS LAST
LIMIT $4`

const haversineExpr = `6371 * acos(least(1.0,
	cos(radians($1)) * cos(radians(lat)) * cos(radians(lon) - radians($2))
	+ sin(radians($1)) * sin(radians(lat))))`

func (s *PostgresStore) JobsNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, jobsNearQuery, lat, lon, radiusKm, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: jobs near")
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

const jobsInBBoxQuery = `
SELECT ` + postgresJobColumns + ` FROM jobs
WHERE lat IS NOT NULL AND lon IS NOT NULL
AND lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
ORDER BY posted_at DESC NULLS LAST, uniq_hash
LIMIT $5`

func (s *PostgresStore) JobsInBBox(ctx context.Context, box spatial.BBox, limit int) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, jobsInBBoxQuery,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: jobs in bbox")
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

func scanPgJobs(rows pgx.Rows) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(
			&j.UniqHash, &j.ID, &j.SourceID, &j.Source, &j.Title, &j.Company, &j.City,
			&j.Description, &j.URL, &j.Remote, &j.SalaryMin, &j.SalaryMax,
			&j.Lat, &j.Lon, &j.PostedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
