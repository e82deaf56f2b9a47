package store

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/spatial"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// The write path is a single importer; one connection keeps the WAL
	// writer uncontended and makes in-memory databases usable in tests.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	remote      INTEGER NOT NULL DEFAULT 0,
	salary_min  INTEGER,
	salary_max  INTEGER,
	lat         REAL,
	lon         REAL,
	posted_at   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_city ON jobs(city);
CREATE INDEX IF NOT EXISTS idx_jobs_coords ON jobs(lat, lon);
CREATE INDEX IF NOT EXISTS idx_jobs_posted_at ON jobs(posted_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsert = `
INSERT INTO jobs (
	uniq_hash, id, source_id, source, title, company, city,
	description, url, remote, salary_min, salary_max, lat, lon, posted_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uniq_hash) DO UPDATE SET
	id = excluded.id,
	source_id = excluded.source_id,
	source = excluded.source,
	title = excluded.title,
	company = excluded.company,
	city = excluded.city,
	description = excluded.description,
	url = excluded.url,
	remote = excluded.remote,
	salary_min = excluded.salary_min,
	salary_max = excluded.salary_max,
	lat = excluded.lat,
	lon = excluded.lon,
	posted_at = excluded.posted_at,
	updated_at = datetime('now')
`

func (s *SQLiteStore) UpsertJobs(ctx context.Context, jobs []model.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	written := 0
	for _, j := range jobs {
		if _, err := stmt.ExecContext(ctx,
			j.UniqHash, j.ID, j.SourceID, j.Source, j.Title, j.Company, j.City,
			j.Description, j.URL, j.Remote, j.SalaryMin, j.SalaryMax,
			j.Lat, j.Lon, formatPostedAt(j.PostedAt),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert job %s", j.UniqHash)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return written, nil
}

const sqliteJobColumns = `uniq_hash, id, source_id, source, title, company, city,
	description, url, remote, salary_min, salary_max, lat, lon, posted_at`

func (s *SQLiteStore) SearchJobs(ctx context.Context, f Filter) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if f.What != "" {
		query += ` AND (title LIKE '%' || ? || '%' COLLATE NOCASE OR description LIKE '%' || ? || '%' COLLATE NOCASE)`
		args = append(args, f.What, f.What)
	}
	if f.City != "" {
		query += ` AND city LIKE '%' || ? || '%' COLLATE NOCASE`
		args = append(args, f.City)
	}
	if f.SalaryMin > 0 {
		query += ` AND salary_max >= ?`
		args = append(args, f.SalaryMin)
	}
	if f.SalaryMax > 0 {
		query += ` AND salary_min <= ?`
		args = append(args, f.SalaryMax)
	}
	query += ` ORDER BY posted_at DESC, uniq_hash LIMIT ?`
	args = append(args, clampLimit(f.Limit))

	if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStore) JobsNear(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]model.Job, error) {
	limit = clampLimit(limit)

	// Prefilter candidates with a degree bounding box around the point,
	// then rank by exact haversine distance in Go. SQLite has no trig
	// functions compiled in, so the distance math stays on this side.
	latDelta := radiusKm / 111.0
	lonDelta := latDelta / math.Max(math.Cos(lat*math.Pi/180), 0.01)

	query := `SELECT ` + sqliteJobColumns + ` FROM jobs
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`
	rows, err := s.db.QueryContext(ctx, query,
		lat-latDelta, lat+latDelta, lon-lonDelta, lon+lonDelta)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: jobs near")
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		job  model.Job
		dist float64
	}
	var within []ranked
	for _, j := range jobs {
		d := spatial.Haversine(lat, lon, *j.Lat, *j.Lon)
		if d <= radiusKm {
			within = append(within, ranked{job: j, dist: d})
		}
	}
	sort.SliceStable(within, func(i, k int) bool {
		if within[i].dist != within[k].dist {
			return within[i].dist < within[k].dist
		}
		ti, tk := postedOrEpoch(within[i].job), postedOrEpoch(within[k].job)
		return ti.After(tk)
	})

	if len(within) > limit {
		within = within[:limit]
	}
	out := make([]model.Job, len(within))
	for i, r := range within {
		out[i] = r.job
	}
	return out, nil
}

func (s *SQLiteStore) JobsInBBox(ctx context.Context, box spatial.BBox, limit int) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs
		WHERE lat IS NOT NULL AND lon IS NOT NULL
		AND lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		ORDER BY posted_at DESC, uniq_hash LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: jobs in bbox")
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		var (
			j         model.Job
			salaryMin sql.NullInt64
			salaryMax sql.NullInt64
			latCol    sql.NullFloat64
			lonCol    sql.NullFloat64
			postedAt  sql.NullString
		)
		if err := rows.Scan(
			&j.UniqHash, &j.ID, &j.SourceID, &j.Source, &j.Title, &j.Company, &j.City,
			&j.Description, &j.URL, &j.Remote, &salaryMin, &salaryMax,
			&latCol, &lonCol, &postedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		if salaryMin.Valid {
			v := int(salaryMin.Int64)
			j.SalaryMin = &v
		}
		if salaryMax.Valid {
			v := int(salaryMax.Int64)
			j.SalaryMax = &v
		}
		if latCol.Valid && lonCol.Valid {
			j.SetCoordinates(model.Coordinates{Lat: latCol.Float64, Lon: lonCol.Float64})
		}
		if postedAt.Valid && postedAt.String != "" {
			if t, err := time.Parse(time.RFC3339, postedAt.String); err == nil {
				j.PostedAt = &t
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func formatPostedAt(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func postedOrEpoch(j model.Job) time.Time {
	if j.PostedAt == nil {
		return time.Time{}
	}
	return *j.PostedAt
}
