// Package ingest orchestrates the import pipeline: paged fetch from the
// upstream source, normalization, geocode gap-fill, and a single batch
// upsert into the store.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/model"
	"github.com/sells-group/jobatlas/internal/normalize"
	"github.com/sells-group/jobatlas/internal/source"
)

// Searcher is the upstream job source the pipeline pulls pages from.
type Searcher interface {
	Search(ctx context.Context, q source.Query) (*source.SearchResult, error)
}

// Resolver fills missing coordinates from a company/city pair.
type Resolver interface {
	Resolve(ctx context.Context, company, city string) (*model.Coordinates, error)
}

// Writer is the slice of the store the pipeline needs.
type Writer interface {
	UpsertJobs(ctx context.Context, jobs []model.Job) (int, error)
}

// Summary reports the outcome of one pipeline run.
type Summary struct {
	Imported int `json:"imported"`
}

// Importer runs the fetch → normalize → geocode → upsert pipeline.
type Importer struct {
	src      Searcher
	resolver Resolver
	store    Writer
	what     string
	where    string
}

// Option configures an Importer.
type Option func(*Importer)

// WithQuery sets the search keyword and location used for every page.
func WithQuery(what, where string) Option {
	return func(im *Importer) {
		im.what = what
		im.where = where
	}
}

// WithResolver enables geocode gap-fill for jobs lacking coordinates.
func WithResolver(r Resolver) Option {
	return func(im *Importer) { im.resolver = r }
}

// NewImporter wires the pipeline. The resolver is optional; without one,
// jobs missing coordinates are stored as-is.
func NewImporter(src Searcher, store Writer, opts ...Option) *Importer {
	im := &Importer{src: src, store: store}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run fetches the given pages sequentially, normalizes every record, fills
// coordinate gaps through the resolver, and batch-upserts the survivors.
// Pages are fetched one at a time to stay polite to the upstream API; any
// page fetch error aborts the whole run before anything is written.
func (im *Importer) Run(ctx context.Context, pages []int, perPage int) (Summary, error) {
	var raws []source.RawJob
	for _, page := range pages {
		res, err := im.src.Search(ctx, source.Query{
			What:    im.what,
			Where:   im.where,
			Page:    page,
			PerPage: perPage,
		})
		if err != nil {
			return Summary{}, eris.Wrapf(err, "ingest: fetch page %d", page)
		}
		raws = append(raws, res.Results...)
	}

	jobs := im.normalizeAll(raws)
	if im.resolver != nil {
		im.fillCoordinates(ctx, jobs)
	}
	jobs = dedupe(jobs)

	if len(jobs) == 0 {
		zap.L().Info("import produced no jobs", zap.Int("raw_records", len(raws)))
		return Summary{}, nil
	}

	written, err := im.store.UpsertJobs(ctx, jobs)
	if err != nil {
		return Summary{}, eris.Wrap(err, "ingest: upsert batch")
	}

	zap.L().Info("import complete",
		zap.Int("pages", len(pages)),
		zap.Int("raw_records", len(raws)),
		zap.Int("imported", written),
	)
	return Summary{Imported: written}, nil
}

func (im *Importer) normalizeAll(raws []source.RawJob) []model.Job {
	jobs := make([]model.Job, 0, len(raws))
	for _, raw := range raws {
		j := normalize.Normalize(raw)
		if j == nil {
			zap.L().Debug("dropped malformed record", zap.String("source_id", raw.ID))
			continue
		}
		jobs = append(jobs, *j)
	}
	return jobs
}

// fillCoordinates geocodes jobs that arrived without a location. Geocoding
// is a gap-filler only; provider-sourced coordinates are never overridden.
// A resolver miss or failure leaves the job without coordinates.
func (im *Importer) fillCoordinates(ctx context.Context, jobs []model.Job) {
	for i := range jobs {
		if jobs[i].HasCoordinates() {
			continue
		}
		coords, err := im.resolver.Resolve(ctx, jobs[i].Company, jobs[i].City)
		if err != nil {
			zap.L().Warn("geocode failed",
				zap.String("company", jobs[i].Company),
				zap.String("city", jobs[i].City),
				zap.Error(err),
			)
			continue
		}
		if coords != nil {
			jobs[i].SetCoordinates(*coords)
		}
	}
}

// dedupe collapses records sharing a uniq_hash within one batch; the later
// record wins, matching the store's merge-on-conflict semantics so a
// duplicate is overwritten, never double-counted.
func dedupe(jobs []model.Job) []model.Job {
	seen := make(map[string]int, len(jobs))
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if idx, ok := seen[j.UniqHash]; ok {
			out[idx] = j
			continue
		}
		seen[j.UniqHash] = len(out)
		out = append(out, j)
	}
	return out
}
