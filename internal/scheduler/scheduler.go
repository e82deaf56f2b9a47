// Package scheduler wires up the cron job that periodically runs the import
// pipeline while the server is up.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/ingest"
)

// Runner is the slice of the importer the scheduler drives.
type Runner interface {
	Run(ctx context.Context, pages []int, perPage int) (ingest.Summary, error)
}

// Scheduler wraps robfig/cron around scheduled import runs.
type Scheduler struct {
	cron     *cron.Cron
	importer Runner
	spec     string
	pages    []int
	perPage  int
	running  atomic.Bool
}

// New creates a Scheduler firing on the given cron spec, e.g. "@every 6h".
func New(importer Runner, spec string, pages []int, perPage int) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		importer: importer,
		spec:     spec,
		pages:    pages,
		perPage:  perPage,
	}
}

// Start registers the job and starts the cron loop. A tick that fires while
// the previous run is still in flight is skipped rather than stacked.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runImport(ctx)
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: bad cron spec %q", s.spec)
	}

	s.cron.Start()
	zap.L().Info("import scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop shuts the scheduler down and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("import scheduler stopped")
}

func (s *Scheduler) runImport(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		zap.L().Warn("skipping scheduled import, previous run still in flight")
		return
	}
	defer s.running.Store(false)

	summary, err := s.importer.Run(ctx, s.pages, s.perPage)
	if err != nil {
		zap.L().Error("scheduled import failed", zap.Error(err))
		return
	}
	zap.L().Info("scheduled import complete", zap.Int("imported", summary.Imported))
}
