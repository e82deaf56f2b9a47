package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobatlas/internal/ingest"
)

type fakeRunner struct {
	calls atomic.Int32
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, pages []int, perPage int) (ingest.Summary, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return ingest.Summary{Imported: 1}, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(&fakeRunner{}, "not a cron spec", []int{1}, 50)
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerRunsOnTick(t *testing.T) {
	// cron's @every floor is one second.
	runner := &fakeRunner{}
	s := New(runner, "@every 1s", []int{1}, 50)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := New(runner, "@every 1s", []int{1}, 50)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	// Let two further ticks fire while the first run blocks; they must be
	// dropped, not queued behind it.
	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2500 * time.Millisecond)
	close(runner.block)
	s.Stop()

	assert.LessOrEqual(t, runner.calls.Load(), int32(2),
		"ticks during an in-flight run must be skipped, not stacked")
}
