// Package loader builds a Catalogue from a Source: list, filter by
// extension, fetch, decode and publish by basename.
package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cordoba-data/program-dashboard/internal/catalog"
	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/decode"
	"github.com/cordoba-data/program-dashboard/internal/history"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/source"
	"github.com/cordoba-data/program-dashboard/internal/telemetry"
)

// Progress is called after each file completes with the number of files
// done so far.
type Progress func(done, total int, path string)

// Recorder persists a finished run.
type Recorder interface {
	RecordRun(ctx context.Context, run *history.Run) error
}

// Loader builds catalogues from one source.
type Loader struct {
	src         source.Source
	log         *zap.Logger
	concurrency int
	metrics     *telemetry.Metrics
	recorder    Recorder
	progress    Progress
	now         func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithConcurrency bounds the number of parallel fetches.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option { return func(l *Loader) { l.metrics = m } }

func WithRecorder(r Recorder) Option { return func(l *Loader) { l.recorder = r } }

func WithProgress(p Progress) Option { return func(l *Loader) { l.progress = p } }

// WithClock replaces time.Now for load timestamps.
func WithClock(now func() time.Time) Option { return func(l *Loader) { l.now = now } }

// New creates a Loader.
func New(src source.Source, log *zap.Logger, opts ...Option) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loader{
		src:         src,
		log:         log.Named("loader"),
		concurrency: config.DefaultConcurrency,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

type fetched struct {
	path     string
	res      decode.Result
	fetchErr error
	decErr   error
	loadedAt time.Time
}

// Build lists the source, fetches every recognised file and publishes the
// non-empty ones in ascending path order. Per-file failures become warnings
// on the catalogue; a listing failure yields an empty catalogue with a
// diagnostic. The error is non-nil only when ctx is cancelled, in which case
// the partial catalogue is discarded.
func (l *Loader) Build(ctx context.Context) (*catalog.Catalogue, error) {
	start := time.Now()
	cat := catalog.New(uuid.New())
	log := l.log.With(zap.String("run_id", cat.RunID.String()), zap.String("source", l.src.Name()))

	all, err := l.src.ListTree(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.LogError(log, l.src.Name(), "list", err)
		cat.Warnf("list repository tree: %v", err)
		l.diagnose(ctx, cat)
		l.metrics.ObserveLoad(l.src.Name(), "list_error", time.Since(start))
		l.record(ctx, cat, start, 0)
		return cat, nil
	}

	var paths []string
	for _, p := range all {
		if decode.Recognised(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	results, err := l.fetchAll(ctx, paths)
	if err != nil {
		l.metrics.ObserveLoad(l.src.Name(), "cancelled", time.Since(start))
		return nil, err
	}

	for _, r := range results {
		kind, _ := decode.KindOf(r.path)
		switch {
		case r.fetchErr != nil:
			cat.Warnf("fetch %s: %v", r.path, r.fetchErr)
			l.metrics.ObserveFile(string(kind), telemetry.OutcomeFetchError)
		case r.decErr != nil:
			cat.Warnf("decode %s: %v", r.path, r.decErr)
			l.metrics.ObserveFile(string(kind), telemetry.OutcomeDecodeError)
		case r.res.Empty():
			log.Debug("skipping empty file", zap.String("path", r.path))
			l.metrics.ObserveFile(string(kind), telemetry.OutcomeEmpty)
		default:
			cat.Put(r.path, r.res, r.loadedAt)
			l.metrics.ObserveFile(string(kind), telemetry.OutcomeLoaded)
		}
	}

	logging.LogTransform(log, "load", len(paths), cat.Len(), time.Since(start))
	l.metrics.ObserveLoad(l.src.Name(), "ok", time.Since(start))
	l.record(ctx, cat, start, len(paths))
	return cat, nil
}

// fetchAll fetches and decodes paths with bounded concurrency. Results keep
// the order of paths.
func (l *Loader) fetchAll(ctx context.Context, paths []string) ([]fetched, error) {
	results := make([]fetched, len(paths))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			r := fetched{path: p}
			data, err := l.src.FetchFile(gctx, p)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				r.fetchErr = err
			} else {
				r.loadedAt = l.now()
				r.res, r.decErr = decode.Decode(p, data)
			}
			results[i] = r

			if l.progress != nil {
				mu.Lock()
				done++
				l.progress(done, len(paths), p)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// diagnose lists what the credentials can see after a listing failure.
func (l *Loader) diagnose(ctx context.Context, cat *catalog.Catalogue) {
	d, ok := l.src.(source.Diagnoser)
	if !ok {
		return
	}
	projects, err := d.AccessibleProjects(ctx)
	if err != nil {
		cat.Warnf("list accessible projects: %v", err)
		return
	}
	if len(projects) == 0 {
		cat.Warnf("the access token cannot see any project")
		return
	}
	for _, p := range projects {
		cat.Warnf("accessible project: %s (id %d)", p.PathWithNamespace, p.ID)
	}
}

func (l *Loader) record(ctx context.Context, cat *catalog.Catalogue, start time.Time, listed int) {
	if l.recorder == nil {
		return
	}
	run := &history.Run{
		ID:         cat.RunID,
		Source:     l.src.Name(),
		StartedAt:  start,
		FinishedAt: time.Now(),
		Listed:     listed,
		Loaded:     cat.Len(),
		Warnings:   cat.Warnings(),
	}
	for _, e := range cat.Entries() {
		run.Files = append(run.Files, history.File{
			Basename: e.Basename,
			Path:     e.Path,
			Kind:     string(e.Kind),
			Rows:     e.Rows,
			LoadedAt: e.LoadedAt,
		})
	}
	if err := l.recorder.RecordRun(ctx, run); err != nil {
		logging.LogError(l.log, l.src.Name(), "record run", fmt.Errorf("run %s: %w", run.ID, err))
	}
}
