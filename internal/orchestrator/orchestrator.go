// Package orchestrator runs one batch load: it resolves every requested
// dataset, hands the load to the shared worker pool and collects exactly one
// result per identifier. A failing dataset is recorded and the batch
// continues.
//
// Only reference area materialization and the pool lifecycle can fail a
// run. The pool is created after the reference area is ready and shut down
// on every exit path before Run returns.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vforwater/vforwater-loader/internal/catalog"
	"github.com/vforwater/vforwater-loader/internal/domain"
	"github.com/vforwater/vforwater-loader/internal/sourceload"
	"github.com/vforwater/vforwater-loader/internal/workerpool"
)

var (
	ErrReferenceArea = errors.New("reference area")
	ErrPool          = errors.New("worker pool")
)

// ReasonDuplicate is the skip reason for an identifier requested twice.
const ReasonDuplicate = "duplicate identifier"

// Loader loads one resolved dataset. An empty path with a nil error means
// there is no data for the request.
type Loader interface {
	Load(ctx context.Context, pool *workerpool.Pool, req sourceload.Request) (string, error)
}

type AreaMaterializer interface {
	Materialize(ctx context.Context, raw json.RawMessage) (domain.Area, error)
}

// Observer is told about every identifier that reached a terminal state.
// done counts the results recorded so far, including r.
type Observer interface {
	ItemCompleted(done, total int, r domain.LoadResult)
}

type ObserverFunc func(done, total int, r domain.LoadResult)

func (f ObserverFunc) ItemCompleted(done, total int, r domain.LoadResult) {
	f(done, total, r)
}

type Options struct {
	Resolver     catalog.Resolver
	Loader       Loader
	Materializer AreaMaterializer
	// Workers is the pool size. Zero uses the host's available parallelism.
	Workers int
	// Eager resolves and submits every dataset before awaiting any load.
	// Results keep input order either way.
	Eager bool
	// ShutdownTimeout bounds the wait for in-flight loads at the end of a
	// run. Zero waits until they finish.
	ShutdownTimeout time.Duration
	Observers       []Observer
	Logger          *slog.Logger
}

// Result is the state of a finished run. Mapping holds the loaded datasets,
// Results one entry per requested identifier, both in input order.
type Result struct {
	Mapping []domain.MappingEntry
	Results []domain.LoadResult
	Stats   domain.Stats
}

type Orchestrator struct {
	resolver        catalog.Resolver
	loader          Loader
	materializer    AreaMaterializer
	workers         int
	eager           bool
	shutdownTimeout time.Duration
	observers       []Observer
	logger          *slog.Logger

	newPool func(size int) (*workerpool.Pool, error)
	now     func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("loader is required")
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", opts.Workers)
	}
	workers := opts.Workers
	if workers == 0 {
		workers = workerpool.DefaultSize()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		resolver:        opts.Resolver,
		loader:          opts.Loader,
		materializer:    opts.Materializer,
		workers:         workers,
		eager:           opts.Eager,
		shutdownTimeout: opts.ShutdownTimeout,
		observers:       append([]Observer(nil), opts.Observers...),
		logger:          logger,
		newPool:         workerpool.New,
		now:             time.Now,
	}, nil
}

// Run loads every dataset of req. Per-dataset failures are part of the
// Result and never returned as error. When ctx is canceled the datasets not
// yet loaded are recorded as failed and the accumulated Result is returned
// together with the context error.
func (o *Orchestrator) Run(ctx context.Context, req domain.RunRequest) (res Result, err error) {
	res = Result{
		Mapping: []domain.MappingEntry{},
		Results: make([]domain.LoadResult, 0, len(req.DatasetIDs)),
	}
	res.Stats.StartedAt = o.now()
	if len(req.DatasetIDs) == 0 {
		o.logger.Info("no datasets requested")
		res.Stats.FinishedAt = o.now()
		return res, nil
	}

	var area *domain.Area
	if req.HasReferenceArea() {
		a, err := o.materialize(ctx, req.ReferenceArea)
		if err != nil {
			res.Stats.FinishedAt = o.now()
			return res, err
		}
		area = &a
	}

	pool, err := o.newPool(o.workers)
	if err != nil {
		res.Stats.FinishedAt = o.now()
		return res, fmt.Errorf("%w: create: %w", ErrPool, err)
	}
	o.logger.Debug("START", "workers", pool.Size(), "datasets", len(req.DatasetIDs), "eager", o.eager)
	defer func() {
		if serr := o.shutdown(ctx, pool); serr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrPool, serr))
		}
		res.Stats.FinishedAt = o.now()
		o.logger.Info("STOP",
			"attempted", res.Stats.Attempted,
			"loaded", res.Stats.Loaded,
			"skipped", res.Stats.Skipped,
			"failed", res.Stats.Failed,
			"duration", res.Stats.Duration().String(),
		)
	}()

	total := len(req.DatasetIDs)
	record := func(r domain.LoadResult) {
		res.Results = append(res.Results, r)
		res.Stats.Record(r)
		if r.Outcome == domain.OutcomeLoaded {
			res.Mapping = append(res.Mapping, domain.MappingEntry{Descriptor: *r.Descriptor, ArtifactPath: r.ArtifactPath})
		}
		o.logResult(r)
		for _, obs := range o.observers {
			obs.ItemCompleted(len(res.Results), total, r)
		}
	}

	if cerr := o.process(ctx, pool, req, area, record); cerr != nil {
		return res, fmt.Errorf("run interrupted: %w", cerr)
	}
	return res, nil
}

func (o *Orchestrator) materialize(ctx context.Context, raw json.RawMessage) (domain.Area, error) {
	if o.materializer == nil {
		return domain.Area{}, fmt.Errorf("%w: no materializer configured", ErrReferenceArea)
	}
	area, err := o.materializer.Materialize(ctx, raw)
	if err != nil {
		return domain.Area{}, fmt.Errorf("%w: %w", ErrReferenceArea, err)
	}
	o.logger.Debug("reference area materialized", "path", area.Path)
	return area, nil
}

func (o *Orchestrator) shutdown(ctx context.Context, pool *workerpool.Pool) error {
	ctx, cancel := o.detached(ctx)
	defer cancel()
	return pool.Shutdown(ctx)
}

// detached outlives the cancellation of ctx and is bounded by the shutdown
// timeout when one is set.
func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if o.shutdownTimeout > 0 {
		return context.WithTimeout(ctx, o.shutdownTimeout)
	}
	return context.WithCancel(ctx)
}

// dispatched is one identifier between submission and collection. result
// is set when the identifier reached a terminal state without a load.
type dispatched struct {
	id     int64
	desc   domain.Descriptor
	future *workerpool.Future[string]
	result *domain.LoadResult
}

// process walks the identifiers in order. It returns the context error when
// the run was canceled.
func (o *Orchestrator) process(ctx context.Context, pool *workerpool.Pool, req domain.RunRequest, area *domain.Area, record func(domain.LoadResult)) error {
	ids := req.DatasetIDs
	seen := make(map[int64]struct{}, len(ids))
	var queued []dispatched
	flush := func() {
		for _, d := range queued {
			record(o.collect(ctx, d))
		}
		queued = queued[:0]
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			flush()
			for _, rest := range ids[i:] {
				record(domain.Failed(rest, domain.ItemCanceled, err))
			}
			return err
		}
		if _, dup := seen[id]; dup {
			d := dispatched{id: id}
			r := domain.Skipped(id, ReasonDuplicate)
			d.result = &r
			if o.eager {
				queued = append(queued, d)
			} else {
				record(r)
			}
			continue
		}
		seen[id] = struct{}{}

		d := o.dispatch(ctx, pool, req, area, id)
		if o.eager {
			queued = append(queued, d)
			continue
		}
		record(o.collect(ctx, d))
	}
	flush()
	return ctx.Err()
}

// dispatch resolves id on the calling goroutine and submits its load.
func (o *Orchestrator) dispatch(ctx context.Context, pool *workerpool.Pool, req domain.RunRequest, area *domain.Area, id int64) dispatched {
	d := dispatched{id: id}
	o.transition(id, domain.ItemResolving)
	desc, err := o.resolve(ctx, id)
	if err != nil {
		r := domain.Failed(id, domain.ItemResolutionFailed, fmt.Errorf("resolve: %w", err))
		d.result = &r
		return d
	}
	d.desc = desc

	lr := sourceload.Request{
		Descriptor:  desc,
		TimeRange:   req.TimeRange,
		Area:        area,
		CellTouches: req.CellTouches,
	}
	f, err := workerpool.Submit(ctx, pool, func(ctx context.Context) (string, error) {
		return o.loader.Load(ctx, pool, lr)
	})
	if err != nil {
		r := domain.Failed(id, domain.ItemLoadFailed, fmt.Errorf("submit load: %w", err))
		r.Descriptor = &desc
		d.result = &r
		return d
	}
	d.future = f
	o.transition(id, domain.ItemLoading)
	return d
}

// collect awaits the load of d and classifies its outcome.
func (o *Orchestrator) collect(ctx context.Context, d dispatched) domain.LoadResult {
	if d.result != nil {
		return *d.result
	}
	path, err := o.await(ctx, d)
	if err != nil {
		state := domain.ItemLoadFailed
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			state = domain.ItemCanceled
		}
		r := domain.Failed(d.id, state, fmt.Errorf("load: %w", err))
		r.Descriptor = &d.desc
		return r
	}
	if path == "" {
		r := domain.Skipped(d.id, domain.ReasonNoData)
		r.Descriptor = &d.desc
		return r
	}
	return domain.Loaded(d.desc, path)
}

// await returns the outcome of the load of d. A load already handed to the
// pool keeps running after ctx is done and may still commit its artifact,
// so its real outcome is awaited past cancellation.
func (o *Orchestrator) await(ctx context.Context, d dispatched) (string, error) {
	path, err := d.future.Wait(ctx)
	if err == nil || ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
		return path, err
	}
	select {
	case <-d.future.Done():
	default:
		o.logger.Debug("awaiting in-flight load after cancellation", "dataset_id", d.id)
	}
	dctx, cancel := o.detached(ctx)
	defer cancel()
	return d.future.Wait(dctx)
}

func (o *Orchestrator) resolve(ctx context.Context, id int64) (desc domain.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()
	desc, err = o.resolver.Resolve(ctx, id)
	if err != nil {
		return domain.Descriptor{}, err
	}
	if desc.ID == 0 {
		desc.ID = id
	}
	return desc, nil
}

func (o *Orchestrator) transition(id int64, state domain.ItemState) {
	o.logger.Debug("dataset state", "dataset_id", id, "state", string(state))
}

func (o *Orchestrator) logResult(r domain.LoadResult) {
	switch r.Outcome {
	case domain.OutcomeLoaded:
		o.logger.Info("dataset loaded", "dataset_id", r.DatasetID, "path", r.ArtifactPath)
	case domain.OutcomeSkipped:
		o.logger.Warn("dataset skipped", "dataset_id", r.DatasetID, "reason", r.Reason)
	case domain.OutcomeFailed:
		o.logger.Error("dataset failed", "dataset_id", r.DatasetID, "state", string(r.State), "error", r.Err)
	}
}
