package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vforwater/vforwater-loader/internal/catalog"
	"github.com/vforwater/vforwater-loader/internal/domain"
	"github.com/vforwater/vforwater-loader/internal/orchestrator"
	"github.com/vforwater/vforwater-loader/internal/params"
	"github.com/vforwater/vforwater-loader/internal/platform/env"
	"github.com/vforwater/vforwater-loader/internal/platform/objectstore"
	"github.com/vforwater/vforwater-loader/internal/platform/postgres"
	"github.com/vforwater/vforwater-loader/internal/platform/runid"
	"github.com/vforwater/vforwater-loader/internal/progress"
	"github.com/vforwater/vforwater-loader/internal/refarea"
	"github.com/vforwater/vforwater-loader/internal/report"
	"github.com/vforwater/vforwater-loader/internal/sourceload"
	"github.com/vforwater/vforwater-loader/internal/storage"
	"github.com/vforwater/vforwater-loader/internal/workerpool"
)

const (
	toolName    = "vforwater_loader"
	displayName = "vforwater-loader"
	version     = "0.4.0"
)

const (
	exitOK          = 0
	exitGeneral     = 1
	exitConfig      = 2
	exitCatalog     = 3
	exitRefArea     = 4
	exitPool        = 5
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := env.LoadDotenv(); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid .env file", "error", err)
		return exitConfig
	}
	cfg, err := configFromEnv()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid config", "error", err)
		return exitConfig
	}

	stderr := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	runID := runid.New()
	logger := slog.New(stderr).With("run_id", runID)

	rep, err := report.Open(filepath.Join(cfg.OutDir, report.FileName), logger)
	if err != nil {
		logger.Error("report unavailable", "error", err)
		return exitGeneral
	}
	defer func() { _ = rep.Close() }()
	runLogger := slog.New(report.NewFanoutHandler(
		stderr,
		slog.NewTextHandler(rep, &slog.HandlerOptions{Level: cfg.LogLevel}),
	)).With("run_id", runID)
	// Every exit from here on prints the processing log.
	finish := func(code int) int {
		contents, err := rep.Contents()
		if err != nil {
			logger.Error("read report", "path", rep.Path(), "error", err)
			return code
		}
		fmt.Fprint(os.Stdout, contents)
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = runid.WithContext(ctx, runID)

	req, err := params.LoadFile(cfg.ParamFile, cfg.ToolName)
	if err != nil {
		runLogger.Error("invalid parameters", "path", cfg.ParamFile, "error", err)
		return finish(exitConfig)
	}
	rep.WriteHeader(newHeader(cfg, runID, req))

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		runLogger.Error("catalog unavailable", "database", cfg.Database.Redacted(), "error", err)
		return finish(exitCatalog)
	}
	defer func() { _ = db.Close() }()

	workers := cfg.Workers
	if workers == 0 {
		workers = workerpool.DefaultSize()
	}
	prog := progress.NewReporter(progress.Options{
		Total:   len(req.DatasetIDs),
		Workers: workers,
		Output:  os.Stderr,
	})

	orch, closeStores, err := build(ctx, cfg, db, workers, runLogger, prog)
	if err != nil {
		runLogger.Error("startup failed", "error", err)
		return finish(exitGeneral)
	}
	defer closeStores()

	runLogger.Info("##TOOL START - Vforwater Loader", "version", version)
	runLogger.Info("start loading data sources", "datasets", len(req.DatasetIDs), "workers", workers)
	prog.Start()
	res, runErr := orch.Run(ctx, req)
	prog.Stop()

	code := exitCode(runErr)
	if runErr != nil {
		runLogger.Error("run failed", "error", runErr)
	}

	m := report.BuildManifest(runID, cfg.OutDir, res.Mapping, res.Results, res.Stats)
	for _, e := range m.Errors() {
		runLogger.Warn("artifact not described in file mapping", "dataset_id", e.DatasetID, "path", e.ArtifactPath, "error", e.Error)
	}
	if err := report.WriteManifest(filepath.Join(cfg.OutDir, report.ManifestFileName), m); err != nil {
		runLogger.Error("write file mapping", "error", err)
		if code == exitOK {
			code = exitGeneral
		}
	} else {
		runLogger.Info("file mapping written",
			"path", filepath.Join(cfg.OutDir, report.ManifestFileName),
			"datasets", len(m.Entries),
			"size", humanize.IBytes(uint64(m.TotalSize())),
		)
	}

	runLogger.Info("total runtime", "seconds", fmt.Sprintf("%.2f", res.Stats.Duration().Seconds()))
	runLogger.Info("##TOOL FINISH - Vforwater Loader")
	rep.WriteSummary(res.Stats, res.Results)
	return finish(code)
}

// build wires the catalog, data backends and loader into an orchestrator.
// On success the returned func closes the data backends.
func build(ctx context.Context, cfg config, db catalogDB, workers int, logger *slog.Logger, observers ...orchestrator.Observer) (_ *orchestrator.Orchestrator, closeFn func(), err error) {
	var closers []func() error
	closeFn = func() {
		for _, c := range closers {
			_ = c()
		}
	}
	defer func() {
		if err != nil {
			closeFn()
			closeFn = nil
		}
	}()

	resolver, err := catalog.NewStore(db)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: %w", err)
	}

	opts := sourceload.Options{
		OutDir:     filepath.Join(cfg.OutDir, "datasets"),
		Timeseries: catalog.NewTimeseriesStore(db),
		Logger:     logger,
	}
	var files *storage.BlobStore
	switch {
	case cfg.DataURL != "":
		files, err = storage.OpenURL(ctx, cfg.DataURL)
	case cfg.DataRoot != "":
		files, err = storage.OpenLocal(cfg.DataRoot)
	}
	if err != nil {
		return nil, nil, err
	}
	if files != nil {
		closers = append(closers, files.Close)
		opts.Files = files
	}
	if cfg.Objects.Enabled() {
		client, err := objectstore.NewMinIOClient(cfg.Objects)
		if err != nil {
			return nil, nil, fmt.Errorf("object store client: %w", err)
		}
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = objectstore.CheckBucket(checkCtx, client, cfg.Objects)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("object store: %w", err)
		}
		objects, err := storage.NewMinioStore(client, cfg.Objects.Bucket)
		if err != nil {
			return nil, nil, err
		}
		opts.Objects = objects
	}

	loader, err := sourceload.New(opts)
	if err != nil {
		return nil, nil, err
	}
	materializer, err := refarea.NewMaterializer(cfg.OutDir)
	if err != nil {
		return nil, nil, err
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Resolver:        resolver,
		Loader:          loader,
		Materializer:    materializer,
		Workers:         workers,
		Eager:           cfg.Eager,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Observers:       observers,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, closeFn, nil
}

// catalogDB is what the catalog stores need from *sql.DB.
type catalogDB interface {
	catalog.DB
	catalog.QueryDB
}

func newHeader(cfg config, runID string, req domain.RunRequest) report.Header {
	h := report.Header{
		Tool:               displayName,
		Version:            version,
		RunID:              runID,
		ReferenceArea:      req.HasReferenceArea(),
		CellTouches:        req.CellTouches,
		DatasetIDs:         req.DatasetIDs,
		DatabaseConnection: cfg.Database.Explicit,
		DatabaseURI:        cfg.Database.Redacted(),
	}
	if tr := req.TimeRange; tr != nil {
		if !tr.Start.IsZero() {
			start := tr.Start
			h.StartDate = &start
		}
		if !tr.End.IsZero() {
			end := tr.End
			h.EndDate = &end
		}
	}
	return h
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, orchestrator.ErrPool):
		return exitPool
	case errors.Is(err, orchestrator.ErrReferenceArea):
		return exitRefArea
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitInterrupted
	default:
		return exitGeneral
	}
}
