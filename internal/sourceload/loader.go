// Package sourceload loads the data of one catalog entry into the output
// directory, restricted to the run's time range and reference area.
//
// A load returns the artifact path, or an empty path when the entry has no
// data inside the requested restriction. Artifacts are written under a
// temporary name and renamed into place, so a failed load leaves nothing
// behind.
package sourceload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/vforwater/vforwater-loader/internal/catalog"
	"github.com/vforwater/vforwater-loader/internal/domain"
	"github.com/vforwater/vforwater-loader/internal/storage"
	"github.com/vforwater/vforwater-loader/internal/workerpool"
)

var (
	ErrUnsupportedSource = errors.New("unsupported datasource type")
	ErrNoDatasource      = errors.New("entry has no datasource")
	ErrBackendMissing    = errors.New("datasource backend not configured")
)

// Request is everything one load needs besides the pool.
type Request struct {
	Descriptor  domain.Descriptor
	TimeRange   *domain.TimeRange
	Area        *domain.Area
	CellTouches bool
}

// TimeseriesSource streams catalog-internal observations.
type TimeseriesSource interface {
	Timeseries(ctx context.Context, entryID int64, tr domain.TimeRange, fn func(catalog.Observation) error) error
}

type Options struct {
	// OutDir receives the artifacts, usually <out>/datasets.
	OutDir     string
	Files      storage.Store
	Objects    storage.Store
	Timeseries TimeseriesSource
	Logger     *slog.Logger
}

type Loader struct {
	outDir     string
	files      storage.Store
	objects    storage.Store
	timeseries TimeseriesSource
	logger     *slog.Logger
}

func New(opts Options) (*Loader, error) {
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, errors.New("output directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		outDir:     opts.OutDir,
		files:      opts.Files,
		objects:    opts.Objects,
		timeseries: opts.Timeseries,
		logger:     logger,
	}, nil
}

type sourceKind int

const (
	kindUnknown sourceKind = iota
	kindInternal
	kindLocal
	kindObject
)

func kindOf(typeName string) sourceKind {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case "internal", "timeseries":
		return kindInternal
	case "local", "file", "netcdf", "csv", "raster", "geotiff":
		return kindLocal
	case "s3", "minio":
		return kindObject
	default:
		return kindUnknown
	}
}

// Load writes the artifact for req.Descriptor and returns its path. An empty
// path with a nil error means there is no data for the request.
func (l *Loader) Load(ctx context.Context, pool *workerpool.Pool, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	desc := req.Descriptor
	ds := desc.Datasource
	if ds == nil {
		return "", ErrNoDatasource
	}
	logger := l.logger.With("dataset_id", desc.ID, "datasource_type", ds.Type)

	if !inArea(req) {
		logger.Debug("entry outside reference area")
		return "", nil
	}
	if !inTimeRange(req) {
		logger.Debug("entry outside time range")
		return "", nil
	}
	if err := os.MkdirAll(l.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	switch kindOf(ds.Type) {
	case kindInternal:
		if l.timeseries == nil {
			return "", fmt.Errorf("%w: timeseries", ErrBackendMissing)
		}
		return l.loadTimeseries(ctx, req)
	case kindLocal:
		if l.files == nil {
			return "", fmt.Errorf("%w: local data root", ErrBackendMissing)
		}
		return l.loadFiles(ctx, pool, l.files, req)
	case kindObject:
		if l.objects == nil {
			return "", fmt.Errorf("%w: object store", ErrBackendMissing)
		}
		return l.loadFiles(ctx, pool, l.objects, req)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, ds.Type)
	}
}

// inArea reports whether the entry may have data in the reference area.
// Entries without spatial information are always loaded.
func inArea(req Request) bool {
	if req.Area == nil {
		return true
	}
	if ext := req.Descriptor.Datasource.SpatialExtent; ext != nil {
		return req.Area.BBox.Intersects(*ext, req.CellTouches)
	}
	if loc := req.Descriptor.Location; loc != nil {
		return req.Area.BBox.Contains(*loc, req.CellTouches)
	}
	return true
}

func inTimeRange(req Request) bool {
	if req.TimeRange == nil {
		return true
	}
	ext := req.Descriptor.Datasource.TemporalExtent
	if ext == nil {
		return true
	}
	return req.TimeRange.Overlaps(*ext)
}
