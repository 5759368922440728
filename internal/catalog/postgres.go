package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

const entryQuery = `SELECT
	e.id,
	e.uuid::text,
	e.title,
	e.version,
	v.name,
	v.symbol,
	u.symbol,
	ST_X(e.location),
	ST_Y(e.location),
	d.id,
	d.type_id,
	d.path,
	d.encoding,
	d.args,
	ts.observation_start,
	ts.observation_end,
	ST_XMin(ss.extent::box2d),
	ST_YMin(ss.extent::box2d),
	ST_XMax(ss.extent::box2d),
	ST_YMax(ss.extent::box2d)
FROM entries e
LEFT JOIN variables v ON v.id = e.variable_id
LEFT JOIN units u ON u.id = v.unit_id
LEFT JOIN datasources d ON d.id = e.datasource_id
LEFT JOIN temporal_scales ts ON ts.id = d.temporal_scale_id
LEFT JOIN spatial_scales ss ON ss.id = d.spatial_scale_id
WHERE e.id = $1`

const datasourceTypeQuery = `SELECT name FROM datasource_types WHERE id = $1`

type rowScanner interface {
	Scan(dest ...any) error
}

type DB interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	queryRow func(ctx context.Context, query string, args ...any) rowScanner
	types    *lru.Cache[int64, string]
}

// DefaultTypeCacheSize bounds the datasource type cache.
const DefaultTypeCacheSize = 64

func NewStore(db DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("catalog database is required")
	}
	return newStore(func(ctx context.Context, query string, args ...any) rowScanner {
		return db.QueryRowContext(ctx, query, args...)
	})
}

func newStore(queryRow func(ctx context.Context, query string, args ...any) rowScanner) (*Store, error) {
	cache, err := lru.New[int64, string](DefaultTypeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("datasource type cache: %w", err)
	}
	return &Store{queryRow: queryRow, types: cache}, nil
}

func (s *Store) Resolve(ctx context.Context, id int64) (domain.Descriptor, error) {
	if s == nil || s.queryRow == nil {
		return domain.Descriptor{}, fmt.Errorf("catalog store not initialized")
	}
	if id <= 0 {
		return domain.Descriptor{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
	}

	var row entryRow
	if err := s.queryRow(ctx, entryQuery, id).Scan(row.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Descriptor{}, fmt.Errorf("entry %d: %w", id, ErrNotFound)
		}
		return domain.Descriptor{}, fmt.Errorf("query entry %d: %w", id, err)
	}

	desc, err := row.descriptor()
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("entry %d: %w", id, err)
	}
	if desc.Datasource != nil && row.typeID.Valid {
		name, err := s.datasourceType(ctx, row.typeID.Int64)
		if err != nil {
			return domain.Descriptor{}, fmt.Errorf("entry %d: %w", id, err)
		}
		desc.Datasource.Type = name
	}
	return desc, nil
}

func (s *Store) datasourceType(ctx context.Context, typeID int64) (string, error) {
	if name, ok := s.types.Get(typeID); ok {
		return name, nil
	}
	var name string
	if err := s.queryRow(ctx, datasourceTypeQuery, typeID).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("datasource type %d not found", typeID)
		}
		return "", fmt.Errorf("query datasource type %d: %w", typeID, err)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	s.types.Add(typeID, name)
	return name, nil
}

type entryRow struct {
	id               int64
	uuid             sql.NullString
	title            sql.NullString
	version          sql.NullInt64
	variableName     sql.NullString
	variableSymbol   sql.NullString
	unitSymbol       sql.NullString
	locX, locY       sql.NullFloat64
	datasourceID     sql.NullInt64
	typeID           sql.NullInt64
	path             sql.NullString
	encoding         sql.NullString
	args             sql.NullString
	obsStart, obsEnd sql.NullTime
	minX, minY       sql.NullFloat64
	maxX, maxY       sql.NullFloat64
}

func (r *entryRow) dest() []any {
	return []any{
		&r.id, &r.uuid, &r.title, &r.version,
		&r.variableName, &r.variableSymbol, &r.unitSymbol,
		&r.locX, &r.locY,
		&r.datasourceID, &r.typeID, &r.path, &r.encoding, &r.args,
		&r.obsStart, &r.obsEnd,
		&r.minX, &r.minY, &r.maxX, &r.maxY,
	}
}

func (r entryRow) descriptor() (domain.Descriptor, error) {
	desc := domain.Descriptor{
		ID:      r.id,
		Title:   strings.TrimSpace(r.title.String),
		Version: int(r.version.Int64),
		Variable: domain.Variable{
			Name:   strings.TrimSpace(r.variableName.String),
			Symbol: strings.TrimSpace(r.variableSymbol.String),
			Unit:   strings.TrimSpace(r.unitSymbol.String),
		},
	}
	if r.uuid.Valid && strings.TrimSpace(r.uuid.String) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(r.uuid.String))
		if err != nil {
			return domain.Descriptor{}, fmt.Errorf("parse uuid: %w", err)
		}
		desc.UUID = parsed.String()
	}
	if r.locX.Valid && r.locY.Valid {
		desc.Location = &domain.Point{X: r.locX.Float64, Y: r.locY.Float64}
	}
	if !r.datasourceID.Valid {
		return desc, nil
	}

	ds := &domain.Datasource{
		ID:       r.datasourceID.Int64,
		Path:     strings.TrimSpace(r.path.String),
		Encoding: strings.TrimSpace(r.encoding.String),
	}
	if r.args.Valid && strings.TrimSpace(r.args.String) != "" {
		var args map[string]any
		if err := json.Unmarshal([]byte(r.args.String), &args); err != nil {
			return domain.Descriptor{}, fmt.Errorf("decode datasource args: %w", err)
		}
		ds.Args = args
	}
	if r.obsStart.Valid || r.obsEnd.Valid {
		tr := domain.TimeRange{}
		if r.obsStart.Valid {
			tr.Start = r.obsStart.Time.UTC()
		}
		if r.obsEnd.Valid {
			tr.End = r.obsEnd.Time.UTC()
		}
		ds.TemporalExtent = &tr
	}
	if r.minX.Valid && r.minY.Valid && r.maxX.Valid && r.maxY.Valid {
		ds.SpatialExtent = &domain.BBox{MinX: r.minX.Float64, MinY: r.minY.Float64, MaxX: r.maxX.Float64, MaxY: r.maxY.Float64}
	}
	desc.Datasource = ds
	return desc, nil
}
