package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

// Observation is one row of a catalog-internal timeseries.
type Observation struct {
	Time  time.Time
	Value float64
}

type QueryDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TimeseriesStore streams data held in the catalog's own timeseries table.
type TimeseriesStore struct {
	db QueryDB
}

func NewTimeseriesStore(db QueryDB) *TimeseriesStore {
	if db == nil {
		return nil
	}
	return &TimeseriesStore{db: db}
}

// Timeseries calls fn for every observation of entryID inside tr, in time
// order. An error from fn stops the iteration and is returned.
func (s *TimeseriesStore) Timeseries(ctx context.Context, entryID int64, tr domain.TimeRange, fn func(Observation) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("timeseries store not initialized")
	}
	query, args, err := buildTimeseriesQuery(entryID, tr)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query timeseries %d: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var obs Observation
		var value sql.NullFloat64
		if err := rows.Scan(&obs.Time, &value); err != nil {
			return fmt.Errorf("scan timeseries %d: %w", entryID, err)
		}
		if !value.Valid {
			continue
		}
		obs.Time = obs.Time.UTC()
		obs.Value = value.Float64
		if err := fn(obs); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("query timeseries %d: %w", entryID, err)
	}
	return nil
}

func buildTimeseriesQuery(entryID int64, tr domain.TimeRange) (string, []any, error) {
	if entryID <= 0 {
		return "", nil, errors.New("entry id is required")
	}
	if err := tr.Validate(); err != nil {
		return "", nil, err
	}
	args := []any{entryID}
	clauses := []string{"entry_id = $1"}
	if !tr.Start.IsZero() {
		args = append(args, tr.Start.UTC())
		clauses = append(clauses, fmt.Sprintf("tstamp >= $%d", len(args)))
	}
	if !tr.End.IsZero() {
		args = append(args, tr.End.UTC())
		clauses = append(clauses, fmt.Sprintf("tstamp <= $%d", len(args)))
	}
	query := "SELECT tstamp, value FROM timeseries WHERE " + strings.Join(clauses, " AND ") + " ORDER BY tstamp ASC"
	return query, args, nil
}
