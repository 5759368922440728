package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimeRange is a closed interval. A zero Start or End leaves that side open.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("end %s is before start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Overlaps reports whether both ranges share at least one instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	if !r.End.IsZero() && !o.Start.IsZero() && r.End.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !r.Start.IsZero() && o.End.Before(r.Start) {
		return false
	}
	return true
}

// RunRequest is the validated input of one run. It is built once at
// startup and never mutated afterwards.
type RunRequest struct {
	DatasetIDs []int64
	TimeRange  *TimeRange
	// ReferenceArea holds the GeoJSON document as submitted, nil when absent.
	ReferenceArea json.RawMessage
	CellTouches   bool
}

func (r RunRequest) HasReferenceArea() bool {
	return len(r.ReferenceArea) > 0
}

func (r RunRequest) Validate() error {
	seen := make(map[int64]struct{}, len(r.DatasetIDs))
	for _, id := range r.DatasetIDs {
		if id <= 0 {
			return fmt.Errorf("dataset id must be positive: %d", id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate dataset id: %d", id)
		}
		seen[id] = struct{}{}
	}
	if r.TimeRange != nil {
		if err := r.TimeRange.Validate(); err != nil {
			return fmt.Errorf("time range: %w", err)
		}
	}
	if r.HasReferenceArea() && !json.Valid(r.ReferenceArea) {
		return errors.New("reference area is not valid json")
	}
	return nil
}
