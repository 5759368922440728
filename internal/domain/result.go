package domain

import (
	"errors"
	"time"
)

// Outcome is the terminal classification of one requested identifier.
type Outcome string

const (
	OutcomeLoaded  Outcome = "loaded"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// ItemState tracks one identifier through a run:
//
//	resolving -> resolution_failed
//	          -> loading -> loaded | skipped | load_failed
//
// Identifiers not yet resolved when the run is canceled, and loads that
// stopped because of the cancellation, end as canceled.
type ItemState string

const (
	ItemResolving        ItemState = "resolving"
	ItemResolutionFailed ItemState = "resolution_failed"
	ItemLoading          ItemState = "loading"
	ItemLoaded           ItemState = "loaded"
	ItemSkipped          ItemState = "skipped"
	ItemLoadFailed       ItemState = "load_failed"
	ItemCanceled         ItemState = "canceled"
)

func (s ItemState) Terminal() bool {
	switch s {
	case ItemResolutionFailed, ItemLoaded, ItemSkipped, ItemLoadFailed, ItemCanceled:
		return true
	default:
		return false
	}
}

// ReasonNoData is the skip reason for a loader that found nothing to load.
const ReasonNoData = "no data"

// LoadResult is the outcome for exactly one requested identifier.
type LoadResult struct {
	DatasetID    int64
	Outcome      Outcome
	State        ItemState
	Descriptor   *Descriptor
	ArtifactPath string
	Reason       string
	Err          error
}

func Loaded(desc Descriptor, artifactPath string) LoadResult {
	return LoadResult{
		DatasetID:    desc.ID,
		Outcome:      OutcomeLoaded,
		State:        ItemLoaded,
		Descriptor:   &desc,
		ArtifactPath: artifactPath,
	}
}

func Skipped(id int64, reason string) LoadResult {
	return LoadResult{
		DatasetID: id,
		Outcome:   OutcomeSkipped,
		State:     ItemSkipped,
		Reason:    reason,
	}
}

// Failed records a failure in the given terminal state. A nil err is
// replaced so that Failed results always carry an error.
func Failed(id int64, state ItemState, err error) LoadResult {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return LoadResult{
		DatasetID: id,
		Outcome:   OutcomeFailed,
		State:     state,
		Reason:    err.Error(),
		Err:       err,
	}
}

// MappingEntry pairs a descriptor with the artifact loaded for it.
type MappingEntry struct {
	Descriptor   Descriptor
	ArtifactPath string
}

// Stats are the run-level counters. Counters only grow during a run.
type Stats struct {
	Attempted  int
	Loaded     int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *Stats) Record(r LoadResult) {
	s.Attempted++
	switch r.Outcome {
	case OutcomeLoaded:
		s.Loaded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

func (s Stats) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
