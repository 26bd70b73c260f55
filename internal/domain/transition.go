package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Transition describes one lifecycle step requested on a stored withdrawal.
type Transition struct {
	To       WithdrawalStatus
	Reason   string
	Metadata Metadata
	At       time.Time
}

// ApplyTransition returns the withdrawal as it looks after t, leaving w untouched.
// The second return lists incoming metadata keys that were dropped because
// the record already holds them.
func ApplyTransition(w Withdrawal, t Transition) (Withdrawal, []string, error) {
	if !w.Status.CanTransitionTo(t.To) {
		return w, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Status, t.To)
	}
	if t.To == StatusFailed && strings.TrimSpace(t.Reason) == "" {
		return w, nil, ErrFailureReasonRequired
	}

	next := w
	next.Status = t.To
	next.UpdatedAt = t.At

	switch t.To {
	case StatusCompleted:
		next.Done = true
		next.Error = false
		next.ErrorReason = ""
	case StatusFailed:
		next.Error = true
		next.ErrorReason = t.Reason
	}

	var dropped []string
	next.Metadata, dropped = MergeMetadata(w.Metadata, t.Metadata)
	return next, dropped, nil
}

// MergeMetadata merges incoming into a copy of existing. Keys already present
// in existing keep their value; the colliding incoming keys are returned sorted.
func MergeMetadata(existing, incoming Metadata) (Metadata, []string) {
	merged := maps.Clone(existing)
	if merged == nil {
		merged = Metadata{}
	}
	var dropped []string
	for k, v := range incoming {
		if _, ok := merged[k]; ok {
			dropped = append(dropped, k)
			continue
		}
		merged[k] = v
	}
	slices.Sort(dropped)
	return merged, dropped
}
