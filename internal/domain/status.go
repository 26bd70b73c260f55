package domain

import "fmt"

type WithdrawalStatus string

const (
	StatusNew        WithdrawalStatus = "new"
	StatusPending    WithdrawalStatus = "pending"
	StatusProcessing WithdrawalStatus = "processing"
	StatusCompleted  WithdrawalStatus = "completed"
	StatusFailed     WithdrawalStatus = "failed"
	StatusCancelled  WithdrawalStatus = "cancelled"
)

// StatusScheduled is never stored. It is the display name of a pending
// withdrawal that carries a scheduled instant.
const StatusScheduled WithdrawalStatus = "scheduled"

var AllStatuses = [...]WithdrawalStatus{
	StatusNew,
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

func ParseStatus(s string) (WithdrawalStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown withdrawal status %q", s)
}

func (s WithdrawalStatus) String() string {
	return string(s)
}

func (s WithdrawalStatus) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusPending:
		return "Pending"
	case StatusScheduled:
		return "Scheduled"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case StatusNew:
		return next == StatusPending || next == StatusProcessing || next == StatusCancelled
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed, StatusCancelled:
		return false
	}
	return false
}

func (s WithdrawalStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SourcesOf lists every status from which next can be reached.
func SourcesOf(next WithdrawalStatus) []WithdrawalStatus {
	var from []WithdrawalStatus
	for _, st := range AllStatuses {
		if st.CanTransitionTo(next) {
			from = append(from, st)
		}
	}
	return from
}
