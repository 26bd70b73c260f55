package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Metadata map[string]any

// WithdrawalRequest is the caller input for a single withdrawal.
// WithdrawalID is set only when the scheduler re-enters for an existing record.
type WithdrawalRequest struct {
	AccountID    uuid.UUID
	Method       Method
	Amount       decimal.Decimal
	Key          *KeyDescriptor
	ScheduleFor  *time.Time
	Metadata     Metadata
	WithdrawalID *uuid.UUID
}

func (r WithdrawalRequest) Scheduled() bool {
	return r.ScheduleFor != nil
}

func (r WithdrawalRequest) Reentry() bool {
	return r.WithdrawalID != nil
}

type Account struct {
	ID               uuid.UUID
	Name             string
	Balance          decimal.Decimal
	AvailableBalance decimal.Decimal
	AsOf             time.Time
}

func (a Account) Valid() bool {
	return a.AvailableBalance.LessThanOrEqual(a.Balance)
}

type Balances struct {
	Current   decimal.Decimal
	Available decimal.Decimal
}

type KeyDetail struct {
	ID           uuid.UUID
	WithdrawalID uuid.UUID
	ExternalID   string
	Type         KeyType
	Key          string
	CreatedAt    time.Time
}

type Withdrawal struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	TransactionID string
	Method        Method
	Amount        decimal.Decimal
	Scheduled     bool
	ScheduledFor  *time.Time
	Status        WithdrawalStatus
	Done          bool
	Error         bool
	ErrorReason   string
	Metadata      Metadata
	CreatedAt     time.Time
	UpdatedAt     time.Time

	KeyDetail *KeyDetail
}

// NewWithdrawal builds the record for a freshly validated request.
func NewWithdrawal(req WithdrawalRequest, transactionID string, now time.Time) Withdrawal {
	status := StatusNew
	var scheduledFor *time.Time
	if req.ScheduleFor != nil {
		status = StatusPending
		at := req.ScheduleFor.UTC()
		scheduledFor = &at
	}
	return Withdrawal{
		ID:            uuid.New(),
		AccountID:     req.AccountID,
		TransactionID: transactionID,
		Method:        req.Method,
		Amount:        req.Amount.Round(2),
		Scheduled:     scheduledFor != nil,
		ScheduledFor:  scheduledFor,
		Status:        status,
		Metadata:      maps.Clone(req.Metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DisplayStatus folds pending+scheduledFor into the scheduled view.
func (w Withdrawal) DisplayStatus() WithdrawalStatus {
	if w.Status == StatusPending && w.ScheduledFor != nil {
		return StatusScheduled
	}
	return w.Status
}

func (w Withdrawal) DueAt(now time.Time) bool {
	return w.ScheduledFor == nil || !w.ScheduledFor.After(now)
}
