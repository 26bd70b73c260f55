package domain

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorCode string

const (
	CodeNone               ErrorCode = ""
	CodeAccountNotFound    ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeWithdrawalNotFound ErrorCode = "WITHDRAWAL_NOT_FOUND"
	CodeInsufficientFunds  ErrorCode = "INSUFFICIENT_BALANCE"
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeStateConflict      ErrorCode = "STATE_CONFLICT"
	CodeDebitFailed        ErrorCode = "DEBIT_FAILED"
	CodeSchedulingFailed   ErrorCode = "SCHEDULING_FAILED"
	CodeProcessingError    ErrorCode = "PROCESSING_ERROR"
)

// Violation codes reported by the validators.
const (
	ViolationRequired            = "required"
	ViolationInvalidFormat       = "invalid_format"
	ViolationInvalidChecksum     = "invalid_checksum"
	ViolationInvalidLength       = "invalid_length"
	ViolationRepeatedDigits      = "repeated_digits"
	ViolationUnsupported         = "unsupported"
	ViolationInsufficientBalance = "insufficient_balance"
	ViolationMinimumAmount       = "minimum_amount"
	ViolationAccountInactive     = "account_inactive"
	ViolationScheduleInPast      = "schedule_in_past"
	ViolationInvalidAmount       = "invalid_amount"
)

type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ResultData struct {
	WithdrawalID  uuid.UUID        `json:"withdrawal_id"`
	TransactionID string           `json:"transaction_id"`
	Status        WithdrawalStatus `json:"status"`
	Method        Method           `json:"method"`
	Amount        decimal.Decimal  `json:"amount"`
	MaskedKey     string           `json:"masked_key,omitempty"`
	KeyType       KeyType          `json:"key_type,omitempty"`
	Scheduled     bool             `json:"scheduled"`
	ScheduledFor  *time.Time       `json:"scheduled_for,omitempty"`
	Balances      *Balances        `json:"balances,omitempty"`
	ErrorReason   string           `json:"error_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Result is what the orchestrator hands back to every caller. It is never
// built with a partially failed state: either Success or Code is set.
type Result struct {
	Success    bool        `json:"success"`
	Created    bool        `json:"-"`
	Message    string      `json:"message"`
	Code       ErrorCode   `json:"code,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
	Data       *ResultData `json:"data,omitempty"`
}

func Succeeded(message string, created bool, data *ResultData) Result {
	return Result{Success: true, Created: created, Message: message, Data: data}
}

func Failed(code ErrorCode, message string, violations ...Violation) Result {
	return Result{Code: code, Message: message, Violations: violations}
}

func (r Result) WithData(data *ResultData) Result {
	r.Data = data
	return r
}

func (r Result) HTTPStatus() int {
	if r.Success {
		if r.Created {
			return http.StatusCreated
		}
		return http.StatusOK
	}
	switch r.Code {
	case CodeAccountNotFound, CodeWithdrawalNotFound:
		return http.StatusNotFound
	case CodeInsufficientFunds, CodeValidation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
