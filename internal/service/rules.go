package service

import (
	"fmt"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/pixkey"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinimumAmount is the smallest amount that can be withdrawn.
var MinimumAmount = decimal.New(1, -2)

// ValidateRequest runs the structural and key-format checks that need no I/O.
func ValidateRequest(req domain.WithdrawalRequest, now time.Time) []domain.Violation {
	var v []domain.Violation

	if req.AccountID == uuid.Nil {
		v = append(v, domain.Violation{Field: "account_id", Code: domain.ViolationRequired, Message: "account id is required"})
	}
	if !req.Method.Valid() {
		v = append(v, domain.Violation{Field: "method", Code: domain.ViolationUnsupported,
			Message: fmt.Sprintf("unsupported withdrawal method %q", req.Method)})
	}

	switch {
	case !req.Amount.IsPositive():
		v = append(v, domain.Violation{Field: "amount", Code: domain.ViolationInvalidAmount, Message: "amount must be positive"})
	case !req.Amount.Equal(req.Amount.Round(2)):
		v = append(v, domain.Violation{Field: "amount", Code: domain.ViolationInvalidAmount, Message: "amount must have at most 2 decimal places"})
	}

	if req.Method.RequiresKey() {
		switch {
		case req.Key == nil:
			v = append(v, domain.Violation{Field: "key", Code: domain.ViolationRequired, Message: "pix key is required"})
		case !req.Key.Type.Valid():
			v = append(v, domain.Violation{Field: "key_type", Code: domain.ViolationUnsupported,
				Message: fmt.Sprintf("unsupported key type %q", req.Key.Type)})
		default:
			v = append(v, pixkey.Validate(req.Key.Type, req.Key.Key)...)
		}
	}

	if req.ScheduleFor != nil && !req.ScheduleFor.After(now) {
		v = append(v, domain.Violation{Field: "schedule", Code: domain.ViolationScheduleInPast,
			Message: "schedule must be in the future"})
	}
	return v
}

// ValidateBusinessRules checks the request against the account snapshot.
func ValidateBusinessRules(account domain.Account, req domain.WithdrawalRequest) []domain.Violation {
	var v []domain.Violation

	if account.AvailableBalance.LessThan(req.Amount) {
		v = append(v, domain.Violation{
			Field: "amount",
			Code:  domain.ViolationInsufficientBalance,
			Message: fmt.Sprintf("insufficient balance: available %s, requested %s",
				account.AvailableBalance.StringFixed(2), req.Amount.StringFixed(2)),
		})
	}
	if req.Amount.LessThan(MinimumAmount) {
		v = append(v, domain.Violation{
			Field:   "amount",
			Code:    domain.ViolationMinimumAmount,
			Message: fmt.Sprintf("amount must be at least %s", MinimumAmount.StringFixed(2)),
		})
	}
	if !AccountActive(account) {
		v = append(v, domain.Violation{Field: "account_id", Code: domain.ViolationAccountInactive, Message: "account is not active"})
	}
	return v
}

// AccountActive is the account eligibility hook. Every account is eligible
// until accounts carry a status.
func AccountActive(domain.Account) bool {
	return true
}

func PostWithdrawalBalances(account domain.Account, amount decimal.Decimal) domain.Balances {
	return domain.Balances{
		Current:   account.Balance.Sub(amount).Round(2),
		Available: account.AvailableBalance.Sub(amount).Round(2),
	}
}

func ShouldNotify(req domain.WithdrawalRequest) bool {
	return req.Method.RequiresKey() && req.Key != nil && req.Key.Type.CanDeliver()
}

func hasViolation(violations []domain.Violation, code string) bool {
	for _, v := range violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
