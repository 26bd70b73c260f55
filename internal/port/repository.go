package port

import (
	"context"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	Find(ctx context.Context, id uuid.UUID) (domain.Account, error)
	// Debit atomically decreases the balance by amount unless that would make
	// it negative. It reports false when the floor check rejects the debit.
	Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)
}

type TransactionIDChecker interface {
	ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error)
}

// WithdrawalRepository transition methods report false when the stored status
// does not allow the requested transition.
type WithdrawalRepository interface {
	TransactionIDChecker
	Create(ctx context.Context, w domain.Withdrawal) (domain.Withdrawal, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Withdrawal, error)
	GetByTransactionID(ctx context.Context, transactionID string) (domain.Withdrawal, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, meta domain.Metadata) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, meta domain.Metadata) (bool, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]domain.Withdrawal, error)
}

type KeyDetailRepository interface {
	Create(ctx context.Context, withdrawalID uuid.UUID, keyType domain.KeyType, key, externalID string) (domain.KeyDetail, error)
	GetByWithdrawalID(ctx context.Context, withdrawalID uuid.UUID) (domain.KeyDetail, error)
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
