package port

import (
	"context"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
)

type WithdrawalService interface {
	Execute(ctx context.Context, req domain.WithdrawalRequest) domain.Result
	Get(ctx context.Context, id uuid.UUID) domain.Result
	Cancel(ctx context.Context, id uuid.UUID) domain.Result
}
