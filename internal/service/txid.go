package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/port"

	"github.com/google/uuid"
)

const (
	TransactionIDPrefix = "PIX"
	maxTxIDAttempts     = 10
)

type TransactionIDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

type TxIDGenerator struct {
	checker port.TransactionIDChecker
	random  func() string
	now     func() time.Time
}

func NewTxIDGenerator(checker port.TransactionIDChecker) *TxIDGenerator {
	return &TxIDGenerator{
		checker: checker,
		random:  randomPart,
		now:     time.Now,
	}
}

// Generate returns PREFIX_RANDOM_UNIXTIME, regenerating on collision.
func (g *TxIDGenerator) Generate(ctx context.Context) (string, error) {
	for range maxTxIDAttempts {
		candidate := TransactionIDPrefix + "_" + g.random() + "_" + strconv.FormatInt(g.now().Unix(), 10)

		exists, err := g.checker.ExistsByTransactionID(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check transaction id: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", domain.ErrTransactionIDExhausted
}

// randomPart yields 16 upper-case hex characters, skipping the uuid version nibble.
func randomPart() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(hex[:12] + hex[13:17])
}
