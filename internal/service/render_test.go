package service

import (
	"testing"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	w := domain.Withdrawal{
		TransactionID: "PIX_ABC_1",
		Amount:        decimal.RequireFromString("1234.5"),
		UpdatedAt:     time.Date(2025, 3, 10, 9, 30, 0, 0, time.FixedZone("BRT", -3*3600)),
	}

	msg, err := NewRenderer().Render(domain.Account{Name: "Ana"}, w, "an***@example.com")

	require.NoError(t, err)
	assert.Equal(t, "Withdrawal PIX_ABC_1 completed", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Ana,")
	assert.Contains(t, msg.Body, "R$ 1234.50")
	assert.Contains(t, msg.Body, "Mon, 10 Mar 2025 12:30:00 UTC")
	assert.Contains(t, msg.Body, "Destination key: an***@example.com")
}
