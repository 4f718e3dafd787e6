package services

import (
	"testing"
	"time"

	"atmcore/config"
	"atmcore/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func newTestLimitService() *LimitService {
	return NewLimitService(config.LimitsConfig{
		PerTransaction:   500,
		DailyWithdrawal:  1000,
		DailyTransaction: 2000,
		TimeZone:         "UTC",
	})
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestLimitService_Check(t *testing.T) {
	s := newTestLimitService()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		txType      models.TransactionType
		withdrawals float64
		total       float64
		amount      float64
		reason      string
	}{
		{"within limits", models.TransactionTypeWithdrawal, 0, 0, 500, ""},
		{"per transaction", models.TransactionTypeWithdrawal, 0, 0, 500.01, ReasonPerTransactionLimit},
		{"daily withdrawal", models.TransactionTypeWithdrawal, 800, 800, 300, ReasonDailyWithdrawalLimit},
		{"daily withdrawal exact", models.TransactionTypeWithdrawal, 500, 500, 500, ""},
		{"deposit ignores withdrawal total", models.TransactionTypeDeposit, 1000, 1000, 400, ""},
		{"daily transaction", models.TransactionTypeDeposit, 0, 1800, 300, ReasonDailyTransactionLimit},
		{"deposit per transaction", models.TransactionTypeDeposit, 0, 0, 600, ReasonPerTransactionLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &models.Card{
				TodaysWithdrawals:  dec(tt.withdrawals),
				TodaysTransactions: dec(tt.total),
				LastResetDate:      now,
			}
			res := s.Check(card, tt.txType, dec(tt.amount), now)
			assert.Equal(t, tt.reason == "", res.Allowed)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestLimitService_CardOverridesDefaults(t *testing.T) {
	s := newTestLimitService()
	card := &models.Card{
		DailyWithdrawalLimit: decimal.NewNullDecimal(dec(3000)),
	}

	limits := s.Limits(card)
	assert.True(t, limits.PerTransaction.Equal(dec(500)))
	assert.True(t, limits.DailyWithdrawal.Equal(dec(3000)))
	assert.True(t, limits.DailyTransaction.Equal(dec(2000)))
}

func TestLimitService_ResetIfNewDay(t *testing.T) {
	s := newTestLimitService()
	lastReset := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	card := &models.Card{
		TodaysWithdrawals:  dec(900),
		TodaysTransactions: dec(1200),
		LastResetDate:      lastReset,
	}

	// Те же сутки - без сброса
	assert.False(t, s.ResetIfNewDay(card, lastReset.Add(30*time.Second)))
	assert.True(t, card.TodaysWithdrawals.Equal(dec(900)))

	next := time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC)
	assert.True(t, s.ResetIfNewDay(card, next))
	assert.True(t, card.TodaysWithdrawals.IsZero())
	assert.True(t, card.TodaysTransactions.IsZero())
	assert.Equal(t, next, card.LastResetDate)

	// Повторный вызов в те же сутки ничего не меняет
	assert.False(t, s.ResetIfNewDay(card, next.Add(time.Hour)))
}

func TestLimitService_DayBoundaryUsesConfiguredZone(t *testing.T) {
	s := newTestLimitService()
	s.loc = time.FixedZone("EST", -5*3600)

	// 03:00 UTC - это еще предыдущие сутки по EST
	lastReset := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)
	card := &models.Card{TodaysWithdrawals: dec(100), LastResetDate: lastReset}

	assert.False(t, s.ResetIfNewDay(card, time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)))
	assert.True(t, s.ResetIfNewDay(card, time.Date(2025, 3, 10, 5, 30, 0, 0, time.UTC)))
}
