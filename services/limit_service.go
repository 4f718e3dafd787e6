package services

import (
	"time"

	"atmcore/config"
	"atmcore/models"

	"github.com/shopspring/decimal"
)

// Причины отказа по лимиту
const (
	ReasonPerTransactionLimit   = "EXCEEDS_PER_TRANSACTION_LIMIT"
	ReasonDailyWithdrawalLimit  = "EXCEEDS_DAILY_WITHDRAWAL_LIMIT"
	ReasonDailyTransactionLimit = "EXCEEDS_DAILY_TRANSACTION_LIMIT"
)

// Limits - действующие лимиты карты
type Limits struct {
	PerTransaction   decimal.Decimal `json:"perTransaction"`
	DailyWithdrawal  decimal.Decimal `json:"dailyWithdrawal"`
	DailyTransaction decimal.Decimal `json:"dailyTransaction"`
}

// LimitResult - результат проверки лимитов
type LimitResult struct {
	Allowed bool
	Reason  string
}

// LimitService проверяет лимиты операций и сбрасывает дневные счетчики
type LimitService struct {
	defaults Limits
	loc      *time.Location
}

// NewLimitService создает LimitService с лимитами по умолчанию из конфигурации
func NewLimitService(cfg config.LimitsConfig) *LimitService {
	return &LimitService{
		defaults: Limits{
			PerTransaction:   decimal.NewFromFloat(cfg.PerTransaction),
			DailyWithdrawal:  decimal.NewFromFloat(cfg.DailyWithdrawal),
			DailyTransaction: decimal.NewFromFloat(cfg.DailyTransaction),
		},
		loc: cfg.Location(),
	}
}

// Limits возвращает лимиты карты: заданные на карте значения важнее общих
func (s *LimitService) Limits(card *models.Card) Limits {
	limits := s.defaults
	if card.PerTransactionLimit.Valid {
		limits.PerTransaction = card.PerTransactionLimit.Decimal
	}
	if card.DailyWithdrawalLimit.Valid {
		limits.DailyWithdrawal = card.DailyWithdrawalLimit.Decimal
	}
	if card.DailyTransactionLimit.Valid {
		limits.DailyTransaction = card.DailyTransactionLimit.Decimal
	}
	return limits
}

// StartOfDay возвращает начало календарных суток now в настроенном часовом поясе
func (s *LimitService) StartOfDay(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

// ResetIfNewDay обнуляет дневные счетчики карты, если они сброшены до начала текущих суток.
// Возвращает true, если сброс выполнен; сохранить карту должен вызывающий.
func (s *LimitService) ResetIfNewDay(card *models.Card, now time.Time) bool {
	if !card.LastResetDate.Before(s.StartOfDay(now)) {
		return false
	}
	card.TodaysTransactions = decimal.Zero
	card.TodaysWithdrawals = decimal.Zero
	card.LastResetDate = now
	return true
}

// Check сбрасывает счетчики при смене суток и проверяет, допустима ли операция
func (s *LimitService) Check(card *models.Card, txType models.TransactionType, amount decimal.Decimal, now time.Time) LimitResult {
	s.ResetIfNewDay(card, now)
	limits := s.Limits(card)

	if amount.GreaterThan(limits.PerTransaction) {
		return LimitResult{Reason: ReasonPerTransactionLimit}
	}
	if txType == models.TransactionTypeWithdrawal &&
		card.TodaysWithdrawals.Add(amount).GreaterThan(limits.DailyWithdrawal) {
		return LimitResult{Reason: ReasonDailyWithdrawalLimit}
	}
	if card.TodaysTransactions.Add(amount).GreaterThan(limits.DailyTransaction) {
		return LimitResult{Reason: ReasonDailyTransactionLimit}
	}
	return LimitResult{Allowed: true}
}
