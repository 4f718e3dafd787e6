package services

import (
	"context"
	"time"

	"atmcore/apperrors"
	"atmcore/config"
	"atmcore/database"
	"atmcore/models"
	"atmcore/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransactionRequest - запрос на снятие или внесение средств
type TransactionRequest struct {
	CardID    uuid.UUID
	AccountID uuid.UUID
	Amount    decimal.Decimal
	SessionID *uuid.UUID // сессия, в рамках которой выполняется операция
}

// TransactionResult - результат проведенной операции
type TransactionResult struct {
	TransactionID   uuid.UUID       `json:"transactionId"`
	Amount          decimal.Decimal `json:"amount"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	TransactionDate time.Time       `json:"transactionDate"`
}

// BalanceResult - баланс счета без изменения состояния
type BalanceResult struct {
	AccountID     uuid.UUID          `json:"accountId"`
	AccountNumber string             `json:"accountNumber"`
	AccountType   models.AccountType `json:"accountType"`
	Balance       decimal.Decimal    `json:"balance"`
	Currency      string             `json:"currency"`
	AsOf          time.Time          `json:"asOf"`
}

// AccountSummary - сведения о привязанном к карте счете
type AccountSummary struct {
	AccountID     uuid.UUID          `json:"accountId"`
	AccountNumber string             `json:"accountNumber"`
	AccountType   models.AccountType `json:"accountType"`
	Balance       decimal.Decimal    `json:"balance"`
	Currency      string             `json:"currency"`
}

// ATMService проводит операции по счетам
type ATMService struct {
	store       database.Store
	limits      *LimitService
	metrics     *utils.Metrics
	log         *logrus.Logger
	recentLimit int
	now         func() time.Time
}

// NewATMService создает новый экземпляр ATMService
func NewATMService(store database.Store, limits *LimitService, cfg config.SessionConfig, log *logrus.Logger, metrics *utils.Metrics) *ATMService {
	recent := cfg.RecentTransactions
	if recent <= 0 {
		recent = 10
	}
	return &ATMService{
		store:       store,
		limits:      limits,
		metrics:     metrics,
		log:         log,
		recentLimit: recent,
		now:         time.Now,
	}
}

// Withdraw снимает средства со счета
func (s *ATMService) Withdraw(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
	return s.execute(ctx, models.TransactionTypeWithdrawal, req)
}

// Deposit вносит средства на счет
func (s *ATMService) Deposit(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
	return s.execute(ctx, models.TransactionTypeDeposit, req)
}

// execute выполняет снятие или внесение в одной транзакции хранилища:
// запись операции, баланс счета и счетчики карты фиксируются вместе
func (s *ATMService) execute(ctx context.Context, txType models.TransactionType, req TransactionRequest) (*TransactionResult, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, apperrors.Validation("amount", "must be greater than zero")
	}
	now := s.now().UTC()

	var (
		result   *TransactionResult
		rejected error
	)

	err := s.store.Atomic(ctx, func(tx database.Store) error {
		// Atomic может повторить функцию после конфликта
		result, rejected = nil, nil

		card, err := tx.GetCard(ctx, req.CardID)
		if err != nil {
			return err
		}
		account, err := tx.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}

		if txType == models.TransactionTypeWithdrawal && account.Balance.LessThan(amount) {
			return apperrors.ErrInsufficientFunds
		}

		check := s.limits.Check(card, txType, amount, now)
		if !check.Allowed {
			// Сброс дневных счетчиков сохраняется и при отказе
			rejected = apperrors.LimitExceeded(check.Reason)
			return tx.SaveCard(ctx, card)
		}

		before := account.Balance
		after := before.Add(amount)
		if txType == models.TransactionTypeWithdrawal {
			after = before.Sub(amount)
		}

		record := &models.Transaction{
			Type:          txType,
			Amount:        amount,
			AccountID:     account.ID,
			CardID:        card.ID,
			SessionID:     req.SessionID,
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        models.TransactionStatusCompleted,
			Description:   describe(txType, card),
			CreatedAt:     now,
		}
		if err := tx.CreateTransaction(ctx, record); err != nil {
			return err
		}

		account.Balance = after
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}

		card.TodaysTransactions = card.TodaysTransactions.Add(amount)
		if txType == models.TransactionTypeWithdrawal {
			card.TodaysWithdrawals = card.TodaysWithdrawals.Add(amount)
		}
		card.TotalTransactions++
		card.LastUsed = &now
		if err := tx.SaveCard(ctx, card); err != nil {
			return err
		}

		result = &TransactionResult{
			TransactionID:   record.ID,
			Amount:          amount,
			NewBalance:      after,
			TransactionDate: now,
		}
		return nil
	})

	fields := logrus.Fields{
		"type":       txType,
		"card_id":    req.CardID.String(),
		"account_id": req.AccountID.String(),
		"amount":     amount.StringFixed(2),
		"request_id": RequestIDFromContext(ctx),
	}
	if err != nil {
		err = apperrors.Internal(string(txType), err)
		s.log.WithFields(fields).WithField("error", err).Info("Операция отклонена")
		s.recordError(err)
		return nil, err
	}
	if rejected != nil {
		s.log.WithFields(fields).WithField("error", rejected).Info("Операция отклонена по лимиту")
		if s.metrics != nil {
			s.metrics.RecordLimitRejection()
		}
		s.recordError(rejected)
		return nil, rejected
	}

	s.log.WithFields(fields).WithField("transaction_id", result.TransactionID.String()).Info("Операция выполнена")
	if s.metrics != nil {
		s.metrics.RecordTransaction(string(txType), amount.InexactFloat64())
	}
	return result, nil
}

func (s *ATMService) recordError(err error) {
	if s.metrics != nil {
		s.metrics.RecordError(string(apperrors.KindOf(err)))
	}
}

func describe(txType models.TransactionType, card *models.Card) string {
	switch txType {
	case models.TransactionTypeWithdrawal:
		return "ATM withdrawal with card " + card.MaskedNumber()
	case models.TransactionTypeDeposit:
		return "ATM deposit with card " + card.MaskedNumber()
	default:
		return "ATM operation with card " + card.MaskedNumber()
	}
}

// GetBalance возвращает баланс счета, привязанного к карте
func (s *ATMService) GetBalance(ctx context.Context, cardID, accountID uuid.UUID) (*BalanceResult, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, apperrors.Internal("get balance", err)
	}
	if card.LinkedAccountID != accountID {
		return nil, apperrors.ErrNotLinked
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.Internal("get balance", err)
	}

	return &BalanceResult{
		AccountID:     account.ID,
		AccountNumber: account.MaskedNumber(),
		AccountType:   account.AccountType,
		Balance:       account.Balance,
		Currency:      account.Currency,
		AsOf:          s.now().UTC(),
	}, nil
}

// GetRecentTransactions возвращает последние операции карты, новые первыми
func (s *ATMService) GetRecentTransactions(ctx context.Context, cardID uuid.UUID) ([]models.Transaction, error) {
	if _, err := s.store.GetCard(ctx, cardID); err != nil {
		return nil, apperrors.Internal("recent transactions", err)
	}
	txs, err := s.store.RecentTransactions(ctx, cardID, s.recentLimit)
	if err != nil {
		return nil, apperrors.Internal("recent transactions", err)
	}
	return txs, nil
}

// GetLinkedAccount возвращает сведения о счете, привязанном к карте
func (s *ATMService) GetLinkedAccount(ctx context.Context, cardID uuid.UUID) (*AccountSummary, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, apperrors.Internal("linked account", err)
	}
	account, err := s.store.GetAccount(ctx, card.LinkedAccountID)
	if err != nil {
		return nil, apperrors.Internal("linked account", err)
	}

	return &AccountSummary{
		AccountID:     account.ID,
		AccountNumber: account.MaskedNumber(),
		AccountType:   account.AccountType,
		Balance:       account.Balance,
		Currency:      account.Currency,
	}, nil
}
