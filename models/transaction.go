package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType представляет тип операции
type TransactionType string

const (
	TransactionTypeWithdrawal     TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit        TransactionType = "DEPOSIT"
	TransactionTypeBalanceInquiry TransactionType = "BALANCE_INQUIRY"
)

// TransactionStatus представляет статус операции
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// ErrTransactionImmutable возвращается при попытке изменить завершенную операцию
var ErrTransactionImmutable = errors.New("completed transaction is immutable")

type Transaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Type          TransactionType   `gorm:"column:type;type:varchar(20);not null"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(20,2);not null;default:0"`
	AccountID     uuid.UUID         `gorm:"column:account_id;type:uuid;not null;index"`
	CardID        uuid.UUID         `gorm:"column:card_id;type:uuid;not null;index"`
	SessionID     *uuid.UUID        `gorm:"column:session_id;type:uuid;index"`
	BalanceBefore decimal.Decimal   `gorm:"column:balance_before;type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal   `gorm:"column:balance_after;type:numeric(20,2);not null"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	Description   string            `gorm:"column:description;size:255"`
	CreatedAt     time.Time         `gorm:"column:created_at;index"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate назначает идентификатор перед вставкой
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate запрещает изменение завершенных операций
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	if t.Status == TransactionStatusCompleted {
		return ErrTransactionImmutable
	}
	return nil
}
