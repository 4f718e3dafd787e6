package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountType представляет тип банковского счета
type AccountType string

const (
	AccountTypeChecking AccountType = "CHECKING"
	AccountTypeSavings  AccountType = "SAVINGS"
)

// Account представляет счет, с которого работает банкомат
type Account struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountNumber string          `gorm:"column:account_number;unique;not null;size:34"`
	AccountType   AccountType     `gorm:"column:account_type;type:varchar(20);not null;default:'CHECKING'"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;default:0"`
	Currency      string          `gorm:"column:currency;size:3;not null;default:'CAD'"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate назначает идентификатор перед вставкой
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// MaskedNumber возвращает номер счета вида ****3456
func (a *Account) MaskedNumber() string {
	if len(a.AccountNumber) <= 4 {
		return "****"
	}
	return "****" + a.AccountNumber[len(a.AccountNumber)-4:]
}
