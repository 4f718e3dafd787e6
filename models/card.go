package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BlockReasonPinFailures - причина блокировки после исчерпания попыток ввода PIN
const BlockReasonPinFailures = "EXCESSIVE_PIN_FAILURES"

// Card представляет банковскую карту. Номер карты не хранится: поиск идет по
// HMAC номера, для отображения сохраняются последние 4 цифры.
type Card struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	NumberHMAC string    `gorm:"column:number_hmac;unique;not null;size:64"`
	Last4      string    `gorm:"column:last4;not null;size:4"`
	CardType   string    `gorm:"column:card_type;not null;size:20"`
	ExpiryDate time.Time `gorm:"column:expiry_date;not null"`
	CVVHash    string    `gorm:"column:cvv_hash;not null"`

	// Связи
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	PrimaryAccountID uuid.UUID `gorm:"column:primary_account_id;type:uuid;not null"`
	LinkedAccountID  uuid.UUID `gorm:"column:linked_account_id;type:uuid;not null"`

	// Безопасность
	PinHash           string     `gorm:"column:pin_hash;not null"`
	PinSalt           string     `gorm:"column:pin_salt;not null"`
	FailedPinAttempts int        `gorm:"column:failed_pin_attempts;not null;default:0"`
	LastFailedAttempt *time.Time `gorm:"column:last_failed_attempt"`
	IsBlocked         bool       `gorm:"column:is_blocked;not null;default:false"`
	BlockedUntil      *time.Time `gorm:"column:blocked_until"` // nil - бессрочная блокировка
	BlockReason       string     `gorm:"column:block_reason;size:50"`

	// Использование
	LastUsed           *time.Time      `gorm:"column:last_used"`
	TotalTransactions  int64           `gorm:"column:total_transactions;not null;default:0"`
	TodaysTransactions decimal.Decimal `gorm:"column:todays_transactions;type:numeric(20,2);not null;default:0"`
	TodaysWithdrawals  decimal.Decimal `gorm:"column:todays_withdrawals;type:numeric(20,2);not null;default:0"`
	LastResetDate      time.Time       `gorm:"column:last_reset_date;not null"`

	// Индивидуальные лимиты карты; NULL - используется лимит из конфигурации
	PerTransactionLimit   decimal.NullDecimal `gorm:"column:per_transaction_limit;type:numeric(20,2)"`
	DailyWithdrawalLimit  decimal.NullDecimal `gorm:"column:daily_withdrawal_limit;type:numeric(20,2)"`
	DailyTransactionLimit decimal.NullDecimal `gorm:"column:daily_transaction_limit;type:numeric(20,2)"`

	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы для модели Card
func (Card) TableName() string {
	return "cards"
}

// BeforeCreate назначает идентификатор перед вставкой
func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// MaskedNumber возвращает номер карты вида ****9012
func (c *Card) MaskedNumber() string {
	return "****" + c.Last4
}

// BlockExpired сообщает, что временная блокировка уже истекла
func (c *Card) BlockExpired(now time.Time) bool {
	return c.IsBlocked && c.BlockedUntil != nil && now.After(*c.BlockedUntil)
}
