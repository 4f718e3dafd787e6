package database

import (
	"context"
	"time"

	"atmcore/models"

	"github.com/google/uuid"
)

// Store - хранилище ядра банкомата. Реализации: Database (PostgreSQL через gorm)
// и MemoryStore (для тестов и локального запуска).
//
// Методы, вызванные на Store, полученном внутри Atomic, видят незакоммиченные
// изменения этой транзакции. Чтения карты и счета внутри Atomic блокируют строку
// до конца транзакции.
type Store interface {
	// FindCardByNumber ищет активную карту по HMAC номера
	FindCardByNumber(ctx context.Context, numberHMAC string) (*models.Card, error)
	GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error)
	SaveCard(ctx context.Context, card *models.Card) error

	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error

	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	// CreateUser добавляет пользователя; email уникален
	CreateUser(ctx context.Context, user *models.User) error

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	// RecentTransactions возвращает последние операции карты, новые первыми
	RecentTransactions(ctx context.Context, cardID uuid.UUID, limit int) ([]models.Transaction, error)
	CountTransactionsBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)

	// CreateSession вставляет сессию; вторая открытая сессия карты - ошибка CONFLICT
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	ActiveSessionsByCard(ctx context.Context, cardID uuid.UUID) ([]models.Session, error)
	// CloseExpiredSessions закрывает открытые сессии, начатые раньше startedBefore
	CloseExpiredSessions(ctx context.Context, startedBefore, now time.Time) (int64, error)

	CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error

	// ResetDailyUsage обнуляет дневные счетчики карт, сброшенных раньше before
	ResetDailyUsage(ctx context.Context, before, now time.Time) (int64, error)

	// Atomic выполняет fn в одной транзакции: все изменения фиксируются вместе
	// или не фиксируются вовсе. Ошибка fn откатывает транзакцию.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
