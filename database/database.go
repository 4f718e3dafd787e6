package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"atmcore/apperrors"
	"atmcore/config"
	"atmcore/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLSTATE коды, после которых транзакцию можно повторить
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
)

// Database представляет подключение к PostgreSQL и реализует Store
type Database struct {
	db           *gorm.DB
	inTx         bool
	maxRetries   int
	queryTimeout time.Duration
	log          *logrus.Logger
}

// Connect устанавливает соединение с базой данных и выполняет миграции
func Connect(cfg *config.Config, l *logrus.Logger) (*Database, error) {
	// Логгер gorm пишет через logrus
	gormLogger := logger.New(
		log.New(l.Writer(), "", 0),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Выполняем SQL миграции
	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("ошибка выполнения SQL миграций: %w", err)
	}

	if cfg.DB.AutoMigrate {
		if err := autoMigrate(db); err != nil {
			return nil, fmt.Errorf("ошибка автоматической миграции моделей: %w", err)
		}
	}

	return &Database{
		db:           db,
		maxRetries:   cfg.DB.MaxRetries,
		queryTimeout: cfg.DB.QueryTimeout,
		log:          l,
	}, nil
}

// runMigrations выполняет SQL миграции
func runMigrations(cfg *config.Config) error {
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %w", err)
	}
	return nil
}

// autoMigrate выполняет автоматическую миграцию моделей
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Card{},
		&models.Session{},
		&models.Transaction{},
		&models.SecurityEvent{},
	)
}

// Close закрывает подключение к базе данных
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping проверяет доступность базы данных
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// withTimeout ограничивает время операции вне транзакции; внутри транзакции
// действует таймаут, заданный в Atomic
func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.inTx || d.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.queryTimeout)
}

// query возвращает запрос с блокировкой строк, если вызван внутри транзакции
func (d *Database) query(ctx context.Context) *gorm.DB {
	q := d.db.WithContext(ctx)
	if d.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

// classify переводит ошибку драйвера в ошибку ядра
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable, sqlStateUniqueViolation:
			return apperrors.Wrap(apperrors.KindConflict, op, err)
		}
	}
	return apperrors.Internal(op, err)
}

func (d *Database) FindCardByNumber(ctx context.Context, numberHMAC string) (*models.Card, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var card models.Card
	err := d.query(ctx).Where("number_hmac = ? AND is_active = ?", numberHMAC, true).First(&card).Error
	if err != nil {
		return nil, classify("card", err)
	}
	return &card, nil
}

func (d *Database) GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var card models.Card
	if err := d.query(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, classify("card", err)
	}
	return &card, nil
}

func (d *Database) SaveCard(ctx context.Context, card *models.Card) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("save card", d.db.WithContext(ctx).Save(card).Error)
}

func (d *Database) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var account models.Account
	if err := d.query(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, classify("account", err)
	}
	return &account, nil
}

func (d *Database) SaveAccount(ctx context.Context, account *models.Account) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("save account", d.db.WithContext(ctx).Save(account).Error)
}

// CreateUser добавляет пользователя
func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("create user", d.db.WithContext(ctx).Create(user).Error)
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, classify("user", err)
	}
	return &user, nil
}

func (d *Database) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("create transaction", d.db.WithContext(ctx).Create(tx).Error)
}

func (d *Database) RecentTransactions(ctx context.Context, cardID uuid.UUID, limit int) ([]models.Transaction, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var txs []models.Transaction
	err := d.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, classify("recent transactions", err)
	}
	return txs, nil
}

func (d *Database) CountTransactionsBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var n int64
	err := d.db.WithContext(ctx).Model(&models.Transaction{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, classify("count transactions", err)
}

func (d *Database) CreateSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("create session", d.db.WithContext(ctx).Create(session).Error)
}

func (d *Database) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var session models.Session
	if err := d.query(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, classify("session", err)
	}
	return &session, nil
}

func (d *Database) SaveSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("save session", d.db.WithContext(ctx).Save(session).Error)
}

func (d *Database) ActiveSessionsByCard(ctx context.Context, cardID uuid.UUID) ([]models.Session, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var sessions []models.Session
	err := d.query(ctx).
		Where("card_id = ? AND is_active = ? AND end_time IS NULL", cardID, true).
		Find(&sessions).Error
	if err != nil {
		return nil, classify("active sessions", err)
	}
	return sessions, nil
}

func (d *Database) CloseExpiredSessions(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res := d.db.WithContext(ctx).Model(&models.Session{}).
		Where("is_active = ? AND start_time < ?", true, startedBefore).
		Updates(map[string]interface{}{
			"is_active":  false,
			"end_time":   now,
			"updated_at": now,
		})
	return res.RowsAffected, classify("close expired sessions", res.Error)
}

func (d *Database) CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify("create security event", d.db.WithContext(ctx).Create(event).Error)
}

func (d *Database) ResetDailyUsage(ctx context.Context, before, now time.Time) (int64, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	res := d.db.WithContext(ctx).Model(&models.Card{}).
		Where("last_reset_date < ?", before).
		Updates(map[string]interface{}{
			"todays_transactions": decimal.Zero,
			"todays_withdrawals":  decimal.Zero,
			"last_reset_date":     now,
			"updated_at":          now,
		})
	return res.RowsAffected, classify("reset daily usage", res.Error)
}

// Atomic выполняет fn в транзакции и повторяет ее при конфликте сериализации
// или взаимной блокировке, не более MaxRetries раз
func (d *Database) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if d.inTx {
		return fn(d)
	}

	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		err = d.atomicOnce(ctx, fn)
		if err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		d.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Warn("Повтор транзакции после конфликта")
	}
	return err
}

func (d *Database) atomicOnce(ctx context.Context, fn func(tx Store) error) error {
	if d.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.queryTimeout)
		defer cancel()
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{
			db:           tx,
			inTx:         true,
			maxRetries:   d.maxRetries,
			queryTimeout: d.queryTimeout,
			log:          d.log,
		})
	})
	return classify("transaction", err)
}
