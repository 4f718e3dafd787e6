package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"atmcore/apperrors"
	"atmcore/config"
	"atmcore/database"
	"atmcore/models"
	"atmcore/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testCardNumber = "4532123456789012"
	testPIN        = "1234"
)

// testClock - управляемые часы для тестов
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeHasher заменяет scrypt, чтобы тесты не тратили время на вывод ключа
type fakeHasher struct{}

func (fakeHasher) Hash(secret string) (string, string, error) {
	return "hash-" + secret, "salt", nil
}

func (fakeHasher) Verify(secret, hash, salt string) bool {
	return hash == "hash-"+secret && salt == "salt"
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	calls chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(chan struct{}, 16)}
}

func (n *fakeNotifier) SendCardBlockedNotification(to, holder, maskedCard string, blockedUntil *time.Time) error {
	n.mu.Lock()
	n.sent = append(n.sent, to+" "+maskedCard)
	n.mu.Unlock()
	n.calls <- struct{}{}
	return nil
}

type fixture struct {
	cfg      *config.Config
	store    *database.MemoryStore
	clock    *testClock
	notifier *fakeNotifier
	metrics  *utils.Metrics

	user     *models.User
	checking *models.Account
	savings  *models.Account
	card     *models.Card

	events   *SecurityEventService
	security *CardSecurityService
	limits   *LimitService
	atm      *ATMService
	tokens   *TokenService
	sessions *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.JWT.SecretKey = "test-secret"
	require.NoError(t, cfg.Validate())

	f := &fixture{
		cfg:      cfg,
		store:    database.NewMemoryStore(),
		clock:    newTestClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		notifier: newFakeNotifier(),
		metrics:  utils.NewMetrics(),
	}

	f.user = &models.User{FirstName: "Peter", LastName: "Parker", Email: "peter@example.com", IsActive: true}
	require.NoError(t, f.store.CreateUser(ctx, f.user))

	f.checking = &models.Account{
		AccountNumber: "1000000001",
		AccountType:   models.AccountTypeChecking,
		Balance:       decimal.NewFromInt(5000),
		Currency:      "CAD",
		UserID:        f.user.ID,
		IsActive:      true,
	}
	require.NoError(t, f.store.SaveAccount(ctx, f.checking))

	f.savings = &models.Account{
		AccountNumber: "1000000002",
		AccountType:   models.AccountTypeSavings,
		Balance:       decimal.NewFromInt(15000),
		Currency:      "CAD",
		UserID:        f.user.ID,
		IsActive:      true,
	}
	require.NoError(t, f.store.SaveAccount(ctx, f.savings))

	f.card = &models.Card{
		NumberHMAC:         utils.CardNumberDigest(testCardNumber, cfg.Security.CardHMACKey),
		Last4:              "9012",
		CardType:           "VISA",
		ExpiryDate:         f.clock.Now().AddDate(3, 0, 0),
		UserID:             f.user.ID,
		PrimaryAccountID:   f.checking.ID,
		LinkedAccountID:    f.checking.ID,
		PinHash:            "hash-" + testPIN,
		PinSalt:            "salt",
		TodaysTransactions: decimal.Zero,
		TodaysWithdrawals:  decimal.Zero,
		LastResetDate:      f.clock.Now(),
		IsActive:           true,
	}
	require.NoError(t, f.store.SaveCard(ctx, f.card))

	log := utils.NewDiscardLogger()

	f.events = NewSecurityEventService(f.store, log)
	f.events.now = f.clock.Now

	f.security = NewCardSecurityService(f.store, fakeHasher{}, f.events, f.notifier, cfg.Security, log, f.metrics)
	f.security.now = f.clock.Now

	f.limits = NewLimitService(cfg.Limits)

	f.atm = NewATMService(f.store, f.limits, cfg.Session, log, f.metrics)
	f.atm.now = f.clock.Now

	tokens, err := NewTokenService(cfg.JWT)
	require.NoError(t, err)
	tokens.now = f.clock.Now
	f.tokens = tokens

	f.sessions = NewSessionService(f.store, f.tokens, cfg.Session, log, f.metrics)
	f.sessions.now = f.clock.Now

	return f
}

func (f *fixture) reloadCard(t *testing.T) *models.Card {
	t.Helper()
	card, err := f.store.GetCard(context.Background(), f.card.ID)
	require.NoError(t, err)
	return card
}

func (f *fixture) reloadAccount(t *testing.T, id uuid.UUID) *models.Account {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account
}

// setCardLimits задает индивидуальные лимиты карты
func (f *fixture) setCardLimits(t *testing.T, perTx, dailyWithdrawal, dailyTx int64) {
	t.Helper()
	card := f.reloadCard(t)
	card.PerTransactionLimit = decimal.NewNullDecimal(decimal.NewFromInt(perTx))
	card.DailyWithdrawalLimit = decimal.NewNullDecimal(decimal.NewFromInt(dailyWithdrawal))
	card.DailyTransactionLimit = decimal.NewNullDecimal(decimal.NewFromInt(dailyTx))
	require.NoError(t, f.store.SaveCard(context.Background(), card))
}

func (f *fixture) setBalance(t *testing.T, account *models.Account, balance int64) {
	t.Helper()
	a := f.reloadAccount(t, account.ID)
	a.Balance = decimal.NewFromInt(balance)
	require.NoError(t, f.store.SaveAccount(context.Background(), a))
}

func (f *fixture) eventsOfType(eventType models.SecurityEventType) []models.SecurityEvent {
	var out []models.SecurityEvent
	for _, e := range f.store.SecurityEvents() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// conflictOnceStore повторяет функцию Atomic после конфликта, как Database.Atomic:
// первая попытка выполняется полностью и откатывается с ErrConflict
type conflictOnceStore struct {
	*database.MemoryStore
	betweenAttempts func()
	attempts        int
}

func (s *conflictOnceStore) Atomic(ctx context.Context, fn func(tx database.Store) error) error {
	for {
		s.attempts++
		first := s.attempts == 1
		err := s.MemoryStore.Atomic(ctx, func(tx database.Store) error {
			if err := fn(tx); err != nil {
				return err
			}
			if first {
				return apperrors.ErrConflict
			}
			return nil
		})
		if first && apperrors.IsRetryable(err) {
			if s.betweenAttempts != nil {
				s.betweenAttempts()
			}
			continue
		}
		return err
	}
}
