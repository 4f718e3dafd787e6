package database

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"atmcore/apperrors"
	"atmcore/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errNegativeBalance = errors.New("balance must not be negative")

// memData - снимок всех таблиц хранилища в памяти
type memData struct {
	users    map[uuid.UUID]models.User
	accounts map[uuid.UUID]models.Account
	cards    map[uuid.UUID]models.Card
	sessions map[uuid.UUID]models.Session
	txs      []models.Transaction
	events   []models.SecurityEvent
}

func newMemData() *memData {
	return &memData{
		users:    make(map[uuid.UUID]models.User),
		accounts: make(map[uuid.UUID]models.Account),
		cards:    make(map[uuid.UUID]models.Card),
		sessions: make(map[uuid.UUID]models.Session),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.cards {
		c.cards[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	c.txs = append([]models.Transaction(nil), d.txs...)
	c.events = append([]models.SecurityEvent(nil), d.events...)
	return c
}

// MemoryStore - хранилище в памяти. Транзакции сериализуются одной блокировкой,
// Atomic работает над копией данных и публикует ее только при успехе.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	now  func() time.Time
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: newMemData(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Ping всегда успешен
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}

// view выполняет fn над текущими данными под блокировкой
func (m *MemoryStore) view(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{data: m.data, now: m.now})
}

func (m *MemoryStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return apperrors.Internal("transaction", err)
	}

	work := m.data.clone()
	if err := fn(&memTx{data: work, now: m.now}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemoryStore) FindCardByNumber(ctx context.Context, numberHMAC string) (card *models.Card, err error) {
	err = m.view(func(tx *memTx) error {
		card, err = tx.FindCardByNumber(ctx, numberHMAC)
		return err
	})
	return card, err
}

func (m *MemoryStore) GetCard(ctx context.Context, id uuid.UUID) (card *models.Card, err error) {
	err = m.view(func(tx *memTx) error {
		card, err = tx.GetCard(ctx, id)
		return err
	})
	return card, err
}

func (m *MemoryStore) SaveCard(ctx context.Context, card *models.Card) error {
	return m.view(func(tx *memTx) error { return tx.SaveCard(ctx, card) })
}

func (m *MemoryStore) GetAccount(ctx context.Context, id uuid.UUID) (account *models.Account, err error) {
	err = m.view(func(tx *memTx) error {
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

func (m *MemoryStore) SaveAccount(ctx context.Context, account *models.Account) error {
	return m.view(func(tx *memTx) error { return tx.SaveAccount(ctx, account) })
}

func (m *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (user *models.User, err error) {
	err = m.view(func(tx *memTx) error {
		user, err = tx.GetUser(ctx, id)
		return err
	})
	return user, err
}

// CreateUser добавляет пользователя; используется при заполнении демо-данными
func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	return m.view(func(tx *memTx) error { return tx.CreateUser(ctx, user) })
}

func (m *MemoryStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return m.view(func(tx *memTx) error { return tx.CreateTransaction(ctx, t) })
}

func (m *MemoryStore) RecentTransactions(ctx context.Context, cardID uuid.UUID, limit int) (txs []models.Transaction, err error) {
	err = m.view(func(tx *memTx) error {
		txs, err = tx.RecentTransactions(ctx, cardID, limit)
		return err
	})
	return txs, err
}

func (m *MemoryStore) CountTransactionsBySession(ctx context.Context, sessionID uuid.UUID) (n int64, err error) {
	err = m.view(func(tx *memTx) error {
		n, err = tx.CountTransactionsBySession(ctx, sessionID)
		return err
	})
	return n, err
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	return m.view(func(tx *memTx) error { return tx.CreateSession(ctx, session) })
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (session *models.Session, err error) {
	err = m.view(func(tx *memTx) error {
		session, err = tx.GetSession(ctx, id)
		return err
	})
	return session, err
}

func (m *MemoryStore) SaveSession(ctx context.Context, session *models.Session) error {
	return m.view(func(tx *memTx) error { return tx.SaveSession(ctx, session) })
}

func (m *MemoryStore) ActiveSessionsByCard(ctx context.Context, cardID uuid.UUID) (sessions []models.Session, err error) {
	err = m.view(func(tx *memTx) error {
		sessions, err = tx.ActiveSessionsByCard(ctx, cardID)
		return err
	})
	return sessions, err
}

func (m *MemoryStore) CloseExpiredSessions(ctx context.Context, startedBefore, now time.Time) (n int64, err error) {
	err = m.view(func(tx *memTx) error {
		n, err = tx.CloseExpiredSessions(ctx, startedBefore, now)
		return err
	})
	return n, err
}

func (m *MemoryStore) CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	return m.view(func(tx *memTx) error { return tx.CreateSecurityEvent(ctx, event) })
}

func (m *MemoryStore) ResetDailyUsage(ctx context.Context, before, now time.Time) (n int64, err error) {
	err = m.view(func(tx *memTx) error {
		n, err = tx.ResetDailyUsage(ctx, before, now)
		return err
	})
	return n, err
}

// SecurityEvents возвращает копию журнала безопасности
func (m *MemoryStore) SecurityEvents() []models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SecurityEvent(nil), m.data.events...)
}

// memTx - представление данных внутри транзакции MemoryStore.
// Блокировку держит вызывающая сторона.
type memTx struct {
	data *memData
	now  func() time.Time
}

// Atomic внутри транзакции просто выполняет fn
func (t *memTx) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) FindCardByNumber(ctx context.Context, numberHMAC string) (*models.Card, error) {
	for _, c := range t.data.cards {
		if c.NumberHMAC == numberHMAC && c.IsActive {
			card := c
			return &card, nil
		}
	}
	return nil, apperrors.NotFound("card")
}

func (t *memTx) GetCard(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	c, ok := t.data.cards[id]
	if !ok {
		return nil, apperrors.NotFound("card")
	}
	return &c, nil
}

func (t *memTx) SaveCard(ctx context.Context, card *models.Card) error {
	now := t.now()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
		card.CreatedAt = now
	}
	for id, c := range t.data.cards {
		if id != card.ID && c.NumberHMAC == card.NumberHMAC {
			return apperrors.New(apperrors.KindConflict, "duplicate card number")
		}
	}
	card.UpdatedAt = now
	t.data.cards[card.ID] = *card
	return nil
}

func (t *memTx) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := t.data.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account")
	}
	return &a, nil
}

func (t *memTx) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.Balance.IsNegative() {
		return apperrors.Wrap(apperrors.KindInternal, "save account", errNegativeBalance)
	}
	now := t.now()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	t.data.accounts[account.ID] = *account
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &u, nil
}

func (t *memTx) CreateUser(ctx context.Context, user *models.User) error {
	for _, u := range t.data.users {
		if u.Email == user.Email {
			return apperrors.Wrap(apperrors.KindConflict, "create user", errors.New("duplicate email"))
		}
	}
	now := t.now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	t.data.users[user.ID] = *user
	return nil
}

func (t *memTx) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = t.now()
	}
	if tx.Status == "" {
		tx.Status = models.TransactionStatusPending
	}
	t.data.txs = append(t.data.txs, *tx)
	return nil
}

func (t *memTx) RecentTransactions(ctx context.Context, cardID uuid.UUID, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	// Обход с конца: при равном времени новые вставки идут первыми
	for i := len(t.data.txs) - 1; i >= 0; i-- {
		if t.data.txs[i].CardID == cardID {
			out = append(out, t.data.txs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) CountTransactionsBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	for _, tx := range t.data.txs {
		if tx.SessionID != nil && *tx.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateSession(ctx context.Context, session *models.Session) error {
	if session.IsOpen() {
		for _, s := range t.data.sessions {
			if s.CardID == session.CardID && s.IsOpen() {
				return apperrors.New(apperrors.KindConflict, "card already has an active session")
			}
		}
	}
	now := t.now()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	t.data.sessions[session.ID] = *session
	return nil
}

func (t *memTx) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := t.data.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session")
	}
	return &s, nil
}

func (t *memTx) SaveSession(ctx context.Context, session *models.Session) error {
	if _, ok := t.data.sessions[session.ID]; !ok {
		return apperrors.NotFound("session")
	}
	session.UpdatedAt = t.now()
	t.data.sessions[session.ID] = *session
	return nil
}

func (t *memTx) ActiveSessionsByCard(ctx context.Context, cardID uuid.UUID) ([]models.Session, error) {
	var out []models.Session
	for _, s := range t.data.sessions {
		if s.CardID == cardID && s.IsOpen() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) CloseExpiredSessions(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	var n int64
	for id, s := range t.data.sessions {
		if s.IsOpen() && s.StartTime.Before(startedBefore) {
			s.Close(now)
			s.UpdatedAt = now
			t.data.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	for _, e := range t.data.events {
		if e.EventID == event.EventID {
			return apperrors.New(apperrors.KindConflict, "duplicate event id")
		}
	}
	t.data.events = append(t.data.events, *event)
	return nil
}

func (t *memTx) ResetDailyUsage(ctx context.Context, before, now time.Time) (int64, error) {
	var n int64
	for id, c := range t.data.cards {
		if c.LastResetDate.Before(before) {
			c.TodaysTransactions = decimal.Zero
			c.TodaysWithdrawals = decimal.Zero
			c.LastResetDate = now
			c.UpdatedAt = now
			t.data.cards[id] = c
			n++
		}
	}
	return n, nil
}
