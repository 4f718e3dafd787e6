package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"atmcore/apperrors"
	"atmcore/models"
	"atmcore/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	ctx := WithRequestID(context.Background(), "req-1")

	res, err := f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.NotNil(t, res.Card)
	assert.Equal(t, f.card.ID, res.Card.ID)

	card := f.reloadCard(t)
	assert.Equal(t, 0, card.FailedPinAttempts)
	require.NotNil(t, card.LastUsed)
	assert.Equal(t, f.clock.Now(), *card.LastUsed)

	events := f.eventsOfType(models.SecurityEventLoginSuccess)
	require.Len(t, events, 1)
	assert.Equal(t, "req-1", events[0].CorrelationID)
	assert.Equal(t, f.card.ID, *events[0].CardID)
}

func TestAuthenticate_InvalidCardRevealsOnlyLast4(t *testing.T) {
	f := newFixture(t)

	res, err := f.security.Authenticate(context.Background(), "4111111111111111", testPIN)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.KindInvalidCard, res.Error)
	assert.Nil(t, res.Card)

	events := f.eventsOfType(models.SecurityEventInvalidCard)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Description, "****1111")
	assert.NotContains(t, events[0].Description, "4111111111111111")
	assert.Nil(t, events[0].CardID)
}

func TestAuthenticate_AttemptsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for n := 1; n < f.cfg.Security.MaxPinAttempts; n++ {
		res, err := f.security.Authenticate(ctx, testCardNumber, "0000")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, apperrors.KindInvalidPin, res.Error)
		assert.Equal(t, f.cfg.Security.MaxPinAttempts-n, res.AttemptsRemaining)

		card := f.reloadCard(t)
		assert.Equal(t, n, card.FailedPinAttempts)
		assert.False(t, card.IsBlocked)
	}
	assert.Len(t, f.eventsOfType(models.SecurityEventPinFailure), f.cfg.Security.MaxPinAttempts-1)

	// Верный PIN сбрасывает счетчик
	res, err := f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	card := f.reloadCard(t)
	assert.Equal(t, 0, card.FailedPinAttempts)
	assert.Nil(t, card.LastFailedAttempt)
}

func TestAuthenticate_BlocksAfterMaxFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maxAttempts := f.cfg.Security.MaxPinAttempts

	var res *AuthResult
	var err error
	for i := 0; i < maxAttempts; i++ {
		res, err = f.security.Authenticate(ctx, testCardNumber, "0000")
		require.NoError(t, err)
	}
	assert.Equal(t, apperrors.KindCardBlocked, res.Error)
	assert.Equal(t, 0, res.AttemptsRemaining)
	assert.True(t, res.BlockedNow)

	card := f.reloadCard(t)
	assert.True(t, card.IsBlocked)
	assert.Equal(t, models.BlockReasonPinFailures, card.BlockReason)
	require.NotNil(t, card.BlockedUntil)
	assert.Equal(t, f.clock.Now().Add(f.cfg.Security.CardBlockDuration), *card.BlockedUntil)

	// Даже верный PIN не проходит до окончания блокировки
	f.clock.Advance(f.cfg.Security.CardBlockDuration - time.Second)
	res, err = f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.KindCardBlocked, res.Error)
	assert.Len(t, f.eventsOfType(models.SecurityEventCardBlocked), 2)

	select {
	case <-f.notifier.calls:
	case <-time.After(time.Second):
		t.Fatal("card blocked notification was not sent")
	}
	f.notifier.mu.Lock()
	assert.Equal(t, []string{"peter@example.com ****9012"}, f.notifier.sent)
	f.notifier.mu.Unlock()

	snap := f.metrics.GetMetricsSnapshot()
	assert.Equal(t, int64(1), snap["blocked_cards"])
}

func TestAuthenticate_AutoUnblockAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < f.cfg.Security.MaxPinAttempts; i++ {
		_, err := f.security.Authenticate(ctx, testCardNumber, "0000")
		require.NoError(t, err)
	}

	f.clock.Advance(f.cfg.Security.CardBlockDuration + time.Second)

	res, err := f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	card := f.reloadCard(t)
	assert.False(t, card.IsBlocked)
	assert.Nil(t, card.BlockedUntil)
	assert.Empty(t, card.BlockReason)
	assert.Equal(t, 0, card.FailedPinAttempts)
}

func TestAuthenticate_AutoUnblockGivesFreshAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maxAttempts := f.cfg.Security.MaxPinAttempts

	for i := 0; i < maxAttempts; i++ {
		_, err := f.security.Authenticate(ctx, testCardNumber, "0000")
		require.NoError(t, err)
	}
	f.clock.Advance(f.cfg.Security.CardBlockDuration + time.Minute)

	res, err := f.security.Authenticate(ctx, testCardNumber, "0000")
	require.NoError(t, err)
	assert.Equal(t, apperrors.KindInvalidPin, res.Error)
	assert.Equal(t, maxAttempts-1, res.AttemptsRemaining)
	assert.False(t, f.reloadCard(t).IsBlocked)
}

func TestAuthenticate_ConcurrentFailuresAreAllCounted(t *testing.T) {
	f := newFixture(t)
	f.security.maxAttempts = 10
	ctx := context.Background()

	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.security.Authenticate(ctx, testCardNumber, "0000")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, f.reloadCard(t).FailedPinAttempts)
}

func TestAuthenticate_WithScryptHasher(t *testing.T) {
	f := newFixture(t)
	hasher := utils.NewScryptHasher()
	f.security.hasher = hasher

	hash, salt, err := hasher.Hash("4321")
	require.NoError(t, err)
	card := f.reloadCard(t)
	card.PinHash, card.PinSalt = hash, salt
	require.NoError(t, f.store.SaveCard(context.Background(), card))

	res, err := f.security.Authenticate(context.Background(), testCardNumber, "4321")
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = f.security.Authenticate(context.Background(), testCardNumber, testPIN)
	require.NoError(t, err)
	assert.Equal(t, apperrors.KindInvalidPin, res.Error)
}

func TestBlockCard_IndefiniteUntilUnblocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.security.BlockCard(ctx, f.card.ID, "REPORTED_STOLEN"))
	card := f.reloadCard(t)
	assert.True(t, card.IsBlocked)
	assert.Nil(t, card.BlockedUntil)

	// Бессрочная блокировка не снимается со временем
	f.clock.Advance(365 * 24 * time.Hour)
	res, err := f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	assert.Equal(t, apperrors.KindCardBlocked, res.Error)

	require.NoError(t, f.security.UnblockCard(ctx, f.card.ID))
	res, err = f.security.Authenticate(ctx, testCardNumber, testPIN)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestAuthenticate_RetryAfterConflictDropsStaleBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card := f.reloadCard(t)
	card.FailedPinAttempts = f.cfg.Security.MaxPinAttempts - 1
	require.NoError(t, f.store.SaveCard(ctx, card))

	// Первая попытка блокирует карту и откатывается; к повтору счетчик уже сброшен
	store := &conflictOnceStore{MemoryStore: f.store}
	store.betweenAttempts = func() {
		c := f.reloadCard(t)
		c.FailedPinAttempts = 0
		require.NoError(t, f.store.SaveCard(ctx, c))
	}

	security := NewCardSecurityService(store, fakeHasher{}, f.events, f.notifier, f.cfg.Security, utils.NewDiscardLogger(), f.metrics)
	security.now = f.clock.Now

	res, err := security.Authenticate(ctx, testCardNumber, "0000")
	require.NoError(t, err)
	assert.Equal(t, 2, store.attempts)
	assert.Equal(t, apperrors.KindInvalidPin, res.Error)
	assert.False(t, res.BlockedNow)
	assert.Equal(t, f.cfg.Security.MaxPinAttempts-1, res.AttemptsRemaining)

	assert.False(t, f.reloadCard(t).IsBlocked)
	assert.EqualValues(t, 0, f.metrics.GetMetricsSnapshot()["blocked_cards"])
	assert.Empty(t, f.eventsOfType(models.SecurityEventCardBlocked))

	select {
	case <-f.notifier.calls:
		t.Fatal("block notification sent for a rolled back attempt")
	case <-time.After(100 * time.Millisecond):
	}
}
