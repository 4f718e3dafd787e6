package services

import (
	"context"
	"testing"
	"time"

	"atmcore/config"
	"atmcore/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMaintenanceScheduler_RejectsBadSpec(t *testing.T) {
	f := newFixture(t)
	_, err := NewMaintenanceScheduler(config.SchedulerConfig{
		SessionSweepSpec: "every now and then",
		DailyResetSpec:   "0 0 * * *",
	}, f.store, f.sessions, f.limits, utils.NewDiscardLogger())
	assert.Error(t, err)
}

func TestMaintenanceScheduler_Jobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := NewMaintenanceScheduler(f.cfg.Scheduler, f.store, f.sessions, f.limits, utils.NewDiscardLogger())
	require.NoError(t, err)
	s.now = f.clock.Now

	_, err = f.sessions.CreateSession(ctx, f.card.ID, f.user.ID)
	require.NoError(t, err)
	_, err = f.withdraw(100)
	require.NoError(t, err)

	// Следующие сутки, сессия просрочена
	f.clock.Advance(24 * time.Hour)

	closed, err := s.SweepSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	reset, err := s.ResetDailyCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	card := f.reloadCard(t)
	assert.True(t, card.TodaysWithdrawals.IsZero())
	assert.Equal(t, f.clock.Now(), card.LastResetDate)

	// Повторный сброс в те же сутки ничего не делает
	reset, err = s.ResetDailyCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reset)

	s.Start()
	s.Stop()
}
