package services

import (
	"context"
	"fmt"
	"time"

	"atmcore/config"
	"atmcore/database"
	"atmcore/utils"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MaintenanceScheduler периодически закрывает просроченные сессии и сбрасывает
// дневные счетчики карт. Ленивые проверки в сервисах остаются основными,
// планировщик только убирает накопившееся состояние.
type MaintenanceScheduler struct {
	cron     *cron.Cron
	store    database.Store
	sessions *SessionService
	limits   *LimitService
	log      *logrus.Logger
	now      func() time.Time
	timeout  time.Duration
}

// NewMaintenanceScheduler создает планировщик и регистрирует задачи
func NewMaintenanceScheduler(
	cfg config.SchedulerConfig,
	store database.Store,
	sessions *SessionService,
	limits *LimitService,
	log *logrus.Logger,
) (*MaintenanceScheduler, error) {
	s := &MaintenanceScheduler{
		cron:     cron.New(cron.WithLocation(limits.loc)),
		store:    store,
		sessions: sessions,
		limits:   limits,
		log:      log,
		now:      time.Now,
		timeout:  30 * time.Second,
	}

	if _, err := s.cron.AddFunc(cfg.SessionSweepSpec, s.runSessionSweep); err != nil {
		return nil, fmt.Errorf("invalid session sweep schedule %q: %w", cfg.SessionSweepSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.DailyResetSpec, s.runDailyReset); err != nil {
		return nil, fmt.Errorf("invalid daily reset schedule %q: %w", cfg.DailyResetSpec, err)
	}
	return s, nil
}

// Start запускает планировщик
func (s *MaintenanceScheduler) Start() {
	s.cron.Start()
	s.log.Info("Планировщик обслуживания запущен")
}

// Stop останавливает планировщик и ждет завершения текущих задач
func (s *MaintenanceScheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *MaintenanceScheduler) runSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	_, err := s.SweepSessions(ctx)
	utils.LogOperation(s.log, "session_sweep", start, err)
}

func (s *MaintenanceScheduler) runDailyReset() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	_, err := s.ResetDailyCounters(ctx)
	utils.LogOperation(s.log, "daily_reset", start, err)
}

// SweepSessions закрывает сессии старше окна действия
func (s *MaintenanceScheduler) SweepSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.CloseExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("closed", n).Info("Просроченные сессии закрыты")
	}
	return n, nil
}

// ResetDailyCounters обнуляет счетчики карт, последний сброс которых был до начала суток
func (s *MaintenanceScheduler) ResetDailyCounters(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.store.ResetDailyUsage(ctx, s.limits.StartOfDay(now), now)
	if err != nil {
		return 0, err
	}
	s.log.WithField("cards", n).Info("Дневные счетчики сброшены")
	return n, nil
}
