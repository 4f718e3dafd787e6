package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atmcore/config"
	"atmcore/controllers"
	"atmcore/database"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// storage - хранилище вместе с функцией его закрытия
type storage interface {
	database.Store
	Ping(ctx context.Context) error
	Close() error
}

// app - собранное приложение: API, служебный сервер и фоновые задачи
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	store     storage
	api       *http.Server
	ops       *http.Server
	scheduler *services.MaintenanceScheduler
	limiters  *controllers.Limiters
}

func openStore(cfg *config.Config, log *logrus.Logger) (storage, error) {
	if cfg.DB.Driver == "memory" {
		log.Warn("Используется хранилище в памяти, данные не сохраняются между запусками")
		return database.NewMemoryStore(), nil
	}
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newApp связывает зависимости приложения
func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger, store storage) (*app, error) {
	metrics := utils.GetMetrics()
	hasher := utils.NewScryptHasher()

	// Демо-данные для локального запуска
	if cfg.Seed.Enabled || cfg.DB.Driver == "memory" {
		if err := database.Seed(ctx, store, hasher, cfg.Security.CardHMACKey, log); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	tokens, err := services.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, err
	}

	limits := services.NewLimitService(cfg.Limits)
	events := services.NewSecurityEventService(store, log)
	notifier := services.NewNotifier(cfg.SMTP, log)
	security := services.NewCardSecurityService(store, hasher, events, notifier, cfg.Security, log, metrics)
	sessions := services.NewSessionService(store, tokens, cfg.Session, log, metrics)
	atm := services.NewATMService(store, limits, cfg.Session, log, metrics)

	a := &app{cfg: cfg, log: log, store: store}

	if cfg.Scheduler.Enabled {
		a.scheduler, err = services.NewMaintenanceScheduler(cfg.Scheduler, store, sessions, limits, log)
		if err != nil {
			return nil, err
		}
	}

	a.limiters = controllers.NewLimiters(cfg.RateLimit)
	router := controllers.NewRouter(controllers.Dependencies{
		Security: security,
		Sessions: sessions,
		ATM:      atm,
		Limits:   limits,
		Log:      log,
		Metrics:  metrics,
	}, a.limiters)

	a.api = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	opsRouter := controllers.NewOpsRouter(controllers.NewOpsController(store, security, metrics, log), log)
	a.ops = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// run запускает серверы и ждет отмены контекста
func (a *app) run(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	go a.cleanupLimiters(ctx)

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{a.api, a.ops} {
		srv := srv
		go func() {
			a.log.WithField("addr", srv.Addr).Info("Сервер запущен")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Получен сигнал завершения")
	case runErr = <-errCh:
		a.log.WithError(runErr).Error("Сервер остановлен с ошибкой")
	}

	return errors.Join(runErr, a.shutdown())
}

// cleanupLimiters периодически очищает окна ограничителей частоты
func (a *app) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.RateLimit.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiters.Cleanup(); n > 0 {
				a.log.WithField("keys", n).Debug("Ограничители очищены")
			}
		}
	}
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := a.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if err := a.ops.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ops shutdown: %w", err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	log := utils.NewLogger(cfg.Log)
	gin.SetMode(gin.ReleaseMode)

	// Инициализируем хранилище
	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, store)
	if err != nil {
		_ = store.Close()
		log.Fatalf("Ошибка инициализации приложения: %v", err)
	}

	if err := a.run(ctx); err != nil {
		log.WithError(err).Error("Приложение завершилось с ошибкой")
		os.Exit(1)
	}
	log.Info("Приложение остановлено")
}
