package controllers

import (
	"time"

	"atmcore/config"
	"atmcore/middleware"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const timeLayout = time.RFC3339

// Dependencies - сервисы, которые нужны API
type Dependencies struct {
	Security *services.CardSecurityService
	Sessions *services.SessionService
	ATM      *services.ATMService
	Limits   *services.LimitService
	Log      *logrus.Logger
	Metrics  *utils.Metrics
}

// Limiters - ограничители частоты запросов по группам маршрутов
type Limiters struct {
	General     *utils.RateLimiter
	Auth        *utils.RateLimiter
	Transaction *utils.RateLimiter
	Session     *utils.RateLimiter
}

// NewLimiters создает ограничители из конфигурации
func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	return &Limiters{
		General:     utils.NewRateLimiter(cfg.General, cfg.Window),
		Auth:        utils.NewRateLimiter(cfg.Auth, cfg.Window),
		Transaction: utils.NewRateLimiter(cfg.Transaction, cfg.Window),
		Session:     utils.NewRateLimiter(cfg.Session, cfg.Window),
	}
}

// Cleanup удаляет устаревшие записи всех ограничителей
func (l *Limiters) Cleanup() int {
	return l.General.Cleanup() + l.Auth.Cleanup() + l.Transaction.Cleanup() + l.Session.Cleanup()
}

// NewRouter собирает gin роутер API
func NewRouter(deps Dependencies, limiters *Limiters) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(deps.Log),
		middleware.Logger(deps.Log, deps.Metrics),
		middleware.CORSMiddleware(),
		middleware.RateLimit(limiters.General, "Too many requests from this IP, please try again later"),
	)

	cardController := NewCardController(deps.Security, deps.Sessions, deps.Limits, deps.Log, deps.Metrics)
	transactionController := NewTransactionController(deps.ATM, deps.Log, deps.Metrics)
	sessionController := NewSessionController(deps.Sessions, deps.Log, deps.Metrics)

	api := router.Group("/api")

	// Вход по карте
	cards := api.Group("/cards")
	cards.Use(middleware.RateLimit(limiters.Auth, "Too many authentication attempts, please try again later"))
	cards.POST("/validate-pin", cardController.ValidatePin)

	// Операции в рамках сессии
	authenticated := api.Group("")
	authenticated.Use(
		middleware.RateLimit(limiters.Transaction, "Too many transaction requests, please try again later"),
		middleware.SessionAuth(deps.Sessions, deps.Log, deps.Metrics),
	)
	authenticated.POST("/transactions/withdraw", transactionController.Withdraw)
	authenticated.POST("/transactions/deposit", transactionController.Deposit)
	authenticated.POST("/transactions/balance", transactionController.Balance)
	authenticated.GET("/transactions/recent", transactionController.Recent)
	authenticated.GET("/accounts/linked", transactionController.LinkedAccount)

	// Завершение сессии
	sessions := api.Group("/sessions")
	sessions.Use(middleware.RateLimit(limiters.Session, "Too many session requests, please try again later"))
	sessions.DELETE("/:sessionId", sessionController.EndSession)

	return router
}
