package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики карт
	SuccessfulLogins  int64
	FailedPinAttempts int64
	InvalidCards      int64
	BlockedCards      int64
	UnblockedCards    int64

	// Метрики операций
	Withdrawals     int64
	Deposits        int64
	RejectedByLimit int64
	WithdrawnAmount float64
	DepositedAmount float64
	LastTransaction time.Time
	SessionsCreated int64
	SessionsClosed  int64
	SessionsExpired int64

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics создает пустой набор метрик
func NewMetrics() *Metrics {
	return &Metrics{ErrorTypes: make(map[string]int64)}
}

// GetMetrics возвращает общий экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest записывает метрики HTTP запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()
	if failed {
		m.FailedRequests++
	}
}

// RecordCardOperation записывает событие проверки карты
func (m *Metrics) RecordCardOperation(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "login":
		m.SuccessfulLogins++
	case "pin_failure":
		m.FailedPinAttempts++
	case "invalid_card":
		m.InvalidCards++
	case "block":
		m.BlockedCards++
	case "unblock":
		m.UnblockedCards++
	}
}

// RecordTransaction записывает завершенную операцию по счету
func (m *Metrics) RecordTransaction(txType string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastTransaction = time.Now()
	switch txType {
	case "WITHDRAWAL":
		m.Withdrawals++
		m.WithdrawnAmount += amount
	case "DEPOSIT":
		m.Deposits++
		m.DepositedAmount += amount
	}
}

// RecordLimitRejection записывает отказ по лимиту
func (m *Metrics) RecordLimitRejection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RejectedByLimit++
}

// RecordSession записывает событие жизненного цикла сессии
func (m *Metrics) RecordSession(event string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event {
	case "created":
		m.SessionsCreated += count
	case "closed":
		m.SessionsClosed += count
	case "expired":
		m.SessionsExpired += count
	}
}

// RecordError записывает ошибку по ее категории
func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrorCount++
	m.LastErrorTime = time.Now()
	if kind == "" {
		kind = "unknown"
	}
	m.ErrorTypes[kind]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":      m.TotalRequests,
		"failed_requests":     m.FailedRequests,
		"average_latency":     m.AverageLatency.String(),
		"successful_logins":   m.SuccessfulLogins,
		"failed_pin_attempts": m.FailedPinAttempts,
		"invalid_cards":       m.InvalidCards,
		"blocked_cards":       m.BlockedCards,
		"unblocked_cards":     m.UnblockedCards,
		"withdrawals":         m.Withdrawals,
		"deposits":            m.Deposits,
		"withdrawn_amount":    m.WithdrawnAmount,
		"deposited_amount":    m.DepositedAmount,
		"rejected_by_limit":   m.RejectedByLimit,
		"sessions_created":    m.SessionsCreated,
		"sessions_closed":     m.SessionsClosed,
		"sessions_expired":    m.SessionsExpired,
		"error_count":         m.ErrorCount,
		"last_error_time":     m.LastErrorTime,
		"error_types":         errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.SuccessfulLogins = 0
	m.FailedPinAttempts = 0
	m.InvalidCards = 0
	m.BlockedCards = 0
	m.UnblockedCards = 0
	m.Withdrawals = 0
	m.Deposits = 0
	m.RejectedByLimit = 0
	m.WithdrawnAmount = 0
	m.DepositedAmount = 0
	m.SessionsCreated = 0
	m.SessionsClosed = 0
	m.SessionsExpired = 0
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}
