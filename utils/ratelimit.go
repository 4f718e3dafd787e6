package utils

import (
	"sync"
	"time"
)

// RateLimiter ограничивает число запросов на ключ (обычно IP клиента)
// в скользящем окне
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Limit возвращает число запросов, разрешенных в окне
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// prune оставляет только запросы внутри окна; вызывается под блокировкой
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.window)
	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}

// Allow проверяет, разрешен ли запрос, и учитывает его
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	requests := rl.prune(key, now)
	if len(requests) >= rl.limit {
		return false
	}
	rl.requests[key] = append(requests, now)
	return true
}

// GetRemaining возвращает количество оставшихся запросов
func (rl *RateLimiter) GetRemaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	remaining := rl.limit - len(rl.prune(key, rl.now()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime возвращает момент, когда освободится место в окне
func (rl *RateLimiter) GetResetTime(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	requests := rl.prune(key, now)
	if len(requests) == 0 {
		return now
	}
	return requests[0].Add(rl.window)
}

// Cleanup удаляет ключи без запросов в текущем окне
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key := range rl.requests {
		if rl.prune(key, now) == nil {
			removed++
		}
	}
	return removed
}
