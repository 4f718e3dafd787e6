package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"atmcore/apperrors"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader - заголовок с ID запроса
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID назначает запросу ID и кладет его в контекст для журнала событий
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RateLimit ограничивает частоту запросов группы маршрутов по IP клиента
func RateLimit(limiter *utils.RateLimiter, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			reset := limiter.GetResetTime(clientIP)
			retryAfter := int(time.Until(reset).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"message":    message,
				"retryAfter": fmt.Sprintf("%d seconds", retryAfter),
			})
			return
		}

		// Добавляем заголовки с информацией о лимитах
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(clientIP)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limiter.GetResetTime(clientIP).Unix(), 10))

		c.Next()
	}
}

// Logger логирует запросы и собирает метрики
func Logger(log *logrus.Logger, metrics *utils.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		duration := time.Since(startTime)
		status := c.Writer.Status()
		metrics.RecordRequest(duration, status >= http.StatusBadRequest)

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     status,
			"duration":   duration.String(),
			"client_ip":  c.ClientIP(),
		})

		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("Request failed")
			return
		}
		if status >= http.StatusInternalServerError {
			entry.Error("Request completed")
			return
		}
		entry.Info("Request completed")
	}
}

// Recovery перехватывает панику и отвечает 500 без подробностей
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"request_id": c.GetString(requestIDKey),
					"panic":      fmt.Sprint(err),
				}).Error("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"code":    apperrors.KindInternal,
					"message": apperrors.PublicMessage(nil),
				})
			}
		}()

		c.Next()
	}
}

// CORSMiddleware middleware для CORS
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Session-ID, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RespondError отвечает клиенту категорией ошибки и безопасным сообщением,
// полная ошибка попадает только в лог
func RespondError(c *gin.Context, log *logrus.Logger, metrics *utils.Metrics, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)

	entry := log.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"kind":       kind,
		"error":      err.Error(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Info("Request rejected")
	}
	if metrics != nil {
		metrics.RecordError(string(kind))
	}

	if apperrors.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"code":    kind,
		"message": apperrors.PublicMessage(err),
	})
}
