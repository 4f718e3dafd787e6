package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"atmcore/apperrors"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// SessionIDHeader - заголовок с ID сессии банкомата
	SessionIDHeader = "X-Session-ID"
	sessionKey      = "atm_session"
)

// SessionValidator проверяет пару (сессия, токен)
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID uuid.UUID, token string) (*services.SessionContext, error)
}

// SessionAuth пропускает запрос только с действующей сессией: X-Session-ID и
// Authorization: Bearer <token>
func SessionAuth(sessions SessionValidator, log *logrus.Logger, metrics *utils.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := c.GetHeader(SessionIDHeader)
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if rawID == "" || token == "" || token == c.GetHeader("Authorization") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    apperrors.KindUnauthorized,
				"message": "Missing authentication credentials",
			})
			return
		}

		sessionID, err := uuid.Parse(rawID)
		if err != nil {
			RespondError(c, log, metrics, apperrors.New(apperrors.KindUnauthorized, "malformed session id"))
			return
		}

		sc, err := sessions.ValidateSession(c.Request.Context(), sessionID, token)
		if err != nil {
			RespondError(c, log, metrics, err)
			return
		}

		c.Set(sessionKey, sc)
		c.Next()
	}
}

// SessionFromContext возвращает сессию, проверенную SessionAuth
func SessionFromContext(c *gin.Context) (*services.SessionContext, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sc, ok := v.(*services.SessionContext)
	return sc, ok
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware логирует запросы служебного сервера (gorilla/mux)
func LoggingMiddleware(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(lrw, r)

			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   lrw.statusCode,
				"duration": time.Since(start).String(),
			}).Debug("Ops request")
		})
	}
}
