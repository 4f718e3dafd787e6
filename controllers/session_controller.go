package controllers

import (
	"net/http"

	"atmcore/apperrors"
	"atmcore/middleware"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionController обрабатывает завершение сессий
type SessionController struct {
	sessions *services.SessionService
	log      *logrus.Logger
	metrics  *utils.Metrics
}

// NewSessionController создает новый экземпляр SessionController
func NewSessionController(sessions *services.SessionService, log *logrus.Logger, metrics *utils.Metrics) *SessionController {
	return &SessionController{
		sessions: sessions,
		log:      log,
		metrics:  metrics,
	}
}

// EndSession завершает сессию и возвращает ее итог
func (sc *SessionController) EndSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		middleware.RespondError(c, sc.log, sc.metrics, apperrors.Validation("sessionId", "must be a valid UUID"))
		return
	}

	summary, err := sc.sessions.EndSession(c.Request.Context(), sessionID)
	if err != nil {
		middleware.RespondError(c, sc.log, sc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session ended successfully",
		"data": gin.H{
			"sessionId":        summary.SessionID,
			"endTime":          summary.EndTime.UTC().Format(timeLayout),
			"duration":         int64(summary.Duration.Seconds()),
			"transactionCount": summary.TransactionCount,
		},
	})
}
