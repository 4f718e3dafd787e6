package controllers

import (
	"net/http"
	"time"

	"atmcore/apperrors"
	"atmcore/middleware"
	"atmcore/services"
	"atmcore/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ValidatePinRequest представляет DTO для входа по карте
type ValidatePinRequest struct {
	CardNumber string `json:"cardNumber" validate:"required,len=16,numeric"`
	Pin        string `json:"pin" validate:"required,len=4,numeric"`
}

// CardInfo - сведения о карте в ответе на вход
type CardInfo struct {
	CardNumber string          `json:"cardNumber"`
	CardType   string          `json:"cardType"`
	Limits     services.Limits `json:"limits"`
}

// ValidatePinResponse - данные открытой сессии
type ValidatePinResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CardInfo  CardInfo  `json:"cardInfo"`
}

// CardController обрабатывает вход по карте и PIN
type CardController struct {
	security *services.CardSecurityService
	sessions *services.SessionService
	limits   *services.LimitService
	validate *validator.Validate
	log      *logrus.Logger
	metrics  *utils.Metrics
}

// NewCardController создает новый экземпляр CardController
func NewCardController(
	security *services.CardSecurityService,
	sessions *services.SessionService,
	limits *services.LimitService,
	log *logrus.Logger,
	metrics *utils.Metrics,
) *CardController {
	return &CardController{
		security: security,
		sessions: sessions,
		limits:   limits,
		validate: newValidator(),
		log:      log,
		metrics:  metrics,
	}
}

// ValidatePin проверяет карту и PIN и открывает сессию
func (cc *CardController) ValidatePin(c *gin.Context) {
	var req ValidatePinRequest
	if err := bindAndValidate(c, cc.validate, &req); err != nil {
		middleware.RespondError(c, cc.log, cc.metrics, err)
		return
	}

	result, err := cc.security.Authenticate(c.Request.Context(), req.CardNumber, req.Pin)
	if err != nil {
		middleware.RespondError(c, cc.log, cc.metrics, err)
		return
	}

	if !result.Valid {
		body := gin.H{
			"success": false,
			"code":    result.Error,
			"message": apperrors.PublicMessage(apperrors.New(result.Error, "")),
		}
		if result.Error == apperrors.KindInvalidPin || result.BlockedNow {
			body["attemptsRemaining"] = result.AttemptsRemaining
		}
		c.JSON(http.StatusUnauthorized, body)
		return
	}

	card := result.Card
	grant, err := cc.sessions.CreateSession(c.Request.Context(), card.ID, card.UserID)
	if err != nil {
		middleware.RespondError(c, cc.log, cc.metrics, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "PIN validated successfully",
		"data": ValidatePinResponse{
			SessionID: grant.SessionID,
			Token:     grant.Token,
			ExpiresAt: grant.ExpiresAt,
			CardInfo: CardInfo{
				CardNumber: card.MaskedNumber(),
				CardType:   card.CardType,
				Limits:     cc.limits.Limits(card),
			},
		},
	})
}
