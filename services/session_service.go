package services

import (
	"context"
	"errors"
	"time"

	"atmcore/apperrors"
	"atmcore/config"
	"atmcore/database"
	"atmcore/models"
	"atmcore/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionGrant - выданная сессия
type SessionGrant struct {
	SessionID uuid.UUID `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionContext - проверенная сессия вместе с картой и пользователем
type SessionContext struct {
	Session *models.Session
	Card    *models.Card
	User    *models.User
}

// SessionSummary - итог завершенной сессии
type SessionSummary struct {
	SessionID        uuid.UUID     `json:"sessionId"`
	EndTime          time.Time     `json:"endTime"`
	Duration         time.Duration `json:"duration"`
	TransactionCount int64         `json:"transactionCount"`
}

// SessionService управляет жизненным циклом сессий
type SessionService struct {
	store   database.Store
	tokens  *TokenService
	window  time.Duration
	metrics *utils.Metrics
	log     *logrus.Logger
	now     func() time.Time
}

// NewSessionService создает новый экземпляр SessionService
func NewSessionService(store database.Store, tokens *TokenService, cfg config.SessionConfig, log *logrus.Logger, metrics *utils.Metrics) *SessionService {
	return &SessionService{
		store:   store,
		tokens:  tokens,
		window:  cfg.ExpirationTime,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

func unauthorized(reason string) error {
	return apperrors.New(apperrors.KindUnauthorized, reason)
}

// CreateSession закрывает открытые сессии карты и открывает новую
func (s *SessionService) CreateSession(ctx context.Context, cardID, userID uuid.UUID) (*SessionGrant, error) {
	now := s.now().UTC()
	var (
		session *models.Session
		closed  int64
	)

	err := s.store.Atomic(ctx, func(tx database.Store) error {
		session, closed = nil, 0

		// Блокировка строки карты сериализует создание сессий одной карты
		if _, err := tx.GetCard(ctx, cardID); err != nil {
			return err
		}

		active, err := tx.ActiveSessionsByCard(ctx, cardID)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"card_id": cardID.String(),
				"error":   err,
			}).Warn("Не удалось получить открытые сессии карты")
		}
		for i := range active {
			active[i].Close(now)
			if err := tx.SaveSession(ctx, &active[i]); err != nil {
				s.log.WithFields(logrus.Fields{
					"session_id": active[i].ID.String(),
					"error":      err,
				}).Warn("Не удалось закрыть предыдущую сессию")
				continue
			}
			closed++
		}

		session = &models.Session{
			CardID:    cardID,
			UserID:    userID,
			StartTime: now,
			IsActive:  true,
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, apperrors.Internal("create session", err)
	}

	token, expiresAt, err := s.tokens.Issue(session.ID, cardID, userID, s.window)
	if err != nil {
		s.closeSession(ctx, session.ID)
		return nil, apperrors.Internal("issue token", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":      session.ID.String(),
		"card_id":         cardID.String(),
		"closed_sessions": closed,
		"request_id":      RequestIDFromContext(ctx),
	}).Info("Сессия создана")
	if s.metrics != nil {
		s.metrics.RecordSession("created", 1)
		s.metrics.RecordSession("closed", closed)
	}

	return &SessionGrant{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateSession проверяет токен и состояние сессии. Сессия старше окна
// действия закрывается до возврата ошибки.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID uuid.UUID, token string) (*SessionContext, error) {
	claims, err := s.tokens.Verify(token)
	if errors.Is(err, ErrTokenExpired) {
		if claims.SessionID == sessionID.String() {
			s.closeSession(ctx, sessionID)
		}
		return nil, unauthorized("token expired")
	}
	if err != nil {
		return nil, unauthorized("invalid token")
	}
	if claims.SessionID != sessionID.String() {
		return nil, unauthorized("session mismatch")
	}

	now := s.now().UTC()
	var (
		session *models.Session
		expired bool
	)
	err = s.store.Atomic(ctx, func(tx database.Store) error {
		expired = false

		var err error
		session, err = tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return nil
		}
		if now.Sub(session.StartTime) > s.window {
			session.Close(now)
			expired = true
			return tx.SaveSession(ctx, session)
		}
		return nil
	})
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil, unauthorized("session not found")
	}
	if err != nil {
		return nil, apperrors.Internal("validate session", err)
	}
	if expired {
		s.log.WithField("session_id", sessionID.String()).Info("Сессия закрыта по таймауту")
		if s.metrics != nil {
			s.metrics.RecordSession("expired", 1)
		}
		return nil, unauthorized("session expired")
	}
	if !session.IsOpen() {
		return nil, unauthorized("session closed")
	}
	if claims.CardID != session.CardID.String() {
		return nil, unauthorized("card mismatch")
	}

	card, err := s.store.GetCard(ctx, session.CardID)
	if err != nil {
		return nil, apperrors.Internal("validate session", err)
	}
	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.Internal("validate session", err)
	}

	return &SessionContext{Session: session, Card: card, User: user}, nil
}

// closeSession закрывает сессию, если она еще открыта; ошибки только логируются
func (s *SessionService) closeSession(ctx context.Context, sessionID uuid.UUID) {
	now := s.now().UTC()
	err := s.store.Atomic(ctx, func(tx database.Store) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return nil
		}
		session.Close(now)
		return tx.SaveSession(ctx, session)
	})
	if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
		s.log.WithFields(logrus.Fields{
			"session_id": sessionID.String(),
			"error":      err,
		}).Warn("Не удалось закрыть сессию")
	}
}

// EndSession завершает сессию по запросу клиента
func (s *SessionService) EndSession(ctx context.Context, sessionID uuid.UUID) (*SessionSummary, error) {
	now := s.now().UTC()
	var summary *SessionSummary

	err := s.store.Atomic(ctx, func(tx database.Store) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !session.IsActive {
			return apperrors.ErrAlreadyEnded
		}

		session.Close(now)
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		count, err := tx.CountTransactionsBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		summary = &SessionSummary{
			SessionID:        sessionID,
			EndTime:          now,
			Duration:         now.Sub(session.StartTime),
			TransactionCount: count,
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("end session", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":   sessionID.String(),
		"duration":     summary.Duration.String(),
		"transactions": summary.TransactionCount,
	}).Info("Сессия завершена")
	if s.metrics != nil {
		s.metrics.RecordSession("closed", 1)
	}
	return summary, nil
}

// CloseExpiredSessions закрывает все сессии старше окна действия
func (s *SessionService) CloseExpiredSessions(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.store.CloseExpiredSessions(ctx, now.Add(-s.window), now)
	if err != nil {
		return 0, apperrors.Internal("close expired sessions", err)
	}
	if n > 0 && s.metrics != nil {
		s.metrics.RecordSession("expired", n)
	}
	return n, nil
}
