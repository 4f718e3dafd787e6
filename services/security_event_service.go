package services

import (
	"context"
	"time"

	"atmcore/database"
	"atmcore/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventDetails - необязательные поля события безопасности
type EventDetails struct {
	UserID      *uuid.UUID
	CardID      *uuid.UUID
	Description string
}

// SecurityEventService ведет журнал событий безопасности
type SecurityEventService struct {
	store database.Store
	log   *logrus.Logger
	now   func() time.Time
}

// NewSecurityEventService создает новый экземпляр SecurityEventService
func NewSecurityEventService(store database.Store, log *logrus.Logger) *SecurityEventService {
	return &SecurityEventService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Record добавляет событие в журнал. Ошибки записи только логируются:
// журнал не должен влиять на исход операции.
func (s *SecurityEventService) Record(ctx context.Context, eventType models.SecurityEventType, details EventDetails) {
	event := &models.SecurityEvent{
		EventID:       uuid.NewString(),
		CorrelationID: RequestIDFromContext(ctx),
		EventType:     eventType,
		UserID:        details.UserID,
		CardID:        details.CardID,
		Description:   details.Description,
		Timestamp:     s.now().UTC(),
	}

	fields := logrus.Fields{
		"event_id":    event.EventID,
		"event_type":  eventType,
		"request_id":  event.CorrelationID,
		"description": details.Description,
	}
	if details.CardID != nil {
		fields["card_id"] = details.CardID.String()
	}
	if details.UserID != nil {
		fields["user_id"] = details.UserID.String()
	}

	if err := s.store.CreateSecurityEvent(ctx, event); err != nil {
		fields["error"] = err
		s.log.WithFields(fields).Error("Не удалось сохранить событие безопасности")
		return
	}
	s.log.WithFields(fields).Warn("Событие безопасности")
}
