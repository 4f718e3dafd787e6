package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SecurityEventType представляет тип события безопасности
type SecurityEventType string

const (
	SecurityEventLoginSuccess SecurityEventType = "LOGIN_SUCCESS"
	SecurityEventLoginFailure SecurityEventType = "LOGIN_FAILURE"
	SecurityEventPinFailure   SecurityEventType = "PIN_FAILURE"
	SecurityEventCardBlocked  SecurityEventType = "CARD_BLOCKED"
	SecurityEventInvalidCard  SecurityEventType = "INVALID_CARD"
)

// SecurityEvent - запись журнала безопасности, только добавление
type SecurityEvent struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	EventID       string            `gorm:"column:event_id;unique;not null;size:64"`
	CorrelationID string            `gorm:"column:correlation_id;size:64;index"` // ID запроса
	EventType     SecurityEventType `gorm:"column:event_type;type:varchar(20);not null;index"`
	UserID        *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	CardID        *uuid.UUID        `gorm:"column:card_id;type:uuid;index"`
	Description   string            `gorm:"column:description;not null;size:255"`
	Timestamp     time.Time         `gorm:"column:timestamp;not null"`
}

func (SecurityEvent) TableName() string {
	return "security_events"
}

// BeforeCreate назначает идентификаторы перед вставкой
func (e *SecurityEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return nil
}
