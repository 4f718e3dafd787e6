package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session представляет сеанс работы с банкоматом, привязанный к одной карте.
// Открыт: IsActive и EndTime == nil. Закрытие необратимо.
type Session struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CardID    uuid.UUID  `gorm:"column:card_id;type:uuid;not null;index"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	StartTime time.Time  `gorm:"column:start_time;not null"`
	EndTime   *time.Time `gorm:"column:end_time"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// BeforeCreate назначает идентификатор перед вставкой
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// IsOpen сообщает, что сессия еще не закрыта
func (s *Session) IsOpen() bool {
	return s.IsActive && s.EndTime == nil
}

// Close закрывает сессию в момент now
func (s *Session) Close(now time.Time) {
	s.IsActive = false
	s.EndTime = &now
}
