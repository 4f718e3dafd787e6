package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FirstName string    `gorm:"column:first_name;not null;size:50"`
	LastName  string    `gorm:"column:last_name;not null;size:50"`
	Email     string    `gorm:"column:email;unique;not null;size:100;index"`
	Phone     string    `gorm:"column:phone;size:20"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate хук для валидации перед созданием
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if len(u.FirstName) < 2 || len(u.FirstName) > 50 {
		return errors.New("first name must be between 2 and 50 characters")
	}
	if len(u.LastName) < 2 || len(u.LastName) > 50 {
		return errors.New("last name must be between 2 and 50 characters")
	}
	if len(u.Email) < 3 || len(u.Email) > 100 {
		return errors.New("email must be between 3 and 100 characters")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// FullName возвращает имя держателя карты
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
