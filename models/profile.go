package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContactInfo struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is created together with the user at registration time rather than
// through a model lifecycle hook, so there is exactly one code path that
// builds it.
type Profile struct {
	ID            uuid.UUID    `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID        uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User          User         `gorm:"foreignKey:UserID" json:"-"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Phone         string       `json:"phone"`
	Address       string       `json:"address"`
	ContactInfoID *uuid.UUID   `gorm:"type:uuid" json:"contact_info_id,omitempty"`
	ContactInfo   *ContactInfo `gorm:"foreignKey:ContactInfoID" json:"contact_info,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (ci *ContactInfo) BeforeCreate(tx *gorm.DB) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return nil
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
