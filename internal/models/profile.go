package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile holds the mutable presentation data for an account, keyed by the
// account email. Profiles are deleted independently of the account lifecycle.
type Profile struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`

	Avatar            []byte `gorm:"type:blob" json:"-"`
	AvatarContentType string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
