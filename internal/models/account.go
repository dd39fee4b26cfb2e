package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a registered user identified by a unique email address.
//
// The three token pairs (email verification, password reset, refresh) are
// nullable: a token is meaningful only while both the value and its expiry are
// set, and consuming a token clears the pair. Each account holds at most one
// outstanding token per kind; regenerating overwrites the previous value.
type Account struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	EmailConfirmed      bool       `gorm:"default:false" json:"email_confirmed"`
	EmailToken          *string    `gorm:"index" json:"-"`
	EmailTokenExpiresAt *time.Time `json:"-"`

	PasswordResetToken          *string    `gorm:"index" json:"-"`
	PasswordResetTokenExpiresAt *time.Time `json:"-"`

	RefreshToken          *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// HasValidEmailToken reports whether the verification token is set and unexpired.
func (a *Account) HasValidEmailToken(now time.Time) bool {
	return a.EmailToken != nil && a.EmailTokenExpiresAt != nil && a.EmailTokenExpiresAt.After(now)
}

// HasValidResetToken reports whether the reset token is set and unexpired.
func (a *Account) HasValidResetToken(now time.Time) bool {
	return a.PasswordResetToken != nil && a.PasswordResetTokenExpiresAt != nil && a.PasswordResetTokenExpiresAt.After(now)
}

// RefreshTokenMatches reports whether the presented refresh token equals the
// stored one and the stored expiry is still in the future.
func (a *Account) RefreshTokenMatches(token string, now time.Time) bool {
	return a.RefreshToken != nil && *a.RefreshToken == token &&
		a.RefreshTokenExpiresAt != nil && a.RefreshTokenExpiresAt.After(now)
}
