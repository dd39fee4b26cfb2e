package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/idforge/accountd/internal/models"
	apperrors "github.com/idforge/accountd/pkg/errors"
)

var (
	// ErrProfileNotFound indicates no profile exists for the identity.
	ErrProfileNotFound = apperrors.New("ERROR.PROFILE_NOT_FOUND", "Profile not found", http.StatusNotFound)
	// ErrAvatarNotFound indicates the profile exists but carries no avatar.
	ErrAvatarNotFound = apperrors.New("ERROR.AVATAR_NOT_FOUND", "Avatar not found", http.StatusNotFound)
)

// UpdateProfileInput enumerates the mutable profile attributes. Nil fields are
// left unchanged.
type UpdateProfileInput struct {
	DisplayName *string
	Address     *string
	Phone       *string
}

// Avatar bundles avatar bytes with their content type.
type Avatar struct {
	Data        []byte
	ContentType string
}

// ProfileService manages profile attributes and the avatar blob. Identity
// arrives as an already-extracted subject email; this service never parses
// tokens.
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService constructs a ProfileService instance.
func NewProfileService(db *gorm.DB) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	return &ProfileService{db: db}, nil
}

// Get loads the profile owned by the given identity.
func (s *ProfileService) Get(ctx context.Context, email string) (*models.Profile, error) {
	return s.findByEmail(ctx, email)
}

// Update applies the supplied attribute changes to the identity's profile.
func (s *ProfileService) Update(ctx context.Context, email string, input UpdateProfileInput) (*models.Profile, error) {
	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}

	if len(updates) == 0 {
		return profile, nil
	}

	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("profile service: update profile: %w", err)
	}

	return s.findByEmail(ctx, email)
}

// UploadAvatar stores the avatar bytes and content type on the profile.
func (s *ProfileService) UploadAvatar(ctx context.Context, email string, data []byte, contentType string) error {
	if len(data) == 0 {
		return apperrors.NewBadRequest("avatar file is empty")
	}

	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"avatar":              data,
		"avatar_content_type": strings.TrimSpace(contentType),
	}
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("profile service: store avatar: %w", err)
	}

	return nil
}

// GetAvatar returns the stored avatar for the identity.
func (s *ProfileService) GetAvatar(ctx context.Context, email string) (Avatar, error) {
	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		return Avatar{}, err
	}

	if len(profile.Avatar) == 0 {
		return Avatar{}, ErrAvatarNotFound
	}

	contentType := profile.AvatarContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return Avatar{Data: profile.Avatar, ContentType: contentType}, nil
}

// Delete removes the identity's profile. The account itself is untouched.
func (s *ProfileService) Delete(ctx context.Context, email string) error {
	profile, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(profile).Error; err != nil {
		return fmt.Errorf("profile service: delete profile: %w", err)
	}

	return nil
}

func (s *ProfileService) findByEmail(ctx context.Context, email string) (*models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var profile models.Profile
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: find profile: %w", err)
	}

	return &profile, nil
}
