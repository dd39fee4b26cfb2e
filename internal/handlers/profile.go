package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/idforge/accountd/internal/models"
	"github.com/idforge/accountd/internal/services"
	appErrors "github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/response"
)

// maxAvatarBytes bounds uploaded avatar size (2 MiB).
const maxAvatarBytes = 2 << 20

// ProfileHandler exposes current-user profile management endpoints. Identity
// is taken from the validated access token placed on the context by the auth
// middleware.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler configures a profile handler with required services.
func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
	Address     *string `json:"address" validate:"omitempty,max=256"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
}

type profilePayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	HasAvatar   bool   `json:"has_avatar"`
}

// Get returns the authenticated user's profile.
// GET /api/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	email, ok := subjectEmail(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, marshalProfile(profile))
}

// Update modifies the authenticated user's profile details.
// PUT /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	email, ok := subjectEmail(c)
	if !ok {
		return
	}

	input := services.UpdateProfileInput{
		DisplayName: body.DisplayName,
		Address:     body.Address,
		Phone:       body.Phone,
	}

	profile, err := h.profiles.Update(requestContext(c), email, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, marshalProfile(profile))
}

// UploadAvatar stores the uploaded avatar image on the profile.
// POST /api/profile/avatar (multipart, field "file")
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	email, ok := subjectEmail(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("avatar file is required"))
		return
	}

	if fileHeader.Size > maxAvatarBytes {
		response.Error(c, appErrors.NewBadRequest("avatar file is too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if len(data) > maxAvatarBytes {
		response.Error(c, appErrors.NewBadRequest("avatar file is too large"))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if err := h.profiles.UploadAvatar(requestContext(c), email, data, contentType); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.AVATAR_UPLOADED")
}

// GetAvatar serves the stored avatar bytes with their original content type.
// GET /api/profile/avatar
func (h *ProfileHandler) GetAvatar(c *gin.Context) {
	email, ok := subjectEmail(c)
	if !ok {
		return
	}

	avatar, err := h.profiles.GetAvatar(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Data(http.StatusOK, avatar.ContentType, avatar.Data)
}

// Delete removes the authenticated user's profile. The account is untouched.
// DELETE /api/profile
func (h *ProfileHandler) Delete(c *gin.Context) {
	email, ok := subjectEmail(c)
	if !ok {
		return
	}

	if err := h.profiles.Delete(requestContext(c), email); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.PROFILE_DELETED")
}

func marshalProfile(p *models.Profile) profilePayload {
	return profilePayload{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Address:     p.Address,
		Phone:       p.Phone,
		HasAvatar:   len(p.Avatar) > 0,
	}
}
