// services/user_service.go
package services

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"health-competition-system/models"
	"health-competition-system/utils"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// SearchUsers searches the local CompetitionUser mirror by name or email.
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.CompetitionUser
	db := s.DB.Model(&models.CompetitionUser{}).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(name) LIKE ? OR LOWER(email) LIKE ?",
			searchTerm, searchTerm,
		)
	}

	if err := db.Find(&users).Error; err != nil {
		return respondError(c, err)
	}

	type UserSummary struct {
		ID             string  `json:"id"`
		ExternalUserID string  `json:"external_user_id"`
		Name           string  `json:"name"`
		AvatarURL      *string `json:"avatar_url,omitempty"`
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ID:             u.ID,
			ExternalUserID: u.ExternalUserID,
			Name:           u.Name,
			AvatarURL:      u.AvatarURL,
		}
	}
	return c.JSON(res)
}

// GetUserTransactions handles GET /api/v1/users/:id/transactions.
func (s *UserService) GetUserTransactions(c *fiber.Ctx) error {
	userID := c.Params("id")
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var transactions []models.Transaction
	db := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit)
	if txType := c.Query("type"); txType != "" {
		db = db.Where("type = ?", txType)
	}
	if err := db.Find(&transactions).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(transactions)
}

// UploadAvatar handles POST /api/v1/users/:id/avatar (multipart form,
// field "avatar"). The file goes to object storage and the mirror row keeps
// the resulting URL.
func (s *UserService) UploadAvatar(c *fiber.Ctx) error {
	externalUserID := c.Params("id")

	var user models.CompetitionUser
	if err := s.DB.First(&user, "external_user_id = ?", externalUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, NotFound("user not found"))
		}
		return respondError(c, err)
	}

	fileHeader, err := c.FormFile("avatar")
	if err != nil || fileHeader.Size == 0 {
		return respondError(c, Validation("avatar file is required"))
	}

	ext := filepath.Ext(fileHeader.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "avatars/" + uuid.NewString() + ext
	url, err := utils.UploadFileToStorage(fileHeader, key)
	if err != nil {
		return respondError(c, Upstream("failed to upload avatar"))
	}

	if err := s.DB.Model(&user).Update("avatar_url", url).Error; err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"avatar_url": url})
}
