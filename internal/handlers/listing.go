package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yudapramadita/lokapasar/internal/models"
)

// ListingHandler is a minimal listing surface: enough for conversations and
// transactions to hang off real rows. The full posting/search/map UX lives
// elsewhere.
type ListingHandler struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewListingHandler(db *gorm.DB, log *zap.Logger) *ListingHandler {
	return &ListingHandler{DB: db, Log: log}
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req struct {
		Title    string `json:"title"`
		Category string `json:"category"`
		Price    int64  `json:"price"`
		Content  string `json:"content"`
		Region   string `json:"region"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		return fail(c, fiber.StatusBadRequest, "Title is required")
	}

	listing := models.Listing{
		UserID:   userUUID,
		Title:    strings.TrimSpace(req.Title),
		Category: models.ListingCategory(req.Category),
		Price:    req.Price,
		Content:  req.Content,
		Region:   req.Region,
	}
	if err := h.DB.Create(&listing).Error; err != nil {
		h.Log.Error("listing: create", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to create listing")
	}

	return c.JSON(fiber.Map{"success": true, "data": listing})
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	var listing models.Listing
	if err := h.DB.Preload("User").First(&listing, "id = ?", c.Params("id")).Error; err != nil {
		return fail(c, fiber.StatusNotFound, "Listing not found")
	}
	return c.JSON(fiber.Map{"success": true, "data": listing})
}
