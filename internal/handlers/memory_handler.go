package handlers

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"memoria/internal/models"
	"memoria/internal/services"
)

// MemoryHandler exposes the memory engine over HTTP.
type MemoryHandler struct {
	memory *services.MemoryService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(memory *services.MemoryService) *MemoryHandler {
	return &MemoryHandler{memory: memory}
}

// Register mounts all memory routes on the app.
func (h *MemoryHandler) Register(app *fiber.App) {
	api := app.Group("/api/memory/:userID")
	api.Post("/messages", h.StoreMessage)
	api.Get("/context", h.GetContext)
	api.Post("/retrieve", h.Retrieve)
	api.Post("/activate", h.Activate)
	api.Post("/consolidate", h.Consolidate)
	api.Get("/retention", h.Retention)
	api.Post("/cleanup", h.Cleanup)
	api.Delete("/", h.DeleteAll)
}

type storeMessageRequest struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// StoreMessage records one conversation turn
// POST /api/memory/:userID/messages
func (h *MemoryHandler) StoreMessage(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req storeMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	item, err := h.memory.StoreMessage(c.Context(), userID, req.Content, req.Role)
	if err != nil {
		return h.renderError(c, "MEMORY", err)
	}

	return c.Status(fiber.StatusCreated).JSON(item)
}

// GetContext returns the recent context window, newest first
// GET /api/memory/:userID/context?limit=
func (h *MemoryHandler) GetContext(c *fiber.Ctx) error {
	userID := c.Params("userID")
	limit := c.QueryInt("limit", 0)

	items, err := h.memory.GetContext(c.Context(), userID, limit)
	if err != nil {
		return h.renderError(c, "CONTEXT", err)
	}
	if items == nil {
		items = []*models.MemoryItem{}
	}

	return c.JSON(fiber.Map{
		"items": items,
		"count": len(items),
	})
}

type retrieveRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Retrieve runs similarity retrieval over long-term memory
// POST /api/memory/:userID/retrieve
func (h *MemoryHandler) Retrieve(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req retrieveRequest
	if err := c.BodyParser(&req); err != nil || req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	result, err := h.memory.RetrieveMemories(c.Context(), userID, req.Query, req.Limit)
	if err != nil {
		return h.renderError(c, "RETRIEVE", err)
	}

	return c.JSON(result)
}

type activateRequest struct {
	Query      string                 `json:"query"`
	Affect     *models.EmotionalState `json:"affect,omitempty"`
	MaxResults int                    `json:"max_results"`
}

// Activate runs spreading activation from the query
// POST /api/memory/:userID/activate
func (h *MemoryHandler) Activate(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req activateRequest
	if err := c.BodyParser(&req); err != nil || req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	activated, err := h.memory.ActivateMemories(c.Context(), userID, req.Query, req.Affect, req.MaxResults)
	if err != nil {
		return h.renderError(c, "ACTIVATE", err)
	}

	return c.JSON(fiber.Map{
		"memories": activated,
		"count":    len(activated),
	})
}

// Consolidate triggers an on-demand consolidation run
// POST /api/memory/:userID/consolidate
func (h *MemoryHandler) Consolidate(c *fiber.Ctx) error {
	userID := c.Params("userID")

	result, err := h.memory.Consolidate(c.Context(), userID)
	if err != nil {
		return h.renderError(c, "CONSOLIDATE", err)
	}

	return c.JSON(result)
}

// Retention returns per-node retention stats, weakest first
// GET /api/memory/:userID/retention?limit=
func (h *MemoryHandler) Retention(c *fiber.Ctx) error {
	userID := c.Params("userID")
	limit := c.QueryInt("limit", 100)

	stats, err := h.memory.RetentionMetrics(c.Context(), userID, limit)
	if err != nil {
		return h.renderError(c, "RETENTION", err)
	}
	if stats == nil {
		stats = []*models.RetentionStat{}
	}

	return c.JSON(fiber.Map{
		"stats": stats,
		"count": len(stats),
	})
}

type cleanupRequest struct {
	RetentionThreshold float64 `json:"retention_threshold"`
	DryRun             bool    `json:"dry_run"`
}

// Cleanup deletes (or previews) forgotten memories
// POST /api/memory/:userID/cleanup
func (h *MemoryHandler) Cleanup(c *fiber.Ctx) error {
	userID := c.Params("userID")

	var req cleanupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.RetentionThreshold <= 0 || req.RetentionThreshold > 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "retention_threshold must be in (0, 1], got " + strconv.FormatFloat(req.RetentionThreshold, 'f', -1, 64),
		})
	}

	result, err := h.memory.Cleanup(c.Context(), userID, req.RetentionThreshold, req.DryRun)
	if err != nil {
		return h.renderError(c, "CLEANUP", err)
	}

	return c.JSON(result)
}

// DeleteAll wipes every memory the engine holds for the user
// DELETE /api/memory/:userID
func (h *MemoryHandler) DeleteAll(c *fiber.Ctx) error {
	userID := c.Params("userID")

	if err := h.memory.CleanupUserData(c.Context(), userID); err != nil {
		return h.renderError(c, "DELETE", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MemoryHandler) renderError(c *fiber.Ctx, tag string, err error) error {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Reason,
		})
	}

	var quota *models.QuotaExceededError
	if errors.As(err, &quota) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":    "Quota exceeded",
			"reset_at": quota.ResetAt,
		})
	}

	log.Printf("❌ [%s] Request failed: %v", tag, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal error",
	})
}
