package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

// ActivityHandler records answers and completions addressed by progress key.
type ActivityHandler struct {
	ledger service.LedgerService
	plans  service.PlanService
	logger zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(ledger service.LedgerService, plans service.PlanService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		ledger: ledger,
		plans:  plans,
		logger: logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register wires activity routes.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/:progressKey", h.progress)
	router.Get("/:progressKey/status", h.status)
	router.Post("/:progressKey/responses", h.recordResponse)
	router.Post("/:progressKey/complete", h.complete)
}

func (h *ActivityHandler) progress(c *fiber.Ctx) error {
	key, err := models.ParseProgressKey(c.Params("progressKey"))
	if err != nil {
		return handleError(c, h.logger, err, "invalid progress key")
	}
	progress, err := h.ledger.GetProgress(c.UserContext(), parentIDFromContext(c), key)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load progress")
	}
	return utils.SendSuccess(c, "progress retrieved", progress)
}

func (h *ActivityHandler) status(c *fiber.Ctx) error {
	key, err := models.ParseProgressKey(c.Params("progressKey"))
	if err != nil {
		return handleError(c, h.logger, err, "invalid progress key")
	}
	status, err := h.plans.ContentStatus(c.UserContext(), parentIDFromContext(c), key)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load content status")
	}
	return utils.SendSuccess(c, "content status retrieved", status)
}

func (h *ActivityHandler) recordResponse(c *fiber.Ctx) error {
	key, err := models.ParseProgressKey(c.Params("progressKey"))
	if err != nil {
		return handleError(c, h.logger, err, "invalid progress key")
	}
	var payload dto.RecordResponseRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	progress, err := h.ledger.RecordResponse(c.UserContext(), parentIDFromContext(c), key, payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to record response")
	}
	return utils.SendSuccess(c, "response recorded", progress)
}

func (h *ActivityHandler) complete(c *fiber.Ctx) error {
	key, err := models.ParseProgressKey(c.Params("progressKey"))
	if err != nil {
		return handleError(c, h.logger, err, "invalid progress key")
	}
	var payload dto.CompleteActivityRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	completion, err := h.ledger.MarkComplete(c.UserContext(), parentIDFromContext(c), key, payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to complete activity")
	}
	return utils.SendSuccess(c, "activity completed", completion)
}
