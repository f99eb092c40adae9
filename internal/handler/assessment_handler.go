package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

// AssessmentHandler serves timed placement readings.
type AssessmentHandler struct {
	service service.AssessmentService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs the handler. limiter guards passage generation and may be nil.
func NewAssessmentHandler(svc service.AssessmentService, limiter fiber.Handler, logger zerolog.Logger) *AssessmentHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AssessmentHandler{
		service: svc,
		limiter: limiter,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register wires assessment routes.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("", h.limiter, h.create)
	router.Get("/:id", h.get)
	router.Put("/:id/reading", h.saveReading)
	router.Put("/:id/submit", h.submit)
	router.Post("/:id/recording", h.attachRecording)
}

func (h *AssessmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssessmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	assessment, err := h.service.Create(c.UserContext(), parentIDFromContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to create assessment")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment created", assessment)
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	assessment, err := h.service.Get(c.UserContext(), parentIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load assessment")
	}
	return utils.SendSuccess(c, "assessment retrieved", assessment)
}

func (h *AssessmentHandler) saveReading(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.ReadingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	assessment, err := h.service.SaveReading(c.UserContext(), parentIDFromContext(c), id, payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to save reading")
	}
	return utils.SendSuccess(c, "reading saved", assessment)
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	var payload dto.SubmitAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	assessment, err := h.service.Submit(c.UserContext(), parentIDFromContext(c), id, payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to score assessment")
	}
	return utils.SendSuccess(c, "assessment scored", assessment)
}

func (h *AssessmentHandler) attachRecording(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "recording file is required")
	}
	assessment, err := h.service.AttachRecording(c.UserContext(), parentIDFromContext(c), id, file)
	if err != nil {
		return handleError(c, h.logger, err, "failed to store recording")
	}
	return utils.SendSuccess(c, "recording stored", assessment)
}
