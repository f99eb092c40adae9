package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/middleware"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/scoring"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

func parentIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals(middleware.LocalUserID); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func localString(c *fiber.Ctx, key string) string {
	if v, ok := c.Locals(key).(string); ok {
		return v
	}
	return ""
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := strings.TrimSpace(c.Params(name))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(parsed), nil
}

func parseDayParam(c *fiber.Ctx) (int, error) {
	day, err := strconv.Atoi(strings.TrimSpace(c.Params("dayIndex")))
	if err != nil || day < 1 {
		return 0, errors.New("invalid day index")
	}
	return day, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	if c == nil {
		return &base
	}
	logger := middleware.LoggerFromContext(c.UserContext(), base)
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) []map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]map[string]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
	}
	return details
}

// handleError maps service failures onto the response envelope.
func handleError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	var domainErr *service.DomainError
	var scoringErr *scoring.Error

	switch {
	case errors.As(err, &scoringErr):
		return utils.FailWithCode(c, fiber.StatusUnprocessableEntity, scoringErr.Code, scoringErr.Message, nil)
	case errors.As(err, &domainErr):
		status := fiber.StatusInternalServerError
		switch domainErr.Code {
		case service.CodeDayLocked:
			status = fiber.StatusLocked
		case service.CodeGenerationFailed:
			status = fiber.StatusServiceUnavailable
			requestLogger(logger, c).Warn().Err(err).Msg(action)
		case service.CodeGenerationPending:
			status = fiber.StatusAccepted
		case service.CodeStaleWrite:
			status = fiber.StatusConflict
		}
		return utils.FailWithCode(c, status, domainErr.Code, domainErr.Message, nil)
	case isValidationError(err):
		return utils.FailWithCode(c, fiber.StatusUnprocessableEntity, "VALIDATION_FAILED", "request validation failed", validationDetails(err))
	case errors.Is(err, models.ErrInvalidProgressKey):
		return utils.Fail(c, fiber.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		return utils.Fail(c, fiber.StatusForbidden, err.Error(), nil)
	case errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrParentNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrDayNotFound),
		errors.Is(err, service.ErrAssessmentNotFound):
		return utils.Fail(c, fiber.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrActivePlanExists),
		errors.Is(err, service.ErrProgressCompleted),
		errors.Is(err, service.ErrAssessmentFinalized),
		errors.Is(err, service.ErrStoryNotReady):
		return utils.Fail(c, fiber.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrUnknownQuestion),
		errors.Is(err, service.ErrInvalidRecording):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, service.ErrRecordingTooLarge):
		return utils.Fail(c, fiber.StatusRequestEntityTooLarge, err.Error(), nil)
	case errors.Is(err, service.ErrUploadsDisabled):
		return utils.Fail(c, fiber.StatusServiceUnavailable, err.Error(), nil)
	}

	requestLogger(logger, c).Error().Err(err).Msg(action)
	return utils.Fail(c, fiber.StatusInternalServerError, action, nil)
}

// ParentSession records the authenticated parent before any owned resource is touched.
func ParentSession(students service.StudentService, logger zerolog.Logger) fiber.Handler {
	log := logger.With().Str("component", "parent_session").Logger()
	return func(c *fiber.Ctx) error {
		identity := service.ParentIdentity{
			ID:    parentIDFromContext(c),
			Email: localString(c, middleware.LocalUserEmail),
			Name:  localString(c, middleware.LocalUserName),
		}
		if err := students.EnsureParent(c.UserContext(), identity); err != nil {
			return handleError(c, log, err, "failed to load parent account")
		}
		return c.Next()
	}
}
