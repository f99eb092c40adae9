package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

// StudentHandler exposes the parent's children and their per-student listings.
type StudentHandler struct {
	students    service.StudentService
	plans       service.PlanService
	assessments service.AssessmentService
	logger      zerolog.Logger
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(students service.StudentService, plans service.PlanService, assessments service.AssessmentService, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		students:    students,
		plans:       plans,
		assessments: assessments,
		logger:      logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register wires student routes.
func (h *StudentHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/plans", h.planList)
	router.Get("/:id/assessments", h.assessmentList)
}

func (h *StudentHandler) create(c *fiber.Ctx) error {
	var payload dto.StudentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.students.Create(c.UserContext(), parentIDFromContext(c), payload)
	if err != nil {
		return handleError(c, h.logger, err, "failed to create student")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student created", student)
}

func (h *StudentHandler) list(c *fiber.Ctx) error {
	students, err := h.students.List(c.UserContext(), parentIDFromContext(c))
	if err != nil {
		return handleError(c, h.logger, err, "failed to list students")
	}
	return utils.OK(c, students, "students retrieved", fiber.Map{"total": len(students)})
}

func (h *StudentHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	student, err := h.students.Get(c.UserContext(), parentIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load student")
	}
	return utils.SendSuccess(c, "student retrieved", student)
}

func (h *StudentHandler) planList(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	plans, err := h.plans.ListByStudent(c.UserContext(), parentIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err, "failed to list plans")
	}
	return utils.OK(c, plans, "plans retrieved", fiber.Map{"total": len(plans)})
}

func (h *StudentHandler) assessmentList(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	assessments, err := h.assessments.ListByStudent(c.UserContext(), parentIDFromContext(c), id)
	if err != nil {
		return handleError(c, h.logger, err, "failed to list assessments")
	}
	return utils.OK(c, assessments, "assessments retrieved", fiber.Map{"total": len(assessments)})
}
