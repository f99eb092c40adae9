package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

const (
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	localStreamPlanID  = "stream_plan_id"
)

// PlanHandler serves multi-day plans, their days and the live progress stream.
type PlanHandler struct {
	plans   service.PlanService
	ledger  service.LedgerService
	events  service.ProgressEventBus
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewPlanHandler constructs the handler. limiter guards story generation and may be nil.
func NewPlanHandler(plans service.PlanService, ledger service.LedgerService, events service.ProgressEventBus, limiter fiber.Handler, logger zerolog.Logger) *PlanHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &PlanHandler{
		plans:   plans,
		ledger:  ledger,
		events:  events,
		limiter: limiter,
		logger:  logger.With().Str("component", "plan_handler").Logger(),
	}
}

// Register wires plan routes.
func (h *PlanHandler) Register(router fiber.Router) {
	router.Post("", h.limiter, h.create)
	router.Get("/:planId", h.get)
	router.Post("/:planId/story", h.limiter, h.regenerateStory)
	router.Get("/:planId/days/:dayIndex", h.day)
	router.Get("/:planId/days/:dayIndex/progress", h.dayProgress)
	router.Get("/:planId/stream", h.streamUpgrade, websocket.New(h.stream))
}

func (h *PlanHandler) create(c *fiber.Ctx) error {
	var payload dto.PlanCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	plan, err := h.plans.Create(c.UserContext(), parentIDFromContext(c), payload)
	if err != nil {
		if errors.Is(err, service.ErrGenerationFailed) && plan.ID != 0 {
			requestLogger(h.logger, c).Warn().Err(err).Uint("plan_id", plan.ID).Msg("plan created without story")
			return utils.FailWithCode(c, fiber.StatusServiceUnavailable, service.CodeGenerationFailed,
				"the plan was saved but its story could not be written, retry the story", plan)
		}
		return handleError(c, h.logger, err, "failed to create plan")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "plan created", plan)
}

func (h *PlanHandler) get(c *fiber.Ctx) error {
	planID, err := parseIDParam(c, "planId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	plan, err := h.plans.Get(c.UserContext(), parentIDFromContext(c), planID)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load plan")
	}
	return utils.SendSuccess(c, "plan retrieved", plan)
}

func (h *PlanHandler) regenerateStory(c *fiber.Ctx) error {
	planID, err := parseIDParam(c, "planId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	plan, err := h.plans.RegenerateStory(c.UserContext(), parentIDFromContext(c), planID)
	if err != nil {
		return handleError(c, h.logger, err, "failed to write story")
	}
	return utils.SendSuccess(c, "story ready", plan)
}

func (h *PlanHandler) day(c *fiber.Ctx) error {
	planID, err := parseIDParam(c, "planId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	dayIndex, err := parseDayParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	view, err := h.plans.GetDay(c.UserContext(), parentIDFromContext(c), planID, dayIndex)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load day")
	}
	return utils.SendSuccess(c, "day retrieved", view)
}

func (h *PlanHandler) dayProgress(c *fiber.Ctx) error {
	planID, err := parseIDParam(c, "planId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	dayIndex, err := parseDayParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	progress, err := h.ledger.DayProgress(c.UserContext(), parentIDFromContext(c), planID, dayIndex)
	if err != nil {
		return handleError(c, h.logger, err, "failed to load progress")
	}
	return utils.SendSuccess(c, "progress retrieved", progress)
}

func (h *PlanHandler) streamUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	planID, err := parseIDParam(c, "planId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if _, err := h.plans.Owned(c.UserContext(), parentIDFromContext(c), planID); err != nil {
		return handleError(c, h.logger, err, "failed to open progress stream")
	}
	c.Locals(localStreamPlanID, planID)
	return c.Next()
}

func (h *PlanHandler) stream(conn *websocket.Conn) {
	planID, _ := conn.Locals(localStreamPlanID).(uint)
	events, cancel := h.events.Subscribe(planID)
	defer cancel()
	defer func() { _ = conn.Close() }()

	h.logger.Info().Uint("plan_id", planID).Msg("progress stream connected")
	defer h.logger.Info().Uint("plan_id", planID).Msg("progress stream disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Uint("plan_id", planID).Msg("progress stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		}
	}
}
