package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/readalong-api/internal/service"
	"github.com/noah-isme/readalong-api/internal/utils"
)

// BenchmarkHandler lists the reading benchmarks loaded at startup.
type BenchmarkHandler struct {
	service service.BenchmarkService
}

// NewBenchmarkHandler constructs the handler.
func NewBenchmarkHandler(svc service.BenchmarkService) *BenchmarkHandler {
	return &BenchmarkHandler{service: svc}
}

// Register wires benchmark routes.
func (h *BenchmarkHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *BenchmarkHandler) list(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "benchmarks retrieved", h.service.List(c.UserContext()))
}
