package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

// AttemptHandler exposes quiz attempt eligibility and starts. It mounts under /assignments.
type AttemptHandler struct {
	service service.AttemptService
	logger  zerolog.Logger
}

// NewAttemptHandler constructs an attempt handler.
func NewAttemptHandler(service service.AttemptService, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service: service,
		logger:  logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches the attempt routes.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Get("/:id/attempts/eligibility", h.eligibility)
	router.Post("/:id/attempts", h.start)
}

func (h *AttemptHandler) eligibility(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	eligibility, err := h.service.Eligibility(requestContext(c), c.Params("id"), learnerID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "attempt eligibility retrieved", eligibility)
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	attempt, err := h.service.Start(requestContext(c), c.Params("id"), learnerID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", attempt)
}
