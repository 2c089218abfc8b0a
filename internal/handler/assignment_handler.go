package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

// AssignmentHandler serves the learner's assignment overview.
type AssignmentHandler struct {
	service   service.AssignmentService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(service service.AssignmentService, validator *validator.Validate, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches the assignment routes.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id/status", h.status)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req dto.AssignmentListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "validation failed", fiber.Map{"field": "skill", "reason": err.Error()})
	}

	ctx := requestContext(c)
	if req.Grouped {
		groups, err := h.service.Grouped(ctx, learnerID, req.Skill)
		if err != nil {
			return handleError(c, h.logger, err)
		}
		return utils.SendSuccess(c, "assignments grouped by skill", groups)
	}

	assignments, err := h.service.List(ctx, learnerID, req.Skill)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "assignments retrieved", assignments)
}

func (h *AssignmentHandler) status(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	status, err := h.service.Status(requestContext(c), c.Params("id"), learnerID)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "assignment status retrieved", status)
}
