package handler

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

// SubmissionHandler manages submission registration, uploads and history.
type SubmissionHandler struct {
	service   service.SubmissionService
	events    service.LifecycleService
	validator *validator.Validate
	logger    zerolog.Logger

	uploadTimeout time.Duration
}

const defaultUploadTimeout = 2 * time.Minute

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, events service.LifecycleService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		events:    events,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),

		uploadTimeout: defaultUploadTimeout,
	}
}

// WithUploadTimeout bounds the proxied uploads. fasthttp does not cancel a request when the
// client goes away, so the deadline is what stops an abandoned upload.
func (h *SubmissionHandler) WithUploadTimeout(timeout time.Duration) *SubmissionHandler {
	if timeout > 0 {
		h.uploadTimeout = timeout
	}
	return h
}

func (h *SubmissionHandler) uploadContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(requestContext(c), h.uploadTimeout)
}

// Register attaches the routes to the provided router group. uploadGuards run before
// the routes that accept a payload.
func (h *SubmissionHandler) Register(router fiber.Router, uploadGuards ...fiber.Handler) {
	guarded := func(handler fiber.Handler) []fiber.Handler {
		chain := make([]fiber.Handler, 0, len(uploadGuards)+1)
		chain = append(chain, uploadGuards...)
		return append(chain, handler)
	}

	router.Get("", h.list)
	router.Post("", guarded(h.upload)...)
	router.Post("/register", guarded(h.register)...)
	router.Get("/events", h.history)
	router.Post("/:id/complete", h.complete)
	router.Post("/:id/retry", guarded(h.retry)...)
	router.Get("/:id/download", h.download)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	submissions, err := h.service.List(requestContext(c), learnerID, strings.TrimSpace(c.Query("assignment_id")))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	req := dto.SubmissionUploadRequest{AssignmentID: strings.TrimSpace(c.FormValue("assignment_id"))}
	payload, err := h.formPayload(c, &req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	ctx, cancel := h.uploadContext(c)
	defer cancel()
	result, err := h.service.Submit(ctx, learnerID, req, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission uploaded", result)
}

func (h *SubmissionHandler) register(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req dto.SubmissionRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	registration, err := h.service.Register(requestContext(c), learnerID, req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission registered", registration)
}

func (h *SubmissionHandler) complete(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	result, err := h.service.Complete(requestContext(c), learnerID, c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission completed", result)
}

func (h *SubmissionHandler) retry(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	req := dto.SubmissionUploadRequest{AssignmentID: strings.TrimSpace(c.FormValue("assignment_id"))}
	payload, err := h.formPayload(c, &req)
	if err != nil {
		return handleError(c, h.logger, err)
	}

	ctx, cancel := h.uploadContext(c)
	defer cancel()
	result, err := h.service.RetryUpload(ctx, learnerID, c.Params("id"), req, payload)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission uploaded", result)
}

func (h *SubmissionHandler) download(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	link, err := h.service.Download(requestContext(c), learnerID, c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "download link created", link)
}

func (h *SubmissionHandler) history(c *fiber.Ctx) error {
	learnerID := middleware.LearnerID(c)
	if learnerID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req dto.LifecycleEventListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}
	req.LearnerID = learnerID

	events, err := h.events.List(c.UserContext(), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return utils.OK(c, events.Items, "submission history retrieved", events.Pagination)
}

// formPayload reads the multipart "file" part. The file name and declared type come from the part header.
func (h *SubmissionHandler) formPayload(c *fiber.Ctx, req *dto.SubmissionUploadRequest) ([]byte, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, &service.ValidationError{Field: "file", Reason: "file is required"}
	}

	payload, err := readFormFile(header)
	if err != nil {
		return nil, &service.ValidationError{Field: "file", Reason: "file could not be read"}
	}

	req.FileName = header.Filename
	req.ContentType = header.Header.Get(fiber.HeaderContentType)
	req.SizeBytes = header.Size
	return payload, nil
}
