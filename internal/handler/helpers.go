package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
	"github.com/noah-isme/gema-submission-gateway/internal/utils"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

// requestContext carries the learner's token and correlation id to the LMS backend.
func requestContext(c *fiber.Ctx) context.Context {
	return backendContext(c.UserContext(), middleware.AccessToken(c), middleware.GetCorrelationID(c))
}

func backendContext(parent context.Context, token, correlationID string) context.Context {
	ctx := middleware.ContextWithCorrelation(parent, correlationID)
	return lms.WithRequestMetadata(ctx, lms.RequestMetadata{
		AccessToken:   token,
		CorrelationID: correlationID,
	})
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// errorStatus maps the service error taxonomy onto HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusUnprocessableEntity, "validation failed"
	case errors.Is(err, service.ErrAuth):
		return fiber.StatusUnauthorized, "not authorised by the learning platform"
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrUploadSessionNotFound):
		return fiber.StatusNotFound, notFoundMessage(err)
	case errors.Is(err, service.ErrAttemptLimitReached):
		return fiber.StatusConflict, "no attempts remaining"
	case errors.Is(err, service.ErrAttemptConflict),
		errors.Is(err, service.ErrSubmitInProgress),
		errors.Is(err, service.ErrSubmissionClosed):
		return fiber.StatusConflict, rootMessage(err)
	case errors.Is(err, service.ErrAttemptOutcomeUnknown):
		return fiber.StatusConflict, service.ErrAttemptOutcomeUnknown.Error()
	case errors.Is(err, service.ErrUpload):
		return fiber.StatusBadGateway, "upload to storage failed, please retry"
	case errors.Is(err, service.ErrNetwork):
		return fiber.StatusBadGateway, "learning platform unavailable, please retry"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusRequestTimeout, "request cancelled"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func notFoundMessage(err error) string {
	for _, target := range []error{
		service.ErrAssignmentNotFound,
		service.ErrSubmissionNotFound,
		service.ErrAttemptNotFound,
		service.ErrUploadSessionNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "not found"
}

func rootMessage(err error) string {
	for _, target := range []error{service.ErrSubmissionClosed, service.ErrSubmitInProgress, service.ErrAttemptConflict} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func handleError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	status, message := errorStatus(err)

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		return utils.Fail(c, status, message, fiber.Map{
			"field":  validationErr.Field,
			"reason": validationErr.Reason,
		})
	}

	log := requestLogger(logger, c)
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", c.Path()).Msg("request rejected")
	}
	return utils.SendError(c, status, message)
}
