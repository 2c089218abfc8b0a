package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

var (
	// ErrValidation marks local validation failures. No network call was made.
	ErrValidation = errors.New("validation failed")
	// ErrAttemptConflict means the backend refused the attempt. Refresh the count from the server.
	ErrAttemptConflict = errors.New("attempt conflict")
	// ErrAttemptLimitReached is an ErrAttemptConflict detected from fresh attempt history.
	ErrAttemptLimitReached = fmt.Errorf("%w: attempt limit reached", ErrAttemptConflict)
	// ErrAttemptOutcomeUnknown means a start may or may not have been recorded.
	ErrAttemptOutcomeUnknown = errors.New("attempt outcome unknown: refresh attempt history before retrying")
	ErrNetwork               = errors.New("backend unavailable")
	ErrAuth                  = errors.New("not authorised")
	ErrUpload                = errors.New("upload failed")
	ErrAssignmentNotFound    = errors.New("assignment not found")
	ErrSubmissionNotFound    = errors.New("submission not found")
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrUploadSessionNotFound = errors.New("upload session not found")
	ErrSubmissionClosed      = errors.New("submission window closed")
	ErrSubmitInProgress      = errors.New("quiz submission already in progress")
)

// ValidationError names the offending field and the reason shown to the learner.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// backendError classifies an LMS client failure into the gateway taxonomy.
// notFound is used for 404 responses and may be nil.
func backendError(op string, err error, notFound error) error {
	var statusErr *lms.StatusError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, lms.ErrNotFound) && notFound != nil:
		return fmt.Errorf("%s: %w: %w", op, notFound, err)
	case errors.Is(err, lms.ErrUnauthorized):
		return fmt.Errorf("%s: %w: %w", op, ErrAuth, err)
	case errors.Is(err, lms.ErrInvalid) && errors.As(err, &statusErr):
		return fmt.Errorf("%s: %w", op, invalid("request", statusErr.Message))
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	}
}

// validationFailure turns struct validation errors into a ValidationError for the first field.
func validationFailure(err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		field := fieldErrors[0]
		return invalid(snakeCase(field.Field()), fmt.Sprintf("failed %s validation", field.Tag()))
	}
	return invalid("request", err.Error())
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && unicode.IsLower(runes[i-1]) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
