package storage

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUploadFailed classifies every failure returned by Upload.
var ErrUploadFailed = errors.New("storage upload failed")

// S3-compatible error codes the gateway distinguishes.
const (
	CodeSignatureDoesNotMatch = "SignatureDoesNotMatch"
	CodeAccessDenied          = "AccessDenied"
)

// UploadError describes a failed PUT. StatusCode is zero when the request never produced a response.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("storage upload: transport failure: %v", e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("storage upload: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("storage upload: status %d", e.StatusCode)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is lets callers match any upload failure with errors.Is(err, ErrUploadFailed).
func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

// IsTransport reports a local failure such as a refused connection or cancellation.
func (e *UploadError) IsTransport() bool {
	return e.StatusCode == 0
}

// IsContentTypeMismatch reports that storage rejected the signature, which for a presigned
// PUT almost always means the Content-Type differs from the one used at registration.
func (e *UploadError) IsContentTypeMismatch() bool {
	return e.StatusCode == http.StatusForbidden && e.Code == CodeSignatureDoesNotMatch
}

// Expired reports that the presigned URL is no longer valid and a new registration is needed.
func (e *UploadError) Expired() bool {
	if e.StatusCode != http.StatusForbidden || e.Code != CodeAccessDenied {
		return false
	}
	return strings.Contains(strings.ToLower(e.Message), "expired")
}

// Retryable reports whether re-running the PUT against the same URL can succeed.
func (e *UploadError) Retryable() bool {
	if e.IsTransport() {
		return !errors.Is(e.Err, context.Canceled)
	}
	switch {
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

type s3ErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func parseErrorBody(body []byte) (string, string) {
	var parsed s3ErrorBody
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	return strings.TrimSpace(parsed.Code), strings.TrimSpace(parsed.Message)
}
