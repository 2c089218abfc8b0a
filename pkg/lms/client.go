package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

const maxResponseBytes = 4 << 20

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "lms",
		Name:      "request_duration_seconds",
		Help:      "Duration of LMS backend calls",
	}, []string{"op", "outcome"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "lms",
		Name:      "request_failures_total",
		Help:      "Number of failed LMS backend calls by failure kind",
	}, []string{"op", "kind"})
)

// Config configures the LMS backend client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// Client talks to the LMS backend that owns assignments, attempts and submissions.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// RequestMetadata is forwarded on every backend call made with the context.
type RequestMetadata struct {
	AccessToken   string
	CorrelationID string
}

type metadataKey struct{}

// WithRequestMetadata attaches the learner's credentials and correlation id to ctx.
func WithRequestMetadata(ctx context.Context, md RequestMetadata) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metadataKey{}, md)
}

func metadataFromContext(ctx context.Context) RequestMetadata {
	if md, ok := ctx.Value(metadataKey{}).(RequestMetadata); ok {
		return md
	}
	return RequestMetadata{}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// New constructs a backend client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("lms base url must be provided")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid lms base url: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		tracer: otel.Tracer("github.com/noah-isme/gema-submission-gateway/pkg/lms"),
		logger: cfg.Logger.With().Str("component", "lms_client").Logger(),
	}, nil
}

func (c *Client) GetAssignment(ctx context.Context, assignmentID string) (models.Assignment, error) {
	var assignment models.Assignment
	err := c.do(ctx, "get_assignment", http.MethodGet, c.path("assignments", assignmentID), nil, nil, nil, &assignment)
	return assignment, err
}

func (c *Client) ListAssignments(ctx context.Context, learnerID string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	query := url.Values{"learner_id": {learnerID}}
	err := c.do(ctx, "list_assignments", http.MethodGet, c.path("assignments"), query, nil, nil, &assignments)
	return assignments, err
}

func (c *Client) GetQuestionSet(ctx context.Context, questionSetID string) (models.QuestionSet, error) {
	var set models.QuestionSet
	err := c.do(ctx, "get_question_set", http.MethodGet, c.path("question-sets", questionSetID), nil, nil, nil, &set)
	return set, err
}

// ListAttempts returns the learner's attempt history for an assignment, oldest first.
func (c *Client) ListAttempts(ctx context.Context, assignmentID, learnerID string) ([]models.Attempt, error) {
	var attempts []models.Attempt
	query := url.Values{"learner_id": {learnerID}}
	err := c.do(ctx, "list_attempts", http.MethodGet, c.path("assignments", assignmentID, "attempts"), query, nil, nil, &attempts)
	return attempts, err
}

func (c *Client) GetAttempt(ctx context.Context, attemptID string) (models.Attempt, error) {
	var attempt models.Attempt
	err := c.do(ctx, "get_attempt", http.MethodGet, c.path("attempts", attemptID), nil, nil, nil, &attempt)
	return attempt, err
}

// StartAttempt asks the backend to record a new attempt. The idempotency key is sent as a header.
func (c *Client) StartAttempt(ctx context.Context, req StartAttemptRequest) (models.Attempt, error) {
	var attempt models.Attempt
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	err := c.do(ctx, "start_attempt", http.MethodPost, c.path("assignments", req.AssignmentID, "attempts"), nil, req, headers, &attempt)
	return attempt, err
}

// RegisterSubmission creates the payload-less submission record and returns its presigned upload URL.
func (c *Client) RegisterSubmission(ctx context.Context, req RegisterRequest) (Registration, error) {
	var registration Registration
	err := c.do(ctx, "register_submission", http.MethodPost, c.path("submissions"), nil, req, nil, &registration)
	return registration, err
}

// CompleteUpload attaches the stored object to the submission once the PUT succeeded.
func (c *Client) CompleteUpload(ctx context.Context, submissionID, storeURL string) (models.Submission, error) {
	var submission models.Submission
	body := completeUploadRequest{StoreURL: storeURL}
	err := c.do(ctx, "complete_upload", http.MethodPost, c.path("submissions", submissionID, "complete"), nil, body, nil, &submission)
	return submission, err
}

func (c *Client) SubmitAttempt(ctx context.Context, req SubmitAttemptRequest) (models.Submission, error) {
	var submission models.Submission
	headers := map[string]string{"Idempotency-Key": req.AttemptID}
	err := c.do(ctx, "submit_attempt", http.MethodPost, c.path("attempts", req.AttemptID, "submit"), nil, req, headers, &submission)
	return submission, err
}

func (c *Client) ListSubmissions(ctx context.Context, assignmentID, learnerID string) ([]models.Submission, error) {
	var submissions []models.Submission
	query := url.Values{"learner_id": {learnerID}}
	err := c.do(ctx, "list_submissions", http.MethodGet, c.path("assignments", assignmentID, "submissions"), query, nil, nil, &submissions)
	return submissions, err
}

func (c *Client) DownloadSubmission(ctx context.Context, submissionID string) (Download, error) {
	var download Download
	err := c.do(ctx, "download_submission", http.MethodGet, c.path("submissions", submissionID, "download"), nil, nil, nil, &download)
	return download, err
}

func (c *Client) path(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *Client) do(parent context.Context, op, method, path string, query url.Values, body interface{}, headers map[string]string, out interface{}) error {
	ctx, span := c.tracer.Start(parent, "lms."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("lms.path", path),
	))
	defer span.End()

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lms %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	var delivered atomic.Bool
	traced := httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteHeaders: func() { delivered.Store(true) },
	})

	req, err := http.NewRequestWithContext(traced, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("lms %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	md := metadataFromContext(parent)
	if md.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+md.AccessToken)
	}
	if md.CorrelationID != "" {
		req.Header.Set("X-Correlation-ID", md.CorrelationID)
	}
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		transportErr := &TransportError{Op: op, Delivered: delivered.Load(), Err: err}
		return c.fail(span, op, "transport", start, transportErr)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail(span, op, "read", start, &TransportError{Op: op, Delivered: true, Err: err})
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
		return c.fail(span, op, "status", start, statusErr)
	}
	if decodeErr != nil {
		return c.fail(span, op, "decode", start, fmt.Errorf("lms %s: decode response: %w", op, decodeErr))
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return c.fail(span, op, "decode", start, fmt.Errorf("lms %s: decode data: %w", op, err))
		}
	}

	requestDuration.WithLabelValues(op, "ok").Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return nil
}

func (c *Client) fail(span trace.Span, op, kind string, start time.Time, err error) error {
	requestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
	requestFailures.WithLabelValues(op, kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	event := c.logger.Warn()
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
		event = c.logger.Debug()
	}
	event.Err(err).Str("op", op).Str("kind", kind).Msg("lms request failed")
	return err
}
