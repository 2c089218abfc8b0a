package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBodyBytes = 64 * 1024

var (
	uploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "storage",
		Name:      "put_duration_seconds",
		Help:      "Duration of presigned PUT requests to object storage",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})

	uploadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "storage",
		Name:      "put_failures_total",
		Help:      "Number of failed presigned PUT requests by failure kind",
	}, []string{"kind"})
)

// Config configures the presigned upload client.
type Config struct {
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// Uploader sends payloads straight to object storage through presigned URLs.
type Uploader struct {
	client *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// New builds an uploader. A zero timeout leaves cancellation to the caller's context.
func New(cfg Config) *Uploader {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Uploader{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		tracer: otel.Tracer("github.com/noah-isme/gema-submission-gateway/pkg/storage"),
		logger: cfg.Logger.With().Str("component", "storage_uploader").Logger(),
	}
}

// Upload PUTs payload to uploadURL with exactly the given Content-Type.
func (u *Uploader) Upload(parent context.Context, uploadURL string, payload []byte, contentType string) error {
	if strings.TrimSpace(uploadURL) == "" {
		return &UploadError{Err: errors.New("upload url is required")}
	}
	if strings.TrimSpace(contentType) == "" {
		return &UploadError{Err: errors.New("content type is required")}
	}

	ctx, span := u.tracer.Start(parent, "storage.upload", trace.WithAttributes(
		attribute.String("upload.content_type", contentType),
		attribute.Int("upload.size_bytes", len(payload)),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(payload))
	if err != nil {
		return u.fail(span, "request", &UploadError{Err: fmt.Errorf("build request: %w", err)})
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		uploadDuration.WithLabelValues("transport_error").Observe(time.Since(start).Seconds())
		return u.fail(span, "transport", &UploadError{Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		uploadDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		return nil
	}

	uploadDuration.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	code, message := parseErrorBody(body)
	uploadErr := &UploadError{StatusCode: resp.StatusCode, Code: code, Message: message}

	kind := "status"
	if uploadErr.IsContentTypeMismatch() {
		kind = "content_type_mismatch"
	} else if uploadErr.Expired() {
		kind = "expired"
	}
	return u.fail(span, kind, uploadErr)
}

func (u *Uploader) fail(span trace.Span, kind string, err *UploadError) error {
	uploadFailures.WithLabelValues(kind).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	event := u.logger.Warn().Err(err).Str("kind", kind)
	if err.StatusCode != 0 {
		event = event.Int("status", err.StatusCode)
	}
	event.Msg("presigned upload failed")
	return err
}
