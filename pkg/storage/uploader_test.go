package storage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/pkg/storage"
)

func newUploader() *storage.Uploader {
	return storage.New(storage.Config{Logger: zerolog.Nop()})
}

func TestUploadSendsExactContentType(t *testing.T) {
	var gotType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	contentType := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	err := newUploader().Upload(context.Background(), server.URL+"/bucket/essay.docx?X-Amz-Signature=abc", []byte("essay"), contentType)
	require.NoError(t, err)
	require.Equal(t, contentType, gotType)
	require.Equal(t, []byte("essay"), gotBody)
}

func TestUploadReportsServerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newUploader().Upload(context.Background(), server.URL, []byte("x"), "application/pdf")
	require.ErrorIs(t, err, storage.ErrUploadFailed)

	var uploadErr *storage.UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.Equal(t, http.StatusInternalServerError, uploadErr.StatusCode)
	require.False(t, uploadErr.IsTransport())
	require.False(t, uploadErr.IsContentTypeMismatch())
	require.True(t, uploadErr.Retryable())
}

func TestUploadDiagnosesContentTypeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>SignatureDoesNotMatch</Code><Message>The request signature we calculated does not match the signature you provided.</Message></Error>`)
	}))
	defer server.Close()

	err := newUploader().Upload(context.Background(), server.URL, []byte("x"), "text/plain")

	var uploadErr *storage.UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.True(t, uploadErr.IsContentTypeMismatch())
	require.Equal(t, storage.CodeSignatureDoesNotMatch, uploadErr.Code)
	require.False(t, uploadErr.Retryable())
}

func TestUploadDetectsExpiredURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>Request has expired</Message></Error>`)
	}))
	defer server.Close()

	err := newUploader().Upload(context.Background(), server.URL, []byte("x"), "application/pdf")

	var uploadErr *storage.UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.True(t, uploadErr.Expired())
	require.False(t, uploadErr.IsContentTypeMismatch())
}

func TestUploadTransportFailureHasNoStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newUploader().Upload(context.Background(), url, []byte("x"), "application/pdf")

	var uploadErr *storage.UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.True(t, uploadErr.IsTransport())
	require.Zero(t, uploadErr.StatusCode)
	require.True(t, uploadErr.Retryable())
}

func TestUploadCancellationAbortsRequest(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newUploader().Upload(ctx, server.URL, []byte("x"), "application/pdf")
	}()

	<-arrived
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		var uploadErr *storage.UploadError
		require.True(t, errors.As(err, &uploadErr))
		require.False(t, uploadErr.Retryable())
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not abort after cancellation")
	}
}

func TestUploadRejectsMissingContentTypeLocally(t *testing.T) {
	err := newUploader().Upload(context.Background(), "http://127.0.0.1:1/never", []byte("x"), "")
	require.ErrorIs(t, err, storage.ErrUploadFailed)
}
