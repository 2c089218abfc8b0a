package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
)

func multipartBody(t *testing.T, fields map[string]string, fileName, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileName != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmissionUploadReadsMultipartFile(t *testing.T) {
	services := newTestServices()
	services.submissions.result = dto.SubmissionResultResponse{
		Submission: dto.SubmissionResponse{ID: "sub-1", AssignmentID: "essay-1", HasPayload: true},
		Status:     "submitted",
		CanSubmit:  true,
	}
	app := setupApp(t, services, true)

	payload := []byte("%PDF-1.4 essay")
	body, contentType := multipartBody(t, map[string]string{"assignment_id": "essay-1"}, "essay.pdf", "application/pdf", payload)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)

	resp, raw := doRequest(t, app, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "essay-1", services.submissions.req.AssignmentID)
	require.Equal(t, "essay.pdf", services.submissions.req.FileName)
	require.Equal(t, "application/pdf", services.submissions.req.ContentType)
	require.Equal(t, int64(len(payload)), services.submissions.req.SizeBytes)
	require.Equal(t, payload, services.submissions.payload)

	var decoded struct {
		Success bool                         `json:"success"`
		Data    dto.SubmissionResultResponse `json:"data"`
		Message string                       `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.True(t, decoded.Success)
	require.Equal(t, "submission uploaded", decoded.Message)
	require.Equal(t, "submitted", decoded.Data.Status)
	require.False(t, decoded.Data.Stale)
}

func TestSubmissionUploadWithoutFileNeverReachesService(t *testing.T) {
	services := newTestServices()
	app := setupApp(t, services, true)

	body, contentType := multipartBody(t, map[string]string{"assignment_id": "essay-1"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)

	resp, raw := doRequest(t, app, req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Zero(t, services.submissions.calls)

	var decoded struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "file", decoded.Details["field"])
}

func TestSubmissionRetryUsesPathIdentifier(t *testing.T) {
	services := newTestServices()
	app := setupApp(t, services, true)

	body, contentType := multipartBody(t, nil, "report.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK\x03\x04"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/sub-7/retry", body)
	req.Header.Set("Content-Type", contentType)

	resp, _ := doRequest(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "sub-7", services.submissions.retryID)
	require.Empty(t, services.submissions.req.AssignmentID)
	require.Equal(t, "report.docx", services.submissions.req.FileName)
}

func TestSubmissionProxiedUploadsCarryDeadline(t *testing.T) {
	services := newTestServices()
	app := setupApp(t, services, true)

	body, contentType := multipartBody(t, map[string]string{"assignment_id": "essay-1"}, "essay.pdf", "application/pdf", []byte("%PDF-1.4 essay"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	resp, _ := doRequest(t, app, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, services.submissions.hasDeadline)
	require.WithinDuration(t, time.Now().Add(2*time.Minute), services.submissions.deadline, 10*time.Second)

	services.submissions.hasDeadline = false
	body, contentType = multipartBody(t, nil, "essay.pdf", "application/pdf", []byte("%PDF-1.4 essay"))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/submissions/sub-7/retry", body)
	req.Header.Set("Content-Type", contentType)
	resp, _ = doRequest(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, services.submissions.hasDeadline)
}

func TestSubmissionRegisterReturnsPresignedURL(t *testing.T) {
	app := setupApp(t, newTestServices(), true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/register", bytes.NewBufferString(`{"assignment_id":"essay-1","file_name":"essay.pdf","size_bytes":12}`))
	req.Header.Set("Content-Type", "application/json")

	resp, raw := doRequest(t, app, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var decoded struct {
		Data dto.SubmissionRegisterResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "sub-1", decoded.Data.SubmissionID)
	require.Equal(t, "https://bucket.test/put", decoded.Data.UploadURL)
}

func TestSubmissionHistoryIsScopedToLearner(t *testing.T) {
	services := newTestServices()
	app := setupApp(t, services, true)

	resp, raw := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/events?page=2&page_size=5&action=upload.failed&learner_id=someone-else", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testLearner, services.events.req.LearnerID)
	require.Equal(t, 2, services.events.req.Page)
	require.Equal(t, 5, services.events.req.PageSize)
	require.Equal(t, "upload.failed", services.events.req.Action)

	var decoded struct {
		Data []dto.LifecycleEventResponse `json:"data"`
		Meta dto.PaginationMeta           `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Data, 1)
	require.Equal(t, int64(1), decoded.Meta.TotalItems)
}

func TestSubmissionDownload(t *testing.T) {
	app := setupApp(t, newTestServices(), true)

	resp, raw := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/sub-1/download", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Data dto.DownloadResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "https://bucket.test/get", decoded.Data.URL)
}
