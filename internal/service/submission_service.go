package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
	"github.com/noah-isme/gema-submission-gateway/internal/repository"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
	"github.com/noah-isme/gema-submission-gateway/pkg/storage"
)

const genericContentType = "application/octet-stream"

var (
	writingExtensions = []string{".docx", ".doc", ".pdf"}
	fileExtensions    = []string{".pdf", ".doc", ".docx", ".txt", ".zip", ".png", ".jpg", ".jpeg", ".ppt", ".pptx", ".xls", ".xlsx"}
)

// SubmissionService registers submissions and delivers their payloads to object storage.
type SubmissionService interface {
	Register(ctx context.Context, learnerID string, req dto.SubmissionRegisterRequest) (dto.SubmissionRegisterResponse, error)
	Submit(ctx context.Context, learnerID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error)
	Complete(ctx context.Context, learnerID, submissionID string) (dto.SubmissionResultResponse, error)
	RetryUpload(ctx context.Context, learnerID, submissionID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error)
	List(ctx context.Context, learnerID, assignmentID string) ([]dto.SubmissionResponse, error)
	Download(ctx context.Context, learnerID, submissionID string) (dto.DownloadResponse, error)
}

// SubmissionConfig tunes the registrar.
type SubmissionConfig struct {
	MaxUploadBytes int64
	SessionTTL     time.Duration
}

type submissionService struct {
	catalog    *AssignmentCatalog
	backend    LMSBackend
	uploader   PayloadUploader
	store      repository.SessionStore
	reconciler *Reconciler
	journal    LifecycleRecorder
	validator  *validator.Validate
	cfg        SubmissionConfig
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewSubmissionService constructs the submission registrar.
func NewSubmissionService(catalog *AssignmentCatalog, backend LMSBackend, uploader PayloadUploader, store repository.SessionStore, reconciler *Reconciler, journal LifecycleRecorder, validate *validator.Validate, cfg SubmissionConfig, logger zerolog.Logger) SubmissionService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	return &submissionService{
		catalog:    catalog,
		backend:    backend,
		uploader:   uploader,
		store:      store,
		reconciler: reconciler,
		journal:    journal,
		validator:  validate,
		cfg:        cfg,
		logger:     logger.With().Str("component", "submission_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-submission-gateway/internal/service/submission"),
		now:        time.Now,
	}
}

func (s *submissionService) Register(ctx context.Context, learnerID string, req dto.SubmissionRegisterRequest) (dto.SubmissionRegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionRegisterResponse{}, validationFailure(err)
	}
	if err := s.checkFile(req.FileName, req.SizeBytes); err != nil {
		return dto.SubmissionRegisterResponse{}, err
	}

	assignment, err := s.submittable(ctx, req.AssignmentID, learnerID, req.FileName)
	if err != nil {
		return dto.SubmissionRegisterResponse{}, err
	}

	session, err := s.register(ctx, assignment, learnerID, req.FileName, resolveContentType(req.FileName, req.ContentType, nil), req.SizeBytes)
	if err != nil {
		return dto.SubmissionRegisterResponse{}, err
	}

	return dto.SubmissionRegisterResponse{
		SubmissionID: session.SubmissionID,
		UploadURL:    session.UploadURL,
		StoreURL:     session.StoreURL,
		ContentType:  session.ContentType,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Submit runs both phases: register, then upload the payload to the presigned URL.
// If the upload fails the registered record stays payload-less and RetryUpload can resume it.
func (s *submissionService) Submit(ctx context.Context, learnerID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("submission.assignment_id", req.AssignmentID),
		attribute.Int64("submission.size_bytes", int64(len(payload))),
	))
	defer span.End()

	result, err := s.submit(ctx, learnerID, req, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *submissionService) submit(ctx context.Context, learnerID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error) {
	started := s.now()
	req.SizeBytes = int64(len(payload))
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResultResponse{}, validationFailure(err)
	}
	if err := s.checkFile(req.FileName, req.SizeBytes); err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	assignment, err := s.submittable(ctx, req.AssignmentID, learnerID, req.FileName)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	session, err := s.register(ctx, assignment, learnerID, req.FileName, resolveContentType(req.FileName, req.ContentType, payload), req.SizeBytes)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	return s.deliver(ctx, assignment, session, payload, started)
}

// Complete finalises an upload the browser performed directly against the presigned URL.
func (s *submissionService) Complete(ctx context.Context, learnerID, submissionID string) (dto.SubmissionResultResponse, error) {
	session, err := s.session(ctx, learnerID, submissionID)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	if session == nil {
		return dto.SubmissionResultResponse{}, ErrUploadSessionNotFound
	}

	assignment, err := s.catalog.Load(ctx, session.AssignmentID)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	submission, err := s.complete(ctx, *session)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	return s.reconciler.Settle(ctx, assignment, session.LearnerID, submission), nil
}

// RetryUpload resumes phase two for a payload-less submission. The cached presigned URL is
// reused while it is valid; an expired or missing one leads to a fresh registration.
func (s *submissionService) RetryUpload(ctx context.Context, learnerID, submissionID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error) {
	started := s.now()
	if len(payload) == 0 {
		return dto.SubmissionResultResponse{}, invalid("file", "file is required")
	}

	session, err := s.session(ctx, learnerID, submissionID)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	if session != nil {
		req.AssignmentID = session.AssignmentID
		if req.FileName == "" {
			req.FileName = session.FileName
		}
	}
	if req.AssignmentID == "" {
		return dto.SubmissionResultResponse{}, ErrUploadSessionNotFound
	}
	req.SizeBytes = int64(len(payload))
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResultResponse{}, validationFailure(err)
	}
	if err := s.checkFile(req.FileName, req.SizeBytes); err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	assignment, err := s.catalog.Load(ctx, req.AssignmentID)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	// The cache is advisory; the backend record decides whether anything is left to do.
	submissions, err := s.backend.ListSubmissions(ctx, assignment.ID, learnerID)
	if err != nil {
		return dto.SubmissionResultResponse{}, backendError("list submissions", err, ErrAssignmentNotFound)
	}
	if listed, ok := models.FindSubmission(submissions, submissionID); ok && listed.HasPayload() {
		s.forgetSession(ctx, submissionID)
		return s.reconciler.Settle(ctx, assignment, learnerID, listed), nil
	}

	if session != nil && !session.Expired(s.now()) {
		result, err := s.deliver(ctx, assignment, *session, payload, started)
		var uploadErr *storage.UploadError
		if err == nil || !errors.As(err, &uploadErr) || !uploadErr.Expired() {
			return result, err
		}
		s.logger.Info().Str("submission_id", submissionID).Msg("presigned url expired, registering again")
	}
	s.forgetSession(ctx, submissionID)

	if err := checkExtension(assignment, req.FileName); err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	// A new registration is a new submission and must respect the window.
	if err := s.submissionWindow(assignment, submissions); err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	fresh, err := s.register(ctx, assignment, learnerID, req.FileName, resolveContentType(req.FileName, req.ContentType, payload), req.SizeBytes)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}
	return s.deliver(ctx, assignment, fresh, payload, started)
}

func (s *submissionService) List(ctx context.Context, learnerID, assignmentID string) ([]dto.SubmissionResponse, error) {
	assignment, err := s.catalog.Load(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	submissions, err := s.backend.ListSubmissions(ctx, assignment.ID, learnerID)
	if err != nil {
		return nil, backendError("list submissions", err, ErrAssignmentNotFound)
	}
	return s.reconciler.Submissions(submissions, assignment.TotalPoints), nil
}

// Download resolves the short-lived link for a stored payload. The backend authorises the caller.
func (s *submissionService) Download(ctx context.Context, learnerID, submissionID string) (dto.DownloadResponse, error) {
	if strings.TrimSpace(submissionID) == "" {
		return dto.DownloadResponse{}, invalid("submission_id", "submission is required")
	}

	download, err := s.backend.DownloadSubmission(ctx, submissionID)
	if err != nil {
		return dto.DownloadResponse{}, backendError("download submission", err, ErrSubmissionNotFound)
	}

	s.logger.Debug().Str("learner_id", learnerID).Str("submission_id", submissionID).Msg("download link issued")
	return dto.DownloadResponse{URL: download.URL, ExpiresAt: download.ExpiresAt}, nil
}

// checkFile runs the rules that need no assignment: name, size and a known extension.
func (s *submissionService) checkFile(fileName string, size int64) error {
	if strings.TrimSpace(fileName) == "" {
		return invalid("file_name", "file name is required")
	}
	if size <= 0 {
		return invalid("file", "file is empty")
	}
	if size > s.cfg.MaxUploadBytes {
		return invalid("file", fmt.Sprintf("file exceeds the %d MB limit", s.cfg.MaxUploadBytes/(1024*1024)))
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !containsString(fileExtensions, ext) && !containsString(writingExtensions, ext) {
		return invalid("file_name", fmt.Sprintf("file type %q is not accepted", ext))
	}
	return nil
}

func (s *submissionService) submissionWindow(assignment models.Assignment, submissions []models.Submission) error {
	now := s.now()
	status := models.DeriveStatus(assignment.DueDate, now, models.LatestDelivered(submissions))
	if !models.CanSubmit(status, assignment.DueDate, now) {
		return fmt.Errorf("%w: assignment is %s", ErrSubmissionClosed, status)
	}
	return nil
}

// submittable loads the assignment and checks that it accepts a file upload right now.
func (s *submissionService) submittable(ctx context.Context, assignmentID, learnerID, fileName string) (models.Assignment, error) {
	assignment, err := s.catalog.Load(ctx, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	if err := checkExtension(assignment, fileName); err != nil {
		return models.Assignment{}, err
	}

	submissions, err := s.backend.ListSubmissions(ctx, assignment.ID, learnerID)
	if err != nil {
		return models.Assignment{}, backendError("list submissions", err, ErrAssignmentNotFound)
	}
	if err := s.submissionWindow(assignment, submissions); err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) register(ctx context.Context, assignment models.Assignment, learnerID, fileName, contentType string, size int64) (models.UploadSession, error) {
	registration, err := s.backend.RegisterSubmission(ctx, lms.RegisterRequest{
		AssignmentID: assignment.ID,
		LearnerID:    learnerID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    size,
	})
	if err != nil {
		observability.Registrations().WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("assignment_id", assignment.ID).Msg("submission registration failed")
		return models.UploadSession{}, backendError("register submission", err, ErrAssignmentNotFound)
	}
	observability.Registrations().WithLabelValues("registered").Inc()

	session := models.UploadSession{
		SubmissionID: registration.SubmissionID,
		AssignmentID: assignment.ID,
		LearnerID:    learnerID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    size,
		UploadURL:    registration.UploadURL,
		StoreURL:     registration.StoreURL,
		ExpiresAt:    registration.ExpiresAt,
	}
	if err := s.store.SaveUploadSession(ctx, session, s.sessionTTL(session)); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", session.SubmissionID).Msg("failed to cache upload session")
	}

	journal(ctx, s.journal, s.logger, LifecycleEntry{
		LearnerID:    learnerID,
		AssignmentID: assignment.ID,
		SubmissionID: session.SubmissionID,
		Action:       models.ActionSubmissionRegistered,
		Metadata:     map[string]interface{}{"file_name": fileName, "content_type": contentType, "size_bytes": size},
	})
	return session, nil
}

func (s *submissionService) deliver(ctx context.Context, assignment models.Assignment, session models.UploadSession, payload []byte, started time.Time) (dto.SubmissionResultResponse, error) {
	if err := s.uploader.Upload(ctx, session.UploadURL, payload, session.ContentType); err != nil {
		observability.Uploads().WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("submission_id", session.SubmissionID).Msg("payload upload failed")

		metadata := map[string]interface{}{"content_type": session.ContentType}
		var uploadErr *storage.UploadError
		if errors.As(err, &uploadErr) {
			metadata["status_code"] = uploadErr.StatusCode
			metadata["transport"] = uploadErr.IsTransport()
			metadata["content_type_mismatch"] = uploadErr.IsContentTypeMismatch()
			metadata["retryable"] = uploadErr.Retryable()
		}
		journal(ctx, s.journal, s.logger, LifecycleEntry{
			LearnerID:    session.LearnerID,
			AssignmentID: session.AssignmentID,
			SubmissionID: session.SubmissionID,
			Action:       models.ActionUploadFailed,
			Metadata:     metadata,
		})
		return dto.SubmissionResultResponse{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	observability.Uploads().WithLabelValues("uploaded").Inc()

	submission, err := s.complete(ctx, session)
	if err != nil {
		return dto.SubmissionResultResponse{}, err
	}

	observability.UploadLatency().WithLabelValues(assignmentType(assignment)).Observe(s.now().Sub(started).Seconds())
	return s.reconciler.Settle(ctx, assignment, session.LearnerID, submission), nil
}

func (s *submissionService) complete(ctx context.Context, session models.UploadSession) (models.Submission, error) {
	submission, err := s.backend.CompleteUpload(ctx, session.SubmissionID, session.StoreURL)
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", session.SubmissionID).Msg("failed to complete upload")
		return models.Submission{}, backendError("complete upload", err, ErrSubmissionNotFound)
	}
	if !submission.HasPayload() && session.StoreURL != "" {
		storeURL := session.StoreURL
		submission.StoredReference = &storeURL
	}
	if submission.ID == "" {
		submission.ID = session.SubmissionID
	}

	s.forgetSession(ctx, session.SubmissionID)
	journal(ctx, s.journal, s.logger, LifecycleEntry{
		LearnerID:    session.LearnerID,
		AssignmentID: session.AssignmentID,
		SubmissionID: submission.ID,
		Action:       models.ActionUploadCompleted,
		Metadata:     map[string]interface{}{"size_bytes": session.SizeBytes},
	})
	s.logger.Info().Str("submission_id", submission.ID).Str("assignment_id", session.AssignmentID).Msg("submission delivered")
	return submission, nil
}

// session returns the cached upload session, or nil when none is cached.
func (s *submissionService) session(ctx context.Context, learnerID, submissionID string) (*models.UploadSession, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, invalid("submission_id", "submission is required")
	}

	session, err := s.store.UploadSession(ctx, submissionID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrCacheMiss):
		return nil, nil
	default:
		s.logger.Warn().Err(err).Str("submission_id", submissionID).Msg("failed to read upload session")
		return nil, nil
	}

	if session.LearnerID != learnerID {
		return nil, ErrUploadSessionNotFound
	}
	return &session, nil
}

func (s *submissionService) forgetSession(ctx context.Context, submissionID string) {
	if err := s.store.DeleteUploadSession(ctx, submissionID); err != nil {
		s.logger.Debug().Err(err).Str("submission_id", submissionID).Msg("failed to drop upload session")
	}
}

func (s *submissionService) sessionTTL(session models.UploadSession) time.Duration {
	if session.ExpiresAt.IsZero() {
		return s.cfg.SessionTTL
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 || ttl > s.cfg.SessionTTL {
		return s.cfg.SessionTTL
	}
	return ttl
}

func checkExtension(assignment models.Assignment, fileName string) error {
	if assignment.Type == models.AssignmentTypeQuiz || assignment.HasQuestionSet() {
		return invalid("assignment_id", "quiz assignments are submitted through an attempt")
	}

	allowed := fileExtensions
	if assignment.Type == models.AssignmentTypeWriting {
		allowed = writingExtensions
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !containsString(allowed, ext) {
		return invalid("file_name", fmt.Sprintf("%s assignments accept %s", assignmentType(assignment), strings.Join(allowed, ", ")))
	}
	return nil
}

// resolveContentType keeps the declared type unless it is missing or generic, then sniffs the
// payload and finally falls back to the extension. The result is sent verbatim on the PUT.
func resolveContentType(fileName, declared string, payload []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != genericContentType {
		return declared
	}
	if len(payload) > 0 {
		detected := mimetype.Detect(payload)
		if !detected.Is(genericContentType) {
			return detected.String()
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		return byExt
	}
	return genericContentType
}

func assignmentType(assignment models.Assignment) string {
	if assignment.Type == "" {
		return models.AssignmentTypeFile
	}
	return assignment.Type
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
