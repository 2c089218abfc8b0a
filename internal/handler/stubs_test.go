package handler_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/internal/config"
	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/handler"
	"github.com/noah-isme/gema-submission-gateway/internal/middleware"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/router"
	"github.com/noah-isme/gema-submission-gateway/internal/service"
)

const testLearner = "learner-1"

type stubAssignmentService struct {
	status dto.AssignmentStatusResponse
	list   []dto.AssignmentStatusResponse
	groups []dto.SkillGroupResponse
	err    error
	skill  string
}

func (s *stubAssignmentService) Status(context.Context, string, string) (dto.AssignmentStatusResponse, error) {
	return s.status, s.err
}

func (s *stubAssignmentService) List(_ context.Context, _ string, skill string) ([]dto.AssignmentStatusResponse, error) {
	s.skill = skill
	return s.list, s.err
}

func (s *stubAssignmentService) Grouped(_ context.Context, _ string, skill string) ([]dto.SkillGroupResponse, error) {
	s.skill = skill
	return s.groups, s.err
}

type stubAttemptService struct {
	attempt dto.AttemptResponse
	err     error
	ctx     context.Context
}

func (s *stubAttemptService) Eligibility(_ context.Context, assignmentID, _ string) (dto.AttemptEligibilityResponse, error) {
	return dto.AttemptEligibilityResponse{AssignmentID: assignmentID, CanStart: s.err == nil}, s.err
}

func (s *stubAttemptService) Start(ctx context.Context, _ string, _ string) (dto.AttemptResponse, error) {
	s.ctx = ctx
	return s.attempt, s.err
}

type stubSubmissionService struct {
	req     dto.SubmissionUploadRequest
	payload []byte
	retryID string
	calls   int
	result  dto.SubmissionResultResponse
	err     error

	deadline    time.Time
	hasDeadline bool
}

func (s *stubSubmissionService) Register(context.Context, string, dto.SubmissionRegisterRequest) (dto.SubmissionRegisterResponse, error) {
	s.calls++
	return dto.SubmissionRegisterResponse{SubmissionID: "sub-1", UploadURL: "https://bucket.test/put"}, s.err
}

func (s *stubSubmissionService) Submit(ctx context.Context, _ string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error) {
	s.calls++
	s.deadline, s.hasDeadline = ctx.Deadline()
	s.req = req
	s.payload = payload
	return s.result, s.err
}

func (s *stubSubmissionService) Complete(context.Context, string, string) (dto.SubmissionResultResponse, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubSubmissionService) RetryUpload(ctx context.Context, _ string, submissionID string, req dto.SubmissionUploadRequest, payload []byte) (dto.SubmissionResultResponse, error) {
	s.calls++
	s.deadline, s.hasDeadline = ctx.Deadline()
	s.retryID = submissionID
	s.req = req
	s.payload = payload
	return s.result, s.err
}

func (s *stubSubmissionService) List(context.Context, string, string) ([]dto.SubmissionResponse, error) {
	s.calls++
	return []dto.SubmissionResponse{s.result.Submission}, s.err
}

func (s *stubSubmissionService) Download(context.Context, string, string) (dto.DownloadResponse, error) {
	s.calls++
	return dto.DownloadResponse{URL: "https://bucket.test/get"}, s.err
}

type stubLifecycleService struct {
	req dto.LifecycleEventListRequest
}

func (s *stubLifecycleService) Record(context.Context, service.LifecycleEntry) (models.LifecycleEvent, error) {
	return models.LifecycleEvent{}, nil
}

func (s *stubLifecycleService) List(_ context.Context, req dto.LifecycleEventListRequest) (dto.LifecycleEventListResponse, error) {
	s.req = req
	return dto.LifecycleEventListResponse{
		Items:      []dto.LifecycleEventResponse{{ID: 1, AssignmentID: "a-1", Action: "upload.completed"}},
		Pagination: dto.PaginationMeta{Page: 1, PageSize: 20, TotalItems: 1, TotalPages: 1},
	}, nil
}

type stubQuizService struct {
	answers map[string]interface{}
	reason  string
	frames  []dto.TimerFrame
	openErr error
}

func (s *stubQuizService) SaveDraft(_ context.Context, attemptID, _ string, req dto.QuizDraftRequest) (dto.QuizDraftResponse, error) {
	return dto.QuizDraftResponse{AttemptID: attemptID, AnswerCount: len(req.Answers)}, nil
}

func (s *stubQuizService) Submit(_ context.Context, _ string, _ string, answers map[string]interface{}, reason string) (dto.SubmissionResultResponse, error) {
	s.answers = answers
	s.reason = reason
	return dto.SubmissionResultResponse{Status: "submitted"}, nil
}

func (s *stubQuizService) OpenTimer(_ context.Context, _ string, _ string, emit func(dto.TimerFrame)) (*service.QuizTimer, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	for _, frame := range s.frames {
		emit(frame)
	}
	timer := service.NewQuizTimer(service.QuizTimerConfig{})
	timer.Start()
	return timer, nil
}

type testServices struct {
	assignments *stubAssignmentService
	attempts    *stubAttemptService
	submissions *stubSubmissionService
	events      *stubLifecycleService
	quiz        *stubQuizService
}

func newTestServices() *testServices {
	return &testServices{
		assignments: &stubAssignmentService{},
		attempts:    &stubAttemptService{},
		submissions: &stubSubmissionService{},
		events:      &stubLifecycleService{},
		quiz:        &stubQuizService{},
	}
}

func setupApp(t *testing.T, services *testServices, authenticated bool) *fiber.App {
	t.Helper()

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	app := fiber.New()
	middleware.Register(app, middleware.Config{})

	deps := router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(services.assignments, validate, logger),
		AttemptHandler:    handler.NewAttemptHandler(services.attempts, logger),
		SubmissionHandler: handler.NewSubmissionHandler(services.submissions, services.events, validate, logger),
		QuizHandler:       handler.NewQuizHandler(services.quiz, validate, logger),
	}
	if authenticated {
		deps.JWTMiddleware = func(c *fiber.Ctx) error {
			c.Locals(middleware.LocalUserID, testLearner)
			c.Locals(middleware.LocalAccessToken, "token-1")
			return c.Next()
		}
	}
	router.Register(app, config.Config{AppName: "Test"}, deps)

	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}
