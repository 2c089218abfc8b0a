package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
	"github.com/noah-isme/gema-submission-gateway/internal/repository"
	"github.com/noah-isme/gema-submission-gateway/pkg/lms"
)

type fakeBackend struct {
	mu           sync.Mutex
	calls        map[string]int
	assignments  map[string]models.Assignment
	questionSets map[string]models.QuestionSet
	attempts     []models.Attempt
	submissions  []models.Submission
	sequence     int
	expiresAt    time.Time
	clock        func() time.Time
	quizScore    *float64
	quizAIScore  bool

	startAttempt    func(req lms.StartAttemptRequest) (models.Attempt, error)
	listAttempts    func(call int) ([]models.Attempt, error)
	listSubmissions func(call int) ([]models.Submission, error)
	submitAttempt   func(req lms.SubmitAttemptRequest) (models.Submission, error)
	completeUpload  func(submissionID, storeURL string) (models.Submission, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:        make(map[string]int),
		assignments:  make(map[string]models.Assignment),
		questionSets: make(map[string]models.QuestionSet),
		clock:        time.Now,
	}
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) nextID(prefix string) string {
	f.sequence++
	return fmt.Sprintf("%s-%d", prefix, f.sequence)
}

func (f *fakeBackend) addAssignment(assignment models.Assignment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments[assignment.ID] = assignment
}

func (f *fakeBackend) addAttempt(attempt models.Attempt) models.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = f.nextID("att")
	}
	f.attempts = append(f.attempts, attempt)
	return attempt
}

func (f *fakeBackend) addSubmission(submission models.Submission) models.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	if submission.ID == "" {
		submission.ID = f.nextID("sub")
	}
	f.submissions = append(f.submissions, submission)
	return submission
}

func (f *fakeBackend) storedSubmissions() []models.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Submission(nil), f.submissions...)
}

func notFound(op string) error {
	return &lms.StatusError{Op: op, StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeBackend) GetAssignment(ctx context.Context, assignmentID string) (models.Assignment, error) {
	f.count("GetAssignment")
	f.mu.Lock()
	defer f.mu.Unlock()
	assignment, ok := f.assignments[assignmentID]
	if !ok {
		return models.Assignment{}, notFound("get assignment")
	}
	return assignment, nil
}

func (f *fakeBackend) ListAssignments(ctx context.Context, learnerID string) ([]models.Assignment, error) {
	f.count("ListAssignments")
	f.mu.Lock()
	defer f.mu.Unlock()
	assignments := make([]models.Assignment, 0, len(f.assignments))
	for _, assignment := range f.assignments {
		assignments = append(assignments, assignment)
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	return assignments, nil
}

func (f *fakeBackend) GetQuestionSet(ctx context.Context, questionSetID string) (models.QuestionSet, error) {
	f.count("GetQuestionSet")
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.questionSets[questionSetID]
	if !ok {
		return models.QuestionSet{}, notFound("get question set")
	}
	return set, nil
}

func (f *fakeBackend) ListAttempts(ctx context.Context, assignmentID, learnerID string) ([]models.Attempt, error) {
	call := f.count("ListAttempts")
	if f.listAttempts != nil {
		return f.listAttempts(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	attempts := make([]models.Attempt, 0)
	for _, attempt := range f.attempts {
		if attempt.AssignmentID == assignmentID && attempt.LearnerID == learnerID {
			attempts = append(attempts, attempt)
		}
	}
	return attempts, nil
}

func (f *fakeBackend) GetAttempt(ctx context.Context, attemptID string) (models.Attempt, error) {
	f.count("GetAttempt")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, attempt := range f.attempts {
		if attempt.ID == attemptID {
			return attempt, nil
		}
	}
	return models.Attempt{}, notFound("get attempt")
}

func (f *fakeBackend) StartAttempt(ctx context.Context, req lms.StartAttemptRequest) (models.Attempt, error) {
	f.count("StartAttempt")
	if f.startAttempt != nil {
		return f.startAttempt(req)
	}
	return f.addAttempt(models.Attempt{
		AssignmentID:   req.AssignmentID,
		LearnerID:      req.LearnerID,
		Ordinal:        req.Ordinal,
		IdempotencyKey: req.IdempotencyKey,
		StartedAt:      f.clock(),
	}), nil
}

func (f *fakeBackend) RegisterSubmission(ctx context.Context, req lms.RegisterRequest) (lms.Registration, error) {
	f.count("RegisterSubmission")
	submission := f.addSubmission(models.Submission{
		AssignmentID: req.AssignmentID,
		LearnerID:    req.LearnerID,
		FileName:     req.FileName,
		ContentType:  req.ContentType,
		CreatedAt:    f.clock(),
	})
	return lms.Registration{
		SubmissionID: submission.ID,
		UploadURL:    "https://storage.test/upload/" + submission.ID,
		StoreURL:     "https://storage.test/objects/" + submission.ID,
		ExpiresAt:    f.expiresAt,
	}, nil
}

func (f *fakeBackend) CompleteUpload(ctx context.Context, submissionID, storeURL string) (models.Submission, error) {
	f.count("CompleteUpload")
	if f.completeUpload != nil {
		return f.completeUpload(submissionID, storeURL)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.submissions {
		if f.submissions[i].ID == submissionID {
			reference := storeURL
			f.submissions[i].StoredReference = &reference
			return f.submissions[i], nil
		}
	}
	return models.Submission{}, notFound("complete upload")
}

func (f *fakeBackend) SubmitAttempt(ctx context.Context, req lms.SubmitAttemptRequest) (models.Submission, error) {
	f.count("SubmitAttempt")
	if f.submitAttempt != nil {
		return f.submitAttempt(req)
	}
	f.mu.Lock()
	var attempt models.Attempt
	for _, candidate := range f.attempts {
		if candidate.ID == req.AttemptID {
			attempt = candidate
		}
	}
	for _, existing := range f.submissions {
		if existing.AttemptID == req.AttemptID {
			f.mu.Unlock()
			return models.Submission{}, &lms.StatusError{Op: "submit attempt", StatusCode: http.StatusConflict}
		}
	}
	f.mu.Unlock()

	reference := "quiz://" + req.AttemptID
	submission := models.Submission{
		AssignmentID:    attempt.AssignmentID,
		LearnerID:       req.LearnerID,
		AttemptID:       req.AttemptID,
		StoredReference: &reference,
		CreatedAt:       f.clock(),
	}
	if f.quizScore != nil {
		score := *f.quizScore
		isAI := f.quizAIScore
		submission.Score = &score
		submission.IsAIScore = &isAI
	}
	return f.addSubmission(submission), nil
}

func (f *fakeBackend) ListSubmissions(ctx context.Context, assignmentID, learnerID string) ([]models.Submission, error) {
	call := f.count("ListSubmissions")
	if f.listSubmissions != nil {
		return f.listSubmissions(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	submissions := make([]models.Submission, 0)
	for _, submission := range f.submissions {
		if submission.AssignmentID == assignmentID && submission.LearnerID == learnerID {
			submissions = append(submissions, submission)
		}
	}
	return submissions, nil
}

func (f *fakeBackend) DownloadSubmission(ctx context.Context, submissionID string) (lms.Download, error) {
	f.count("DownloadSubmission")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, submission := range f.submissions {
		if submission.ID == submissionID {
			return lms.Download{URL: "https://files.test/" + submissionID}, nil
		}
	}
	return lms.Download{}, notFound("download submission")
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []LifecycleEntry
}

func (j *memoryJournal) Record(ctx context.Context, entry LifecycleEntry) (models.LifecycleEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return models.LifecycleEvent{Action: entry.Action, LearnerID: entry.LearnerID, AssignmentID: entry.AssignmentID}, nil
}

func (j *memoryJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	actions := make([]string, 0, len(j.entries))
	for _, entry := range j.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func (j *memoryJournal) find(action string) (LifecycleEntry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, entry := range j.entries {
		if entry.Action == action {
			return entry, true
		}
	}
	return LifecycleEntry{}, false
}

type fakeUploader struct {
	mu           sync.Mutex
	urls         []string
	contentTypes []string
	fail         func(call int) error
}

func (u *fakeUploader) Upload(ctx context.Context, uploadURL string, payload []byte, contentType string) error {
	u.mu.Lock()
	u.urls = append(u.urls, uploadURL)
	u.contentTypes = append(u.contentTypes, contentType)
	call := len(u.urls)
	u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if u.fail != nil {
		return u.fail(call)
	}
	return nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.urls)
}

func newTestStore(t *testing.T) (repository.SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return repository.NewRedisSessionStore(client, "test"), mr
}

func newTestReconciler(backend LMSBackend, journal LifecycleRecorder) *Reconciler {
	return NewReconciler(backend, []time.Duration{time.Millisecond, time.Millisecond}, journal, zerolog.Nop())
}

func intPtr(value int) *int {
	return &value
}

func floatPtr(value float64) *float64 {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

func stringPtr(value string) *string {
	return &value
}

func requireAction(t *testing.T, journal *memoryJournal, action string) LifecycleEntry {
	t.Helper()

	entry, ok := journal.find(action)
	require.Truef(t, ok, "expected %s in %v", action, journal.actions())
	return entry
}
