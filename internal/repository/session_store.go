package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// ErrCacheMiss is returned when a cached entry does not exist or has expired.
var ErrCacheMiss = errors.New("cache miss")

// releaseClaim deletes the claim only while it still belongs to the caller.
var releaseClaim = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore keeps short-lived client state that survives a page reload.
// Everything stored here is advisory and reconciled against the backend before use.
type SessionStore interface {
	SaveUploadSession(ctx context.Context, session models.UploadSession, ttl time.Duration) error
	UploadSession(ctx context.Context, submissionID string) (models.UploadSession, error)
	DeleteUploadSession(ctx context.Context, submissionID string) error

	SaveDraft(ctx context.Context, draft models.QuizDraft, ttl time.Duration) error
	Draft(ctx context.Context, attemptID string) (models.QuizDraft, error)
	DeleteDraft(ctx context.Context, attemptID string) error

	ClaimSubmit(ctx context.Context, attemptID, owner string, ttl time.Duration) (bool, error)
	ReleaseSubmit(ctx context.Context, attemptID, owner string) error
	SaveSubmitResult(ctx context.Context, attemptID string, submission models.Submission, ttl time.Duration) error
	SubmitResult(ctx context.Context, attemptID string) (models.Submission, error)
}

type redisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore builds a store backed by Redis keys under prefix.
func NewRedisSessionStore(client *redis.Client, prefix string) SessionStore {
	if prefix == "" {
		prefix = "gema"
	}
	return &redisSessionStore{client: client, prefix: prefix}
}

func (s *redisSessionStore) key(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, id)
}

func (s *redisSessionStore) SaveUploadSession(ctx context.Context, session models.UploadSession, ttl time.Duration) error {
	return s.setJSON(ctx, s.key("upload", session.SubmissionID), session, ttl)
}

func (s *redisSessionStore) UploadSession(ctx context.Context, submissionID string) (models.UploadSession, error) {
	var session models.UploadSession
	err := s.getJSON(ctx, s.key("upload", submissionID), &session)
	return session, err
}

func (s *redisSessionStore) DeleteUploadSession(ctx context.Context, submissionID string) error {
	return s.client.Del(ctx, s.key("upload", submissionID)).Err()
}

func (s *redisSessionStore) SaveDraft(ctx context.Context, draft models.QuizDraft, ttl time.Duration) error {
	return s.setJSON(ctx, s.key("quiz:draft", draft.AttemptID), draft, ttl)
}

func (s *redisSessionStore) Draft(ctx context.Context, attemptID string) (models.QuizDraft, error) {
	var draft models.QuizDraft
	err := s.getJSON(ctx, s.key("quiz:draft", attemptID), &draft)
	return draft, err
}

func (s *redisSessionStore) DeleteDraft(ctx context.Context, attemptID string) error {
	return s.client.Del(ctx, s.key("quiz:draft", attemptID)).Err()
}

// ClaimSubmit takes the per-attempt submit guard. Only one caller across replicas gets true.
func (s *redisSessionStore) ClaimSubmit(ctx context.Context, attemptID, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key("quiz:claim", attemptID), owner, ttl).Result()
}

// ReleaseSubmit drops the guard if owner still holds it. A claim that already expired and was
// taken by another caller is left alone.
func (s *redisSessionStore) ReleaseSubmit(ctx context.Context, attemptID, owner string) error {
	return releaseClaim.Run(ctx, s.client, []string{s.key("quiz:claim", attemptID)}, owner).Err()
}

func (s *redisSessionStore) SaveSubmitResult(ctx context.Context, attemptID string, submission models.Submission, ttl time.Duration) error {
	return s.setJSON(ctx, s.key("quiz:submitted", attemptID), submission, ttl)
}

func (s *redisSessionStore) SubmitResult(ctx context.Context, attemptID string) (models.Submission, error) {
	var submission models.Submission
	err := s.getJSON(ctx, s.key("quiz:submitted", attemptID), &submission)
	return submission, err
}

func (s *redisSessionStore) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *redisSessionStore) getJSON(ctx context.Context, key string, target interface{}) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
