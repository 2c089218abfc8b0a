package repository

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

func setupSessionStore(t *testing.T) (SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, "test"), mini
}

func TestUploadSessionRoundTripAndExpiry(t *testing.T) {
	store, mini := setupSessionStore(t)
	ctx := context.Background()

	session := models.UploadSession{SubmissionID: "s-1", AssignmentID: "a-1", LearnerID: "l-1", UploadURL: "https://storage/put", ContentType: "application/pdf"}
	require.NoError(t, store.SaveUploadSession(ctx, session, time.Minute))

	loaded, err := store.UploadSession(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, session.UploadURL, loaded.UploadURL)

	mini.FastForward(2 * time.Minute)
	_, err = store.UploadSession(ctx, "s-1")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestClaimSubmitAllowsSingleOwner(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()

	first, err := store.ClaimSubmit(ctx, "att-1", "timer", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.ClaimSubmit(ctx, "att-1", "manual", time.Minute)
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, store.ReleaseSubmit(ctx, "att-1", "timer"))
	third, err := store.ClaimSubmit(ctx, "att-1", "manual", time.Minute)
	require.NoError(t, err)
	require.True(t, third)
}

func TestReleaseSubmitKeepsClaimOfAnotherOwner(t *testing.T) {
	store, mini := setupSessionStore(t)
	ctx := context.Background()

	claimed, err := store.ClaimSubmit(ctx, "att-1", "slow", time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	mini.FastForward(2 * time.Second)
	claimed, err = store.ClaimSubmit(ctx, "att-1", "fresh", time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	// The first owner lost its claim to expiry and must not remove the new one.
	require.NoError(t, store.ReleaseSubmit(ctx, "att-1", "slow"))
	owner, err := mini.Get("test:quiz:claim:att-1")
	require.NoError(t, err)
	require.Equal(t, "fresh", owner)

	require.NoError(t, store.ReleaseSubmit(ctx, "att-1", "fresh"))
	require.False(t, mini.Exists("test:quiz:claim:att-1"))
}

func TestDraftAndSubmitResult(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()

	draft := models.QuizDraft{AttemptID: "att-1", Answers: map[string]interface{}{"q1": "b"}}
	require.NoError(t, store.SaveDraft(ctx, draft, time.Hour))
	loaded, err := store.Draft(ctx, "att-1")
	require.NoError(t, err)
	require.Equal(t, "b", loaded.Answers["q1"])
	require.NoError(t, store.DeleteDraft(ctx, "att-1"))
	_, err = store.Draft(ctx, "att-1")
	require.ErrorIs(t, err, ErrCacheMiss)

	_, err = store.SubmitResult(ctx, "att-1")
	require.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, store.SaveSubmitResult(ctx, "att-1", models.Submission{ID: "s-5"}, time.Hour))
	result, err := store.SubmitResult(ctx, "att-1")
	require.NoError(t, err)
	require.Equal(t, "s-5", result.ID)
}
