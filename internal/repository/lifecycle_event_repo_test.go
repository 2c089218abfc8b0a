package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

func setupJournalDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.LifecycleEvent{}))
	return db
}

func TestLifecycleEventRepositoryFiltersAndPaginates(t *testing.T) {
	db := setupJournalDB(t)
	repo := NewLifecycleEventRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	events := []models.LifecycleEvent{
		{LearnerID: "l-1", AssignmentID: "a-1", SubmissionID: "s-1", Action: models.ActionSubmissionRegistered, CreatedAt: base},
		{LearnerID: "l-1", AssignmentID: "a-1", SubmissionID: "s-1", Action: models.ActionUploadFailed, Metadata: datatypes.JSONMap{"status": 500}, CreatedAt: base.Add(time.Minute)},
		{LearnerID: "l-1", AssignmentID: "a-1", SubmissionID: "s-1", Action: models.ActionUploadCompleted, CreatedAt: base.Add(2 * time.Minute)},
		{LearnerID: "l-2", AssignmentID: "a-1", SubmissionID: "s-9", Action: models.ActionSubmissionRegistered, CreatedAt: base},
	}
	for i := range events {
		require.NoError(t, repo.Create(ctx, &events[i]))
	}

	items, total, err := repo.List(ctx, LifecycleEventFilter{LearnerID: "l-1", AssignmentID: "a-1"})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Equal(t, models.ActionUploadCompleted, items[0].Action, "newest event first")

	paged, total, err := repo.List(ctx, LifecycleEventFilter{LearnerID: "l-1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
	require.Equal(t, models.ActionSubmissionRegistered, paged[0].Action)

	failed, _, err := repo.List(ctx, LifecycleEventFilter{Action: models.ActionUploadFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.EqualValues(t, 500, failed[0].Metadata["status"])
}
