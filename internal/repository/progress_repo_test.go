package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/models"
)

func TestProgressRepositoryVersionedUpdates(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	ctx := context.Background()
	key := models.ProgressKey{StudentID: 1, PlanID: 2, DayIndex: 1, ActivityType: activity.TypeWho}

	progress := models.ActivityProgress{
		StudentID:    key.StudentID,
		PlanID:       key.PlanID,
		DayIndex:     key.DayIndex,
		ActivityType: string(key.ActivityType),
		Status:       models.ProgressInProgress,
	}
	require.NoError(t, repo.Create(ctx, &progress))
	require.Equal(t, 1, progress.Version)

	duplicate := progress
	duplicate.ID = 0
	err := repo.Create(ctx, &duplicate)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	affected, err := repo.UpdateVersioned(ctx, progress.ID, 1, map[string]interface{}{"attempts": 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	affected, err = repo.UpdateVersioned(ctx, progress.ID, 1, map[string]interface{}{"attempts": 5})
	require.NoError(t, err)
	require.Zero(t, affected, "stale version must not write")

	stored, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Version)
	require.Equal(t, 1, stored.Attempts)

	rows, err := repo.ListForDay(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestProgressRepositoryResponsesUseNaturalKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewProgressRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	first := models.ActivityResponse{ProgressID: 4, QuestionID: "q1", Answer: "Mia", AnsweredAt: now}
	require.NoError(t, repo.CreateResponse(ctx, &first))

	clash := models.ActivityResponse{ProgressID: 4, QuestionID: "q1", Answer: "Leo", AnsweredAt: now}
	require.True(t, errors.Is(repo.CreateResponse(ctx, &clash), gorm.ErrDuplicatedKey))

	require.NoError(t, repo.UpdateResponse(ctx, first.ID, map[string]interface{}{"answer": "Leo"}))
	found, err := repo.FindResponse(ctx, 4, "q1")
	require.NoError(t, err)
	require.Equal(t, "Leo", found.Answer)

	_, err = repo.FindResponse(ctx, 4, "q2")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	listed, err := repo.ListResponses(ctx, 4)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestActivityContentRepositoryUpsertReplacesByKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewActivityContentRepository(db)
	ctx := context.Background()

	row := models.ActivityContent{PlanID: 1, DayIndex: 1, ActivityType: "who", Content: datatypes.JSON(`{"v":1}`), StudentAge: 8, ContentHash: "h1"}
	require.NoError(t, repo.Upsert(ctx, &row))

	expires := time.Now().Add(time.Hour).UTC()
	next := models.ActivityContent{PlanID: 1, DayIndex: 1, ActivityType: "who", Content: datatypes.JSON(`{"v":2}`), StudentAge: 9, ContentHash: "h2", ExpiresAt: &expires}
	require.NoError(t, repo.Upsert(ctx, &next))

	stored, err := repo.Get(ctx, 1, 1, "who")
	require.NoError(t, err)
	require.Equal(t, "h2", stored.ContentHash)
	require.JSONEq(t, `{"v":2}`, string(stored.Content))
	require.Equal(t, 9, stored.StudentAge)
	require.NotNil(t, stored.ExpiresAt)

	var count int64
	require.NoError(t, db.Model(&models.ActivityContent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err = repo.Get(ctx, 1, 2, "who")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
