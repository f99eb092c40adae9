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

func newPlanDays() []models.Day {
	return []models.Day{
		{DayIndex: 1, State: models.DayStateAvailable},
		{DayIndex: 2, State: models.DayStateLocked},
		{DayIndex: 3, State: models.DayStateLocked},
	}
}

func TestPlanRepositoryCreateWithDaysAndStory(t *testing.T) {
	db := newTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	plan := models.Plan{StudentID: 1, ParentID: 1, Name: "Spring", Status: models.PlanStatusGenerating}
	require.NoError(t, repo.CreateWithDays(ctx, &plan, newPlanDays()))
	require.NotZero(t, plan.ID)

	story := models.Story{
		PlanID:     plan.ID,
		Title:      "The Lighthouse Key",
		Part1:      "one",
		Part2:      "two",
		Part3:      "three",
		Themes:     datatypes.NewJSONType([]string{"adventure"}),
		Vocabulary: datatypes.NewJSONType([]activity.VocabularyWord{{Word: "attic", Definition: "a room under the roof"}}),
	}
	require.NoError(t, repo.SaveStory(ctx, &story))

	loaded, err := repo.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusActive, loaded.Status)
	require.Len(t, loaded.Days, 3)
	require.Equal(t, 1, loaded.Days[0].DayIndex)
	require.Equal(t, models.DayStateAvailable, loaded.Days[0].State)
	require.NotNil(t, loaded.Story)
	require.Equal(t, "attic", loaded.Story.Vocabulary.Data()[0].Word)

	replacement := models.Story{PlanID: plan.ID, Title: "Second Draft", Part1: "a", Part2: "b", Part3: "c"}
	require.NoError(t, repo.SaveStory(ctx, &replacement))
	stored, err := repo.GetStory(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, "Second Draft", stored.Title)
}

func TestPlanRepositoryAllowsOneOpenPlanPerStudent(t *testing.T) {
	db := newTestDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	first := models.Plan{StudentID: 9, ParentID: 1, Name: "One", Status: models.PlanStatusActive}
	require.NoError(t, repo.CreateWithDays(ctx, &first, newPlanDays()))

	second := models.Plan{StudentID: 9, ParentID: 1, Name: "Two", Status: models.PlanStatusGenerating}
	err := repo.CreateWithDays(ctx, &second, newPlanDays())
	require.Error(t, err)
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	affected, err := repo.MarkCompleted(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	affected, err = repo.MarkCompleted(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, affected)

	third := models.Plan{StudentID: 9, ParentID: 1, Name: "Three", Status: models.PlanStatusGenerating}
	require.NoError(t, repo.CreateWithDays(ctx, &third, newPlanDays()))

	affected, err = repo.MarkCompleted(ctx, third.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, affected)

	plans, err := repo.ListByStudent(ctx, 9)
	require.NoError(t, err)
	require.Len(t, plans, 2)
}

func TestDayRepositoryTransitionsFireOnce(t *testing.T) {
	db := newTestDB(t)
	plans := NewPlanRepository(db)
	days := NewDayRepository(db)
	ctx := context.Background()

	plan := models.Plan{StudentID: 2, ParentID: 1, Name: "Days", Status: models.PlanStatusActive}
	require.NoError(t, plans.CreateWithDays(ctx, &plan, newPlanDays()))

	locked, err := days.Get(ctx, plan.ID, 2)
	require.NoError(t, err)
	_, err = days.Complete(ctx, locked.ID, time.Now())
	require.NoError(t, err)
	still, err := days.Get(ctx, plan.ID, 2)
	require.NoError(t, err)
	require.Equal(t, models.DayStateLocked, still.State, "locked days cannot jump to complete")

	first, err := days.GetForUpdate(ctx, plan.ID, 1)
	require.NoError(t, err)
	affected, err := days.Complete(ctx, first.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	affected, err = days.Complete(ctx, first.ID, time.Now())
	require.NoError(t, err)
	require.Zero(t, affected)

	affected, err = days.Unlock(ctx, plan.ID, 2, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	affected, err = days.Unlock(ctx, plan.ID, 2, time.Now())
	require.NoError(t, err)
	require.Zero(t, affected)

	all, err := days.ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, []string{models.DayStateComplete, models.DayStateAvailable, models.DayStateLocked},
		[]string{all[0].State, all[1].State, all[2].State})
	require.NotNil(t, all[0].CompletedAt)
	require.NotNil(t, all[1].UnlockedAt)
}
