package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/models"
)

func TestDayCompleteRequiresEveryScheduledActivity(t *testing.T) {
	done := func(day int, at activity.Type) models.ActivityProgress {
		return models.ActivityProgress{DayIndex: day, ActivityType: string(at), Status: models.ProgressCompleted}
	}

	require.False(t, DayComplete(1, nil))
	require.False(t, DayComplete(1, []models.ActivityProgress{done(1, activity.TypeWho)}))
	require.False(t, DayComplete(1, []models.ActivityProgress{
		done(1, activity.TypeWho),
		{DayIndex: 1, ActivityType: string(activity.TypeWhere), Status: models.ProgressInProgress},
	}))
	require.False(t, DayComplete(1, []models.ActivityProgress{done(1, activity.TypeWho), done(2, activity.TypeWhere)}))
	require.True(t, DayComplete(1, []models.ActivityProgress{done(1, activity.TypeWhere), done(1, activity.TypeWho)}))
	require.False(t, DayComplete(4, []models.ActivityProgress{done(4, activity.TypeWho)}))
}

func TestPlanStatusAggregatesDays(t *testing.T) {
	days := []models.Day{
		{DayIndex: 1, State: models.DayStateComplete},
		{DayIndex: 2, State: models.DayStateComplete},
		{DayIndex: 3, State: models.DayStateAvailable},
	}
	require.Equal(t, models.PlanStatusActive, PlanStatus(days))
	require.Equal(t, models.PlanStatusActive, PlanStatus(days[:2]))

	days[2].State = models.DayStateComplete
	require.Equal(t, models.PlanStatusCompleted, PlanStatus(days))
}

func TestProgressionRequireAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.createPlan(t)

	day, err := f.progression.RequireAccess(ctx, plan.ID, 1)
	require.NoError(t, err)
	require.Equal(t, models.DayStateAvailable, day.State)

	_, err = f.progression.RequireAccess(ctx, plan.ID, 3)
	require.ErrorIs(t, err, ErrDayLocked)
	require.Contains(t, err.Error(), "day 3")

	_, err = f.progression.RequireAccess(ctx, plan.ID, 9)
	require.ErrorIs(t, err, ErrDayNotFound)

	allowed, err := f.progression.CanAccess(ctx, plan.ID, 9)
	require.ErrorIs(t, err, ErrDayNotFound)
	require.False(t, allowed)
}

func TestProgressionIgnoresDaysThatAreNotAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planResp := f.createPlan(t)
	plan, err := f.planRepo.GetByID(ctx, planResp.ID)
	require.NoError(t, err)

	var change *DayStateChange
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = f.progression.OnActivityCompleted(ctx, tx, plan, f.student.ID, 2, activity.TypeSequence)
		return err
	})
	require.NoError(t, err)
	require.Nil(t, change)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = f.progression.OnActivityCompleted(ctx, tx, plan, f.student.ID, 1, activity.TypeWho)
		return err
	})
	require.NoError(t, err)
	require.Nil(t, change, "day 1 still has an unfinished activity")

	days, err := f.dayRepo.ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, models.DayStateAvailable, days[0].State)
	require.Equal(t, models.DayStateLocked, days[1].State)
}
