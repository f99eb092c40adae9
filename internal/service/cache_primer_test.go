package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/activity"
)

func TestCachePrimerFillsUnlockedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	primer := NewCachePrimer(f.planRepo, f.studentRepo, f.cache, zerolog.Nop())
	f.events.Handle(primer.Handle)

	plan := f.createPlan(t)
	f.completeDay(t, plan.ID, 1)
	f.events.Wait()

	for _, at := range activity.ScheduleForDay(2) {
		row, err := f.contentRepo.Get(ctx, plan.ID, 2, string(at))
		require.NoError(t, err, at)
		require.NotEmpty(t, row.Content)
	}

	calls := f.gen.CallCount()
	view := f.openDay(t, plan.ID, 2)
	for _, item := range view.Activities {
		require.Equal(t, string(SourceCache), item.Source)
	}
	require.Equal(t, calls, f.gen.CallCount())
}

func TestCachePrimerIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	primer := NewCachePrimer(f.planRepo, f.studentRepo, f.cache, zerolog.Nop())
	plan := f.createPlan(t)
	calls := f.gen.CallCount()

	primer.Handle(context.Background(), ProgressEvent{Type: EventDayCompleted, PlanID: plan.ID, DayIndex: 1})
	require.Equal(t, calls, f.gen.CallCount())

	err := primer.Prime(context.Background(), plan.ID+99, 1)
	require.ErrorIs(t, err, ErrPlanNotFound)
}
