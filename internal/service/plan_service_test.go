package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

// failActivities keeps stories working while every activity request fails.
func failActivities(ctx context.Context, req ai.Request) (json.RawMessage, error) {
	if req.Kind == ai.KindActivity {
		return nil, &ai.UnavailableError{}
	}
	return scriptedContent(ctx, req)
}

func TestPlanServiceCreateGeneratesStory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan := f.createPlan(t)
	require.Equal(t, models.PlanStatusActive, plan.Status)
	require.Equal(t, "The Red Boat", plan.StoryTitle)
	require.Empty(t, plan.StoryError)
	require.Len(t, plan.Days, activity.PlanLength)
	require.Equal(t, models.DayStateAvailable, plan.Days[0].State)
	require.NotNil(t, plan.Days[0].UnlockedAt)
	require.Equal(t, []string{"who", "where"}, plan.Days[0].Activities)
	require.Equal(t, models.DayStateLocked, plan.Days[1].State)
	require.Nil(t, plan.Days[1].UnlockedAt)
	require.Equal(t, models.DayStateLocked, plan.Days[2].State)

	story, err := f.planRepo.GetStory(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, storyParts[0], story.Part1)
	require.Equal(t, storyParts[2], story.Part3)
	require.Equal(t, []string{"building things", "boats", "dogs"}, story.Themes.Data())
	require.Len(t, story.Vocabulary.Data(), 3)
	require.Equal(t, "mock", story.Model)

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, ai.KindStory, calls[0].Kind)
	require.Contains(t, calls[0].Prompt, "boats, dogs")
	require.Contains(t, calls[0].Prompt, "Theme: building things")

	plans, err := f.plans.ListByStudent(ctx, testParentID, f.student.ID)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	_, err = f.plans.ListByStudent(ctx, otherParentID, f.student.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPlanServiceAllowsOneOpenPlanPerStudent(t *testing.T) {
	f := newFixture(t)
	f.createPlan(t)

	_, err := f.plans.Create(context.Background(), testParentID, dto.PlanCreateRequest{StudentID: f.student.ID, Name: "Another"})
	require.ErrorIs(t, err, ErrActivePlanExists)

	_, err = f.plans.Create(context.Background(), otherParentID, dto.PlanCreateRequest{StudentID: f.student.ID, Name: "Not mine"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPlanServiceStoryFailureKeepsPlanForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gen.Handler = func(context.Context, ai.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"title":"Half a story","parts":[{"text":"only one"}]}`), nil
	}

	plan, err := f.plans.Create(ctx, testParentID, dto.PlanCreateRequest{StudentID: f.student.ID, Name: "Boat week"})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.NotZero(t, plan.ID)
	require.Equal(t, models.PlanStatusGenerating, plan.Status)
	require.Contains(t, plan.StoryError, "parts")
	require.Len(t, plan.Days, activity.PlanLength)

	_, err = f.plans.GetDay(ctx, testParentID, plan.ID, 1)
	require.ErrorIs(t, err, ErrStoryNotReady)

	_, err = f.plans.Create(ctx, testParentID, dto.PlanCreateRequest{StudentID: f.student.ID, Name: "Retry"})
	require.ErrorIs(t, err, ErrActivePlanExists)

	f.gen.Handler = scriptedContent
	repaired, err := f.plans.RegenerateStory(ctx, testParentID, plan.ID)
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusActive, repaired.Status)
	require.Empty(t, repaired.StoryError)

	calls := f.gen.CallCount()
	_, err = f.plans.RegenerateStory(ctx, testParentID, plan.ID)
	require.NoError(t, err)
	require.Equal(t, calls, f.gen.CallCount())
}

func TestPlanServiceGetDayServesPublicActivities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.createPlan(t)

	view := f.openDay(t, plan.ID, 1)
	require.Equal(t, plan.ID, view.PlanID)
	require.Equal(t, models.DayStateAvailable, view.State)
	require.Equal(t, "The Red Boat", view.StoryTitle)
	require.Equal(t, storyParts[0], view.StoryText)
	require.Len(t, view.Vocabulary, 3)
	require.Len(t, view.Activities, 2)

	for i, at := range []activity.Type{activity.TypeWho, activity.TypeWhere} {
		item := view.Activities[i]
		require.Equal(t, string(at), item.Type)
		require.Equal(t, string(GenerationReady), item.Status)
		require.Equal(t, string(SourceGenerated), item.Source)
		require.Equal(t, f.key(plan.ID, 1, at).String(), item.ProgressKey)
		require.Equal(t, models.ProgressNotStarted, item.Progress.Status)
		require.NotNil(t, item.Content)
	}
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"answer"`)

	again := f.openDay(t, plan.ID, 1)
	require.Equal(t, string(SourceCache), again.Activities[0].Source)

	_, err = f.plans.GetDay(ctx, testParentID, plan.ID, 2)
	require.ErrorIs(t, err, ErrDayLocked)
	_, err = f.plans.GetDay(ctx, otherParentID, plan.ID, 1)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.plans.GetDay(ctx, testParentID, plan.ID+50, 1)
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanServiceGetDayReportsFailedActivities(t *testing.T) {
	f := newFixture(t, withCacheConfig(ContentCacheConfig{WaitTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}))
	plan := f.createPlan(t)
	f.gen.Handler = failActivities

	view := f.openDay(t, plan.ID, 1)
	for _, item := range view.Activities {
		require.Equal(t, string(GenerationFailed), item.Status)
		require.Empty(t, item.Source)
		require.Nil(t, item.Content)
	}

	status, err := f.plans.ContentStatus(context.Background(), testParentID, f.key(plan.ID, 1, activity.TypeWho))
	require.NoError(t, err)
	require.Equal(t, string(GenerationFailed), status.Status)
}

func TestPlanServiceGetDayFallsBackToTemplates(t *testing.T) {
	f := newFixture(t)
	plan := f.createPlan(t)
	f.completeDay(t, plan.ID, 1)
	f.completeDay(t, plan.ID, 2)
	f.gen.Handler = failActivities

	view := f.openDay(t, plan.ID, 3)
	require.Equal(t, models.DayStateAvailable, view.State)
	require.Equal(t, string(activity.TypeMainIdea), view.Activities[0].Type)
	require.Equal(t, string(GenerationFailed), view.Activities[0].Status)
	require.Equal(t, string(activity.TypeVocabulary), view.Activities[1].Type)
	require.Equal(t, string(GenerationReady), view.Activities[1].Status)
	require.Equal(t, string(SourceFallback), view.Activities[1].Source)

	resp, err := f.ledger.RecordResponse(context.Background(), testParentID, f.key(plan.ID, 3, activity.TypeVocabulary), dto.RecordResponseRequest{
		QuestionID: "v1",
		Answer:     "a tool for hitting nails",
	})
	require.NoError(t, err)
	require.True(t, resp.Responses[0].IsCorrect)
}

func TestPlanServiceContentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.createPlan(t)
	key := f.key(plan.ID, 1, activity.TypeWhere)

	status, err := f.plans.ContentStatus(ctx, testParentID, key)
	require.NoError(t, err)
	require.Equal(t, string(GenerationUnknown), status.Status)
	require.Equal(t, key.String(), status.ProgressKey)

	f.openDay(t, plan.ID, 1)
	status, err = f.plans.ContentStatus(ctx, testParentID, key)
	require.NoError(t, err)
	require.Equal(t, string(GenerationReady), status.Status)

	_, err = f.plans.ContentStatus(ctx, otherParentID, key)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPlanServiceStoryUsesLatestReadingLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.assessments.Create(ctx, testParentID, dto.AssessmentCreateRequest{StudentID: f.student.ID})
	require.NoError(t, err)
	seconds := 60.0
	scored, err := f.assessments.Submit(ctx, testParentID, created.ID, dto.SubmitAssessmentRequest{
		Answers:            map[int]string{0: "the cat", 1: "Yes", 2: "In the car"},
		ReadingTimeSeconds: &seconds,
	})
	require.NoError(t, err)
	require.Equal(t, "At grade 2 level", scored.ReadingLevelLabel)

	f.createPlan(t)
	calls := f.gen.Calls()
	require.Contains(t, calls[len(calls)-1].Prompt, "The reader is currently at grade 2 level.")
}
