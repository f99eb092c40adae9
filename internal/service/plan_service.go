package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/repository"
	"github.com/noah-isme/readalong-api/pkg/ai"
)

const maxStoryErrorLength = 500

// PlanService creates plans, generates their stories and serves day views.
type PlanService interface {
	// Create returns the stored plan alongside ErrGenerationFailed when only the story failed.
	Create(ctx context.Context, parentID uint, payload dto.PlanCreateRequest) (dto.PlanResponse, error)
	RegenerateStory(ctx context.Context, parentID, planID uint) (dto.PlanResponse, error)
	Get(ctx context.Context, parentID, planID uint) (dto.PlanResponse, error)
	ListByStudent(ctx context.Context, parentID, studentID uint) ([]dto.PlanResponse, error)
	GetDay(ctx context.Context, parentID, planID uint, dayIndex int) (dto.DayViewResponse, error)
	ContentStatus(ctx context.Context, parentID uint, key models.ProgressKey) (dto.ContentStatusResponse, error)
	Owned(ctx context.Context, parentID, planID uint) (models.Plan, error)
}

type planService struct {
	plans       repository.PlanRepository
	assessments repository.AssessmentRepository
	students    StudentService
	progression ProgressionService
	ledger      LedgerService
	cache       ContentCacheService
	generator   ai.Generator
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewPlanService builds the plan service. generator may be nil, in which case story generation fails.
func NewPlanService(
	plans repository.PlanRepository,
	assessments repository.AssessmentRepository,
	students StudentService,
	progression ProgressionService,
	ledger LedgerService,
	cache ContentCacheService,
	generator ai.Generator,
	validate *validator.Validate,
	logger zerolog.Logger,
) PlanService {
	return &planService{
		plans:       plans,
		assessments: assessments,
		students:    students,
		progression: progression,
		ledger:      ledger,
		cache:       cache,
		generator:   generator,
		validator:   validate,
		logger:      logger.With().Str("component", "plan_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/readalong-api/internal/service/plan"),
		now:         time.Now,
	}
}

func (s *planService) Create(ctx context.Context, parentID uint, payload dto.PlanCreateRequest) (dto.PlanResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PlanResponse{}, err
	}
	student, err := s.students.Owned(ctx, parentID, payload.StudentID)
	if err != nil {
		return dto.PlanResponse{}, err
	}

	name := activity.SanitizeText(payload.Name)
	if name == "" {
		return dto.PlanResponse{}, errors.New("plan name cannot be empty")
	}

	plan := models.Plan{
		StudentID: student.ID,
		ParentID:  parentID,
		Name:      name,
		Theme:     activity.SanitizeText(payload.Theme),
		Status:    models.PlanStatusGenerating,
	}
	if err := s.plans.CreateWithDays(ctx, &plan, newPlanDays(s.now().UTC())); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.PlanResponse{}, ErrActivePlanExists
		}
		return dto.PlanResponse{}, fmt.Errorf("create plan: %w", err)
	}

	s.logger.Info().Uint("plan_id", plan.ID).Uint("student_id", student.ID).Msg("plan created")

	storyErr := s.generateStory(ctx, plan, student)
	response, err := s.reload(ctx, plan.ID)
	if err != nil {
		return dto.PlanResponse{}, err
	}
	return response, storyErr
}

func newPlanDays(now time.Time) []models.Day {
	days := make([]models.Day, 0, activity.PlanLength)
	for i := 1; i <= activity.PlanLength; i++ {
		day := models.Day{DayIndex: i, State: models.DayStateLocked}
		if i == 1 {
			day.State = models.DayStateAvailable
			unlocked := now
			day.UnlockedAt = &unlocked
		}
		days = append(days, day)
	}
	return days
}

func (s *planService) RegenerateStory(ctx context.Context, parentID, planID uint) (dto.PlanResponse, error) {
	plan, err := loadOwnedPlan(ctx, s.plans, parentID, planID)
	if err != nil {
		return dto.PlanResponse{}, err
	}
	if plan.Story != nil {
		return dto.NewPlanResponse(plan), nil
	}
	student, err := s.students.Owned(ctx, parentID, plan.StudentID)
	if err != nil {
		return dto.PlanResponse{}, err
	}

	storyErr := s.generateStory(ctx, plan, student)
	response, err := s.reload(ctx, plan.ID)
	if err != nil {
		return dto.PlanResponse{}, err
	}
	return response, storyErr
}

func (s *planService) generateStory(ctx context.Context, plan models.Plan, student models.Student) error {
	ctx, span := s.tracer.Start(ctx, "plan.generate_story", trace.WithAttributes(
		attribute.Int64("plan.id", int64(plan.ID)),
	))
	defer span.End()

	story, err := s.requestStory(context.WithoutCancel(ctx), plan, student)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Uint("plan_id", plan.ID).Msg("story generation failed")
		if serr := s.plans.SetStoryError(ctx, plan.ID, truncate(err.Error(), maxStoryErrorLength)); serr != nil {
			s.logger.Warn().Err(serr).Uint("plan_id", plan.ID).Msg("failed to record story error")
		}
		return generationFailed(err)
	}
	if err := s.plans.SaveStory(ctx, &story); err != nil {
		return fmt.Errorf("save story: %w", err)
	}
	return nil
}

func (s *planService) requestStory(ctx context.Context, plan models.Plan, student models.Student) (models.Story, error) {
	if s.generator == nil {
		return models.Story{}, ai.ErrNotConfigured
	}

	interests := student.Interests.Data()
	request := ai.StoryRequest(ai.StoryInput{
		GradeLevel:   student.GradeLevel,
		Age:          student.Age,
		Interests:    interests,
		Theme:        plan.Theme,
		Parts:        activity.PlanLength,
		ReadingLevel: s.readingLevel(ctx, student.ID),
	})
	request.Validate = func(raw json.RawMessage) error {
		_, err := ai.ParseStory(raw, activity.PlanLength)
		return err
	}

	resp, err := s.generator.Generate(ctx, request)
	if err != nil {
		return models.Story{}, err
	}
	payload, err := ai.ParseStory(resp.Content, activity.PlanLength)
	if err != nil {
		return models.Story{}, err
	}

	themes := make([]string, 0, len(interests)+1)
	if plan.Theme != "" {
		themes = append(themes, plan.Theme)
	}
	themes = append(themes, interests...)

	model := resp.Model
	if model == "" {
		model = s.generator.Model()
	}
	return models.Story{
		PlanID:     plan.ID,
		Title:      activity.SanitizeText(payload.Title),
		Themes:     datatypes.NewJSONType(themes),
		Part1:      activity.SanitizeText(payload.Parts[0].Text),
		Part2:      activity.SanitizeText(payload.Parts[1].Text),
		Part3:      activity.SanitizeText(payload.Parts[2].Text),
		Vocabulary: datatypes.NewJSONType(storyVocabulary(payload.Vocabulary)),
		Model:      model,
	}, nil
}

func storyVocabulary(words []ai.StoryWord) []activity.VocabularyWord {
	seen := make(map[string]struct{}, len(words))
	out := make([]activity.VocabularyWord, 0, len(words))
	for _, w := range words {
		word := activity.SanitizeText(w.Word)
		definition := activity.SanitizeText(w.Definition)
		key := strings.ToLower(word)
		if word == "" || definition == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, activity.VocabularyWord{Word: word, Definition: definition, Example: activity.SanitizeText(w.Example)})
	}
	return out
}

// readingLevel describes the latest scored assessment for the story prompt.
func (s *planService) readingLevel(ctx context.Context, studentID uint) string {
	items, err := s.assessments.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to load assessments for reading level")
		return ""
	}
	for _, item := range items {
		if item.IsScored() && item.ReadingLevelLabel != "" {
			return item.ReadingLevelLabel
		}
	}
	return ""
}

func (s *planService) Get(ctx context.Context, parentID, planID uint) (dto.PlanResponse, error) {
	plan, err := loadOwnedPlan(ctx, s.plans, parentID, planID)
	if err != nil {
		return dto.PlanResponse{}, err
	}
	return dto.NewPlanResponse(plan), nil
}

func (s *planService) ListByStudent(ctx context.Context, parentID, studentID uint) ([]dto.PlanResponse, error) {
	if _, err := s.students.Owned(ctx, parentID, studentID); err != nil {
		return nil, err
	}
	plans, err := s.plans.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return dto.NewPlanResponseSlice(plans), nil
}

func (s *planService) Owned(ctx context.Context, parentID, planID uint) (models.Plan, error) {
	return loadOwnedPlan(ctx, s.plans, parentID, planID)
}

func (s *planService) GetDay(ctx context.Context, parentID, planID uint, dayIndex int) (dto.DayViewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "plan.get_day", trace.WithAttributes(
		attribute.Int64("plan.id", int64(planID)),
		attribute.Int("day.index", dayIndex),
	))
	defer span.End()

	plan, err := loadOwnedPlan(ctx, s.plans, parentID, planID)
	if err != nil {
		return dto.DayViewResponse{}, err
	}
	day, err := s.progression.RequireAccess(ctx, plan.ID, dayIndex)
	if err != nil {
		return dto.DayViewResponse{}, err
	}
	if plan.Story == nil {
		return dto.DayViewResponse{}, ErrStoryNotReady
	}
	student, err := s.students.Owned(ctx, parentID, plan.StudentID)
	if err != nil {
		return dto.DayViewResponse{}, err
	}
	progress, err := s.ledger.LoadProgress(ctx, plan.StudentID, plan.ID, dayIndex)
	if err != nil {
		return dto.DayViewResponse{}, err
	}

	types := activity.ScheduleForDay(dayIndex)
	views := make([]dto.ActivityView, len(types))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, t := range types {
		i, t := i, t
		group.Go(func() error {
			view, err := s.activityView(groupCtx, plan, student, dayIndex, t, progress[t])
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		return dto.DayViewResponse{}, err
	}

	return dto.DayViewResponse{
		PlanID:     plan.ID,
		DayIndex:   dayIndex,
		State:      day.State,
		StoryTitle: plan.Story.Title,
		StoryText:  plan.Story.Part(dayIndex),
		Vocabulary: plan.Story.Vocabulary.Data(),
		Activities: views,
	}, nil
}

// activityView degrades pending and failed content to a status instead of failing the day.
func (s *planService) activityView(ctx context.Context, plan models.Plan, student models.Student, dayIndex int, t activity.Type, progress models.ActivityProgress) (dto.ActivityView, error) {
	key := models.ProgressKey{StudentID: plan.StudentID, PlanID: plan.ID, DayIndex: dayIndex, ActivityType: t}
	view := dto.ActivityView{
		Type:        string(t),
		ProgressKey: key.String(),
		Progress:    dto.NewProgressResponse(key.String(), progress),
	}

	req, err := contentRequestFor(plan, student, dayIndex, t)
	if err != nil {
		return dto.ActivityView{}, err
	}
	result, err := s.cache.GetOrGenerate(ctx, req)
	switch {
	case err == nil:
		view.Status = string(GenerationReady)
		view.Source = string(result.Source)
		view.Content = result.Content.Public()
	case errors.Is(err, ErrGenerationPending):
		view.Status = string(GenerationPending)
	case errors.Is(err, ErrGenerationFailed):
		view.Status = string(GenerationFailed)
	default:
		return dto.ActivityView{}, err
	}
	return view, nil
}

func (s *planService) ContentStatus(ctx context.Context, parentID uint, key models.ProgressKey) (dto.ContentStatusResponse, error) {
	plan, err := loadOwnedPlan(ctx, s.plans, parentID, key.PlanID)
	if err != nil {
		return dto.ContentStatusResponse{}, err
	}
	if plan.StudentID != key.StudentID {
		return dto.ContentStatusResponse{}, ErrForbidden
	}
	student, err := s.students.Owned(ctx, parentID, plan.StudentID)
	if err != nil {
		return dto.ContentStatusResponse{}, err
	}
	req, err := contentRequestFor(plan, student, key.DayIndex, key.ActivityType)
	if err != nil {
		return dto.ContentStatusResponse{}, err
	}
	status, err := s.cache.Status(ctx, req)
	if err != nil {
		return dto.ContentStatusResponse{}, err
	}
	return dto.ContentStatusResponse{ProgressKey: key.String(), Status: string(status)}, nil
}

func (s *planService) reload(ctx context.Context, planID uint) (dto.PlanResponse, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return dto.PlanResponse{}, err
	}
	return dto.NewPlanResponse(plan), nil
}

// loadOwnedPlan fetches a plan and checks that the parent owns it.
func loadOwnedPlan(ctx context.Context, plans repository.PlanRepository, parentID, planID uint) (models.Plan, error) {
	plan, err := plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Plan{}, ErrPlanNotFound
		}
		return models.Plan{}, err
	}
	if plan.ParentID != parentID {
		return models.Plan{}, ErrForbidden
	}
	return plan, nil
}

// contentRequestFor builds the cache request for one activity of a plan day.
func contentRequestFor(plan models.Plan, student models.Student, dayIndex int, t activity.Type) (ContentRequest, error) {
	if plan.Story == nil {
		return ContentRequest{}, ErrStoryNotReady
	}
	text := plan.Story.Part(dayIndex)
	if text == "" {
		return ContentRequest{}, ErrDayNotFound
	}
	return ContentRequest{
		PlanID:       plan.ID,
		DayIndex:     dayIndex,
		ActivityType: t,
		StudentAge:   student.Age,
		StoryText:    text,
		Vocabulary:   plan.Story.Vocabulary.Data(),
	}, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
