package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/observability"
	"github.com/noah-isme/readalong-api/internal/repository"
)

const maxLedgerAttempts = 3

var errVersionConflict = errors.New("progress version conflict")

// LedgerService records answers and completions against resumable progress rows.
type LedgerService interface {
	RecordResponse(ctx context.Context, parentID uint, key models.ProgressKey, payload dto.RecordResponseRequest) (dto.ProgressResponse, error)
	MarkComplete(ctx context.Context, parentID uint, key models.ProgressKey, payload dto.CompleteActivityRequest) (dto.CompletionResponse, error)
	GetProgress(ctx context.Context, parentID uint, key models.ProgressKey) (dto.ProgressResponse, error)
	DayProgress(ctx context.Context, parentID, planID uint, dayIndex int) ([]dto.ProgressResponse, error)
	// LoadProgress returns one entry per scheduled activity; missing rows are not_started placeholders.
	LoadProgress(ctx context.Context, studentID, planID uint, dayIndex int) (map[activity.Type]models.ActivityProgress, error)
}

type ledgerService struct {
	db          *gorm.DB
	plans       repository.PlanRepository
	students    repository.StudentRepository
	progress    repository.ProgressRepository
	progression ProgressionService
	cache       ContentCacheService
	events      ProgressEventBus
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewLedgerService builds the progress ledger. events may be nil.
func NewLedgerService(
	db *gorm.DB,
	plans repository.PlanRepository,
	students repository.StudentRepository,
	progress repository.ProgressRepository,
	progression ProgressionService,
	cache ContentCacheService,
	events ProgressEventBus,
	validate *validator.Validate,
	logger zerolog.Logger,
) LedgerService {
	return &ledgerService{
		db:          db,
		plans:       plans,
		students:    students,
		progress:    progress,
		progression: progression,
		cache:       cache,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "ledger_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/readalong-api/internal/service/ledger"),
		now:         time.Now,
	}
}

func (s *ledgerService) RecordResponse(ctx context.Context, parentID uint, key models.ProgressKey, payload dto.RecordResponseRequest) (dto.ProgressResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProgressResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "ledger.record_response", trace.WithAttributes(
		attribute.String("progress.key", key.String()),
		attribute.String("question.id", payload.QuestionID),
	))
	defer span.End()

	plan, student, err := s.resolveWritable(ctx, parentID, key)
	if err != nil {
		return dto.ProgressResponse{}, err
	}
	if _, err := s.progression.RequireAccess(ctx, plan.ID, key.DayIndex); err != nil {
		return dto.ProgressResponse{}, err
	}

	pin, err := s.answerKeyToPin(ctx, plan, student, key)
	if err != nil {
		return dto.ProgressResponse{}, err
	}

	answeredAt := s.now().UTC()
	if payload.AnsweredAt != nil && !payload.AnsweredAt.IsZero() {
		answeredAt = payload.AnsweredAt.UTC()
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		return s.recordInTx(ctx, tx, key, pin, payload, answeredAt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.ProgressResponse{}, err
	}
	return s.load(ctx, key)
}

// answerKeyToPin returns the current answer key encoded for storage, or nil when the progress
// row already holds one. Responses are graded against the pinned key only.
func (s *ledgerService) answerKeyToPin(ctx context.Context, plan models.Plan, student models.Student, key models.ProgressKey) (datatypes.JSON, error) {
	existing, err := s.progress.FindByKey(ctx, key)
	switch {
	case err == nil && len(existing.AnswerKey) > 0:
		return nil, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	req, err := contentRequestFor(plan, student, key.DayIndex, key.ActivityType)
	if err != nil {
		return nil, err
	}
	current, err := s.cache.AnswerKey(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode answer key: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func (s *ledgerService) recordInTx(ctx context.Context, tx *gorm.DB, key models.ProgressKey, pin datatypes.JSON, payload dto.RecordResponseRequest, answeredAt time.Time) error {
	repo := s.progress.WithTx(tx)
	now := s.now().UTC()

	progress, err := s.findOrStart(ctx, repo, key, now, pin)
	if err != nil {
		return err
	}
	if len(progress.AnswerKey) == 0 {
		return ErrGenerationPending
	}
	answerKey, err := activity.Decode(key.ActivityType, progress.AnswerKey)
	if err != nil {
		return fmt.Errorf("decode pinned answer key: %w", err)
	}
	question, ok := activity.FindQuestion(answerKey, payload.QuestionID)
	if !ok {
		return ErrUnknownQuestion
	}
	answer := activity.NormalizeAnswer(question, activity.SanitizeText(payload.Answer))
	evaluation := activity.Evaluate(question, answer)
	timeSpent := payload.TimeSpent

	existing, err := repo.FindResponse(ctx, progress.ID, question.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if progress.IsCompleted() {
			return ErrProgressCompleted
		}
		response := models.ActivityResponse{
			ProgressID: progress.ID,
			QuestionID: question.ID,
			Question:   question.Prompt,
			Answer:     answer,
			IsCorrect:  evaluation.Correct,
			Feedback:   evaluation.Feedback,
			Score:      evaluation.Score,
			TimeSpent:  timeSpent,
			AnsweredAt: answeredAt,
		}
		if err := repo.CreateResponse(ctx, &response); err != nil {
			return err
		}
		return s.bump(ctx, repo, progress, map[string]interface{}{
			"attempts":   progress.Attempts + 1,
			"time_spent": progress.TimeSpent + timeSpent,
			"updated_at": now,
		})
	}

	if existing.Answer == answer {
		return nil
	}
	if progress.IsCompleted() {
		return ErrProgressCompleted
	}
	if answeredAt.Before(existing.AnsweredAt) {
		s.logger.Debug().Str("progress_key", key.String()).Str("question_id", question.ID).Msg("ignoring older replayed answer")
		return nil
	}

	if err := repo.UpdateResponse(ctx, existing.ID, map[string]interface{}{
		"answer":      answer,
		"is_correct":  evaluation.Correct,
		"feedback":    evaluation.Feedback,
		"score":       evaluation.Score,
		"time_spent":  timeSpent,
		"answered_at": answeredAt,
		"updated_at":  now,
	}); err != nil {
		return err
	}
	return s.bump(ctx, repo, progress, map[string]interface{}{"updated_at": now})
}

func (s *ledgerService) findOrStart(ctx context.Context, repo repository.ProgressRepository, key models.ProgressKey, now time.Time, pin datatypes.JSON) (models.ActivityProgress, error) {
	progress, err := repo.FindByKey(ctx, key)
	if err == nil {
		updates := map[string]interface{}{}
		if progress.Status == models.ProgressNotStarted {
			updates["status"] = models.ProgressInProgress
			updates["started_at"] = now
		}
		if len(progress.AnswerKey) == 0 && len(pin) > 0 {
			updates["answer_key"] = pin
		}
		if len(updates) == 0 {
			return progress, nil
		}
		if err := s.bump(ctx, repo, progress, updates); err != nil {
			return models.ActivityProgress{}, err
		}
		if _, ok := updates["status"]; ok {
			progress.Status = models.ProgressInProgress
			progress.StartedAt = &now
		}
		if _, ok := updates["answer_key"]; ok {
			progress.AnswerKey = pin
		}
		progress.Version++
		return progress, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ActivityProgress{}, err
	}

	progress = models.ActivityProgress{
		StudentID:    key.StudentID,
		PlanID:       key.PlanID,
		DayIndex:     key.DayIndex,
		ActivityType: string(key.ActivityType),
		Status:       models.ProgressInProgress,
		StartedAt:    &now,
		Version:      1,
		AnswerKey:    pin,
	}
	if err := repo.Create(ctx, &progress); err != nil {
		return models.ActivityProgress{}, err
	}
	return progress, nil
}

// bump applies a versioned update; losing the race aborts the transaction for a retry.
func (s *ledgerService) bump(ctx context.Context, repo repository.ProgressRepository, progress models.ActivityProgress, updates map[string]interface{}) error {
	affected, err := repo.UpdateVersioned(ctx, progress.ID, progress.Version, updates)
	if err != nil {
		return err
	}
	if affected == 0 {
		return errVersionConflict
	}
	return nil
}

// transact runs fn in a transaction, retrying version conflicts and unique
// violations before giving up with ErrStaleWrite.
func (s *ledgerService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxLedgerAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		lastErr = err
		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying progress write")
	}
	observability.LedgerStaleWrites().Inc()
	return &DomainError{Code: CodeStaleWrite, Message: ErrStaleWrite.Message, Err: lastErr}
}

func (s *ledgerService) MarkComplete(ctx context.Context, parentID uint, key models.ProgressKey, payload dto.CompleteActivityRequest) (dto.CompletionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CompletionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "ledger.mark_complete", trace.WithAttributes(
		attribute.String("progress.key", key.String()),
	))
	defer span.End()

	plan, _, err := s.resolveWritable(ctx, parentID, key)
	if err != nil {
		return dto.CompletionResponse{}, err
	}
	if _, err := s.progression.RequireAccess(ctx, plan.ID, key.DayIndex); err != nil {
		return dto.CompletionResponse{}, err
	}

	var (
		change    *DayStateChange
		completed bool
	)
	err = s.transact(ctx, func(tx *gorm.DB) error {
		change, completed = nil, false
		repo := s.progress.WithTx(tx)
		now := s.now().UTC()

		progress, err := s.findOrStart(ctx, repo, key, now, nil)
		if err != nil {
			return err
		}
		if progress.IsCompleted() {
			if progress.TimeSpent == payload.TimeSpent {
				return nil
			}
			return s.bump(ctx, repo, progress, map[string]interface{}{
				"time_spent": payload.TimeSpent,
				"updated_at": now,
			})
		}

		if err := s.bump(ctx, repo, progress, map[string]interface{}{
			"status":       models.ProgressCompleted,
			"completed_at": now,
			"time_spent":   payload.TimeSpent,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		completed = true

		change, err = s.progression.OnActivityCompleted(ctx, tx, plan, key.StudentID, key.DayIndex, key.ActivityType)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.CompletionResponse{}, err
	}

	s.publishCompletion(ctx, plan, key, completed, change)

	progress, err := s.load(ctx, key)
	if err != nil {
		return dto.CompletionResponse{}, err
	}
	response := dto.CompletionResponse{Progress: progress}
	if change != nil {
		day := dto.NewDayResponse(change.Day)
		response.Day = &day
		if change.NextDay != nil {
			next := dto.NewDayResponse(*change.NextDay)
			response.NextDay = &next
		}
		response.PlanCompleted = change.PlanCompleted
	}
	return response, nil
}

func (s *ledgerService) publishCompletion(ctx context.Context, plan models.Plan, key models.ProgressKey, completed bool, change *DayStateChange) {
	if s.events == nil || !completed {
		return
	}
	base := ProgressEvent{
		ParentID:  plan.ParentID,
		StudentID: plan.StudentID,
		PlanID:    plan.ID,
		DayIndex:  key.DayIndex,
	}

	activityDone := base
	activityDone.Type = EventActivityCompleted
	activityDone.ActivityType = string(key.ActivityType)
	events := []ProgressEvent{activityDone}

	if change != nil {
		dayDone := base
		dayDone.Type = EventDayCompleted
		events = append(events, dayDone)

		if change.NextDay != nil {
			unlocked := base
			unlocked.Type = EventDayUnlocked
			unlocked.DayIndex = change.NextDay.DayIndex
			events = append(events, unlocked)
		}
		if change.PlanCompleted {
			planDone := base
			planDone.Type = EventPlanCompleted
			events = append(events, planDone)
		}
	}
	s.events.Publish(ctx, events...)
}

func (s *ledgerService) GetProgress(ctx context.Context, parentID uint, key models.ProgressKey) (dto.ProgressResponse, error) {
	if _, _, err := s.resolve(ctx, parentID, key); err != nil {
		return dto.ProgressResponse{}, err
	}
	return s.load(ctx, key)
}

func (s *ledgerService) DayProgress(ctx context.Context, parentID, planID uint, dayIndex int) ([]dto.ProgressResponse, error) {
	plan, err := loadOwnedPlan(ctx, s.plans, parentID, planID)
	if err != nil {
		return nil, err
	}
	if len(activity.ScheduleForDay(dayIndex)) == 0 {
		return nil, ErrDayNotFound
	}
	rows, err := s.LoadProgress(ctx, plan.StudentID, plan.ID, dayIndex)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ProgressResponse, 0, len(rows))
	for _, t := range activity.ScheduleForDay(dayIndex) {
		key := models.ProgressKey{StudentID: plan.StudentID, PlanID: plan.ID, DayIndex: dayIndex, ActivityType: t}
		responses = append(responses, dto.NewProgressResponse(key.String(), rows[t]))
	}
	return responses, nil
}

func (s *ledgerService) LoadProgress(ctx context.Context, studentID, planID uint, dayIndex int) (map[activity.Type]models.ActivityProgress, error) {
	rows, err := s.progress.ListForDay(ctx, studentID, planID, dayIndex)
	if err != nil {
		return nil, err
	}
	byType := make(map[activity.Type]models.ActivityProgress, len(rows))
	for _, row := range rows {
		responses, err := s.progress.ListResponses(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		row.Responses = responses
		byType[activity.Type(row.ActivityType)] = row
	}
	for _, t := range activity.ScheduleForDay(dayIndex) {
		if _, ok := byType[t]; ok {
			continue
		}
		byType[t] = models.ActivityProgress{
			StudentID:    studentID,
			PlanID:       planID,
			DayIndex:     dayIndex,
			ActivityType: string(t),
			Status:       models.ProgressNotStarted,
		}
	}
	return byType, nil
}

func (s *ledgerService) load(ctx context.Context, key models.ProgressKey) (dto.ProgressResponse, error) {
	progress, err := s.progress.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NewProgressResponse(key.String(), models.ActivityProgress{
				ActivityType: string(key.ActivityType),
				Status:       models.ProgressNotStarted,
			}), nil
		}
		return dto.ProgressResponse{}, err
	}
	responses, err := s.progress.ListResponses(ctx, progress.ID)
	if err != nil {
		return dto.ProgressResponse{}, err
	}
	progress.Responses = responses
	return dto.NewProgressResponse(key.String(), progress), nil
}

// resolve loads the plan and student behind a key and checks the parent owns them.
func (s *ledgerService) resolve(ctx context.Context, parentID uint, key models.ProgressKey) (models.Plan, models.Student, error) {
	plan, err := loadOwnedPlan(ctx, s.plans, parentID, key.PlanID)
	if err != nil {
		return models.Plan{}, models.Student{}, err
	}
	if plan.StudentID != key.StudentID {
		return models.Plan{}, models.Student{}, ErrForbidden
	}
	student, err := s.students.GetByID(ctx, key.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Plan{}, models.Student{}, ErrStudentNotFound
		}
		return models.Plan{}, models.Student{}, fmt.Errorf("load student: %w", err)
	}
	return plan, student, nil
}

// resolveWritable is resolve for writes: the plan must have its story.
func (s *ledgerService) resolveWritable(ctx context.Context, parentID uint, key models.ProgressKey) (models.Plan, models.Student, error) {
	plan, student, err := s.resolve(ctx, parentID, key)
	if err != nil {
		return models.Plan{}, models.Student{}, err
	}
	if plan.Story == nil || plan.Status == models.PlanStatusGenerating {
		return models.Plan{}, models.Student{}, ErrStoryNotReady
	}
	return plan, student, nil
}
