package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/observability"
	"github.com/noah-isme/readalong-api/internal/repository"
)

// DayStateChange describes the transitions fired by one activity completion.
type DayStateChange struct {
	Day           models.Day
	NextDay       *models.Day
	PlanCompleted bool
}

// ProgressionService owns the day state machine: locked -> available -> complete.
type ProgressionService interface {
	CanAccess(ctx context.Context, planID uint, dayIndex int) (bool, error)
	RequireAccess(ctx context.Context, planID uint, dayIndex int) (models.Day, error)
	// OnActivityCompleted must run inside the transaction that completed the activity.
	// It returns nil when no transition fired.
	OnActivityCompleted(ctx context.Context, tx *gorm.DB, plan models.Plan, studentID uint, dayIndex int, activityType activity.Type) (*DayStateChange, error)
}

type progressionService struct {
	days     repository.DayRepository
	plans    repository.PlanRepository
	progress repository.ProgressRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProgressionService builds the day progression service.
func NewProgressionService(days repository.DayRepository, plans repository.PlanRepository, progress repository.ProgressRepository, logger zerolog.Logger) ProgressionService {
	return &progressionService{
		days:     days,
		plans:    plans,
		progress: progress,
		logger:   logger.With().Str("component", "progression_service").Logger(),
		now:      time.Now,
	}
}

func (s *progressionService) CanAccess(ctx context.Context, planID uint, dayIndex int) (bool, error) {
	day, err := s.RequireAccess(ctx, planID, dayIndex)
	if err != nil {
		if errors.Is(err, ErrDayLocked) {
			return false, nil
		}
		return false, err
	}
	return day.State != models.DayStateLocked, nil
}

func (s *progressionService) RequireAccess(ctx context.Context, planID uint, dayIndex int) (models.Day, error) {
	day, err := s.days.Get(ctx, planID, dayIndex)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Day{}, ErrDayNotFound
		}
		return models.Day{}, err
	}
	if day.State == models.DayStateLocked {
		return models.Day{}, dayLocked(dayIndex)
	}
	return day, nil
}

func (s *progressionService) OnActivityCompleted(ctx context.Context, tx *gorm.DB, plan models.Plan, studentID uint, dayIndex int, activityType activity.Type) (*DayStateChange, error) {
	days := s.days.WithTx(tx)

	day, err := days.GetForUpdate(ctx, plan.ID, dayIndex)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDayNotFound
		}
		return nil, err
	}
	if day.State != models.DayStateAvailable {
		return nil, nil
	}

	rows, err := s.progress.WithTx(tx).ListForDay(ctx, studentID, plan.ID, dayIndex)
	if err != nil {
		return nil, fmt.Errorf("load day progress: %w", err)
	}
	if !DayComplete(dayIndex, rows) {
		return nil, nil
	}

	now := s.now().UTC()
	affected, err := days.Complete(ctx, day.ID, now)
	if err != nil {
		return nil, fmt.Errorf("complete day: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	day.State = models.DayStateComplete
	day.CompletedAt = &now
	observability.DayTransitions().WithLabelValues(models.DayStateComplete).Inc()
	change := &DayStateChange{Day: day}

	s.logger.Info().
		Uint("plan_id", plan.ID).
		Int("day_index", dayIndex).
		Str("activity_type", string(activityType)).
		Msg("day completed")

	if dayIndex < activity.PlanLength {
		unlocked, err := days.Unlock(ctx, plan.ID, dayIndex+1, now)
		if err != nil {
			return nil, fmt.Errorf("unlock next day: %w", err)
		}
		if unlocked > 0 {
			next, err := days.Get(ctx, plan.ID, dayIndex+1)
			if err != nil {
				return nil, err
			}
			change.NextDay = &next
			observability.DayTransitions().WithLabelValues(models.DayStateAvailable).Inc()
		}
		return change, nil
	}

	all, err := days.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	if PlanStatus(all) == models.PlanStatusCompleted {
		marked, err := s.plans.WithTx(tx).MarkCompleted(ctx, plan.ID, now)
		if err != nil {
			return nil, fmt.Errorf("complete plan: %w", err)
		}
		change.PlanCompleted = marked > 0
	}
	return change, nil
}

// DayComplete reports whether every activity scheduled on the day has completed progress.
func DayComplete(dayIndex int, rows []models.ActivityProgress) bool {
	scheduled := activity.ScheduleForDay(dayIndex)
	if len(scheduled) == 0 {
		return false
	}
	done := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.DayIndex == dayIndex && row.IsCompleted() {
			done[row.ActivityType] = true
		}
	}
	for _, t := range scheduled {
		if !done[string(t)] {
			return false
		}
	}
	return true
}

// PlanStatus aggregates day states: completed once every day is complete.
func PlanStatus(days []models.Day) string {
	if len(days) < activity.PlanLength {
		return models.PlanStatusActive
	}
	for _, day := range days {
		if day.State != models.DayStateComplete {
			return models.PlanStatusActive
		}
	}
	return models.PlanStatusCompleted
}
