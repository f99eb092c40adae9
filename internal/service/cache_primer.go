package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/repository"
)

// CachePrimer generates a day's activities as soon as the day unlocks so the
// reader does not wait for them.
type CachePrimer struct {
	plans    repository.PlanRepository
	students repository.StudentRepository
	cache    ContentCacheService
	logger   zerolog.Logger
}

// NewCachePrimer builds a primer.
func NewCachePrimer(plans repository.PlanRepository, students repository.StudentRepository, cache ContentCacheService, logger zerolog.Logger) *CachePrimer {
	return &CachePrimer{
		plans:    plans,
		students: students,
		cache:    cache,
		logger:   logger.With().Str("component", "cache_primer").Logger(),
	}
}

// Handle is a ProgressHandler reacting to day.unlocked.
func (p *CachePrimer) Handle(ctx context.Context, event ProgressEvent) {
	if event.Type != EventDayUnlocked {
		return
	}
	if err := p.Prime(ctx, event.PlanID, event.DayIndex); err != nil {
		p.logger.Warn().Err(err).Uint("plan_id", event.PlanID).Int("day_index", event.DayIndex).Msg("failed to prime day content")
	}
}

// Prime fills the cache for every activity of a day. Failures of single
// activities are logged; the first one is returned.
func (p *CachePrimer) Prime(ctx context.Context, planID uint, dayIndex int) error {
	plan, err := p.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPlanNotFound
		}
		return err
	}
	student, err := p.students.GetByID(ctx, plan.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}

	var firstErr error
	for _, t := range activity.ScheduleForDay(dayIndex) {
		req, err := contentRequestFor(plan, student, dayIndex, t)
		if err != nil {
			return err
		}
		result, err := p.cache.GetOrGenerate(ctx, req)
		if err != nil {
			p.logger.Warn().Err(err).Str("key", req.Key()).Msg("priming activity failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.logger.Debug().Str("key", req.Key()).Str("source", string(result.Source)).Msg("activity primed")
	}
	return firstErr
}
