package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/readalong-api/internal/models"
)

// PlanRepository persists plans and their stories.
type PlanRepository interface {
	WithTx(tx *gorm.DB) PlanRepository
	CreateWithDays(ctx context.Context, plan *models.Plan, days []models.Day) error
	GetByID(ctx context.Context, id uint) (models.Plan, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.Plan, error)
	GetStory(ctx context.Context, planID uint) (models.Story, error)
	SaveStory(ctx context.Context, story *models.Story) error
	SetStoryError(ctx context.Context, planID uint, message string) error
	MarkCompleted(ctx context.Context, planID uint, at time.Time) (int64, error)
}

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository constructs a plan repository.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) WithTx(tx *gorm.DB) PlanRepository {
	return &planRepository{db: tx}
}

// CreateWithDays inserts the plan and its day rows atomically.
func (r *planRepository) CreateWithDays(ctx context.Context, plan *models.Plan, days []models.Day) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(plan).Error; err != nil {
			return err
		}
		for i := range days {
			days[i].PlanID = plan.ID
		}
		if err := tx.Create(&days).Error; err != nil {
			return err
		}
		plan.Days = days
		return nil
	})
}

func (r *planRepository) GetByID(ctx context.Context, id uint) (models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Preload("Days", func(db *gorm.DB) *gorm.DB { return db.Order("day_index ASC") }).
		Preload("Story").
		First(&plan, id).Error
	if err != nil {
		return models.Plan{}, err
	}
	return plan, nil
}

func (r *planRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Preload("Days", func(db *gorm.DB) *gorm.DB { return db.Order("day_index ASC") }).
		Where("student_id = ?", studentID).
		Order("created_at DESC, id DESC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *planRepository) GetStory(ctx context.Context, planID uint) (models.Story, error) {
	var story models.Story
	if err := r.db.WithContext(ctx).Where("plan_id = ?", planID).First(&story).Error; err != nil {
		return models.Story{}, err
	}
	return story, nil
}

// SaveStory upserts the plan's story and moves the plan from generating to active.
func (r *planRepository) SaveStory(ctx context.Context, story *models.Story) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plan_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "themes", "part1", "part2", "part3", "vocabulary", "model", "updated_at"}),
		}).Create(story).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Plan{}).
			Where("id = ? AND status = ?", story.PlanID, models.PlanStatusGenerating).
			Updates(map[string]interface{}{
				"status":      models.PlanStatusActive,
				"story_error": "",
				"updated_at":  time.Now().UTC(),
			}).Error
	})
}

func (r *planRepository) SetStoryError(ctx context.Context, planID uint, message string) error {
	return r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", planID).
		Updates(map[string]interface{}{"story_error": message, "updated_at": time.Now().UTC()}).Error
}

// MarkCompleted flips an active plan to completed once.
func (r *planRepository) MarkCompleted(ctx context.Context, planID uint, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Plan{}).
		Where("id = ? AND status = ?", planID, models.PlanStatusActive).
		Updates(map[string]interface{}{
			"status":       models.PlanStatusCompleted,
			"completed_at": at,
			"updated_at":   at,
		})
	return tx.RowsAffected, tx.Error
}
