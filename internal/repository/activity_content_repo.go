package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/readalong-api/internal/models"
)

// ActivityContentRepository stores cached activity content keyed by (plan, day, type).
type ActivityContentRepository interface {
	Get(ctx context.Context, planID uint, dayIndex int, activityType string) (models.ActivityContent, error)
	Upsert(ctx context.Context, row *models.ActivityContent) error
}

type activityContentRepository struct {
	db *gorm.DB
}

// NewActivityContentRepository constructs a content cache repository.
func NewActivityContentRepository(db *gorm.DB) ActivityContentRepository {
	return &activityContentRepository{db: db}
}

func (r *activityContentRepository) Get(ctx context.Context, planID uint, dayIndex int, activityType string) (models.ActivityContent, error) {
	var row models.ActivityContent
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND day_index = ? AND activity_type = ?", planID, dayIndex, activityType).
		First(&row).Error
	if err != nil {
		return models.ActivityContent{}, err
	}
	return row, nil
}

// Upsert replaces the content for the row's key.
func (r *activityContentRepository) Upsert(ctx context.Context, row *models.ActivityContent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}, {Name: "day_index"}, {Name: "activity_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "student_age", "content_hash", "model", "expires_at", "updated_at"}),
	}).Create(row).Error
}
