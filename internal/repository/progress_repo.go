package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/models"
)

// ProgressRepository stores activity progress and question responses.
type ProgressRepository interface {
	WithTx(tx *gorm.DB) ProgressRepository
	FindByKey(ctx context.Context, key models.ProgressKey) (models.ActivityProgress, error)
	Create(ctx context.Context, progress *models.ActivityProgress) error
	UpdateVersioned(ctx context.Context, id uint, version int, updates map[string]interface{}) (int64, error)
	ListForDay(ctx context.Context, studentID, planID uint, dayIndex int) ([]models.ActivityProgress, error)
	FindResponse(ctx context.Context, progressID uint, questionID string) (models.ActivityResponse, error)
	CreateResponse(ctx context.Context, response *models.ActivityResponse) error
	UpdateResponse(ctx context.Context, id uint, updates map[string]interface{}) error
	ListResponses(ctx context.Context, progressID uint) ([]models.ActivityResponse, error)
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository constructs a progress repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) WithTx(tx *gorm.DB) ProgressRepository {
	return &progressRepository{db: tx}
}

func (r *progressRepository) FindByKey(ctx context.Context, key models.ProgressKey) (models.ActivityProgress, error) {
	var progress models.ActivityProgress
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND plan_id = ? AND day_index = ? AND activity_type = ?",
			key.StudentID, key.PlanID, key.DayIndex, string(key.ActivityType)).
		First(&progress).Error
	if err != nil {
		return models.ActivityProgress{}, err
	}
	return progress, nil
}

func (r *progressRepository) Create(ctx context.Context, progress *models.ActivityProgress) error {
	return r.db.WithContext(ctx).Create(progress).Error
}

// UpdateVersioned applies updates only if the row still has the expected version
// and bumps the version. Zero rows means a concurrent writer got there first.
func (r *progressRepository) UpdateVersioned(ctx context.Context, id uint, version int, updates map[string]interface{}) (int64, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = version + 1

	tx := r.db.WithContext(ctx).Model(&models.ActivityProgress{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	return tx.RowsAffected, tx.Error
}

func (r *progressRepository) ListForDay(ctx context.Context, studentID, planID uint, dayIndex int) ([]models.ActivityProgress, error) {
	var rows []models.ActivityProgress
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND plan_id = ? AND day_index = ?", studentID, planID, dayIndex).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *progressRepository) FindResponse(ctx context.Context, progressID uint, questionID string) (models.ActivityResponse, error) {
	var response models.ActivityResponse
	err := r.db.WithContext(ctx).Where("progress_id = ? AND question_id = ?", progressID, questionID).First(&response).Error
	if err != nil {
		return models.ActivityResponse{}, err
	}
	return response, nil
}

func (r *progressRepository) CreateResponse(ctx context.Context, response *models.ActivityResponse) error {
	return r.db.WithContext(ctx).Create(response).Error
}

func (r *progressRepository) UpdateResponse(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.ActivityResponse{}).Where("id = ?", id).Updates(updates).Error
}

func (r *progressRepository) ListResponses(ctx context.Context, progressID uint) ([]models.ActivityResponse, error) {
	var rows []models.ActivityResponse
	if err := r.db.WithContext(ctx).Where("progress_id = ?", progressID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
