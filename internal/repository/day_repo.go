package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/models"
)

// DayRepository reads and advances plan days. State changes are conditional so
// each transition can only happen once.
type DayRepository interface {
	WithTx(tx *gorm.DB) DayRepository
	Get(ctx context.Context, planID uint, dayIndex int) (models.Day, error)
	GetForUpdate(ctx context.Context, planID uint, dayIndex int) (models.Day, error)
	ListByPlan(ctx context.Context, planID uint) ([]models.Day, error)
	Complete(ctx context.Context, dayID uint, at time.Time) (int64, error)
	Unlock(ctx context.Context, planID uint, dayIndex int, at time.Time) (int64, error)
}

type dayRepository struct {
	db *gorm.DB
}

// NewDayRepository constructs a day repository.
func NewDayRepository(db *gorm.DB) DayRepository {
	return &dayRepository{db: db}
}

func (r *dayRepository) WithTx(tx *gorm.DB) DayRepository {
	return &dayRepository{db: tx}
}

func (r *dayRepository) Get(ctx context.Context, planID uint, dayIndex int) (models.Day, error) {
	var day models.Day
	err := r.db.WithContext(ctx).Where("plan_id = ? AND day_index = ?", planID, dayIndex).First(&day).Error
	if err != nil {
		return models.Day{}, err
	}
	return day, nil
}

func (r *dayRepository) GetForUpdate(ctx context.Context, planID uint, dayIndex int) (models.Day, error) {
	var day models.Day
	err := ForUpdate(r.db.WithContext(ctx)).Where("plan_id = ? AND day_index = ?", planID, dayIndex).First(&day).Error
	if err != nil {
		return models.Day{}, err
	}
	return day, nil
}

func (r *dayRepository) ListByPlan(ctx context.Context, planID uint) ([]models.Day, error) {
	var days []models.Day
	if err := r.db.WithContext(ctx).Where("plan_id = ?", planID).Order("day_index ASC").Find(&days).Error; err != nil {
		return nil, err
	}
	return days, nil
}

// Complete marks an unlocked day complete. Zero rows means it was already complete.
func (r *dayRepository) Complete(ctx context.Context, dayID uint, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Day{}).
		Where("id = ? AND state = ?", dayID, models.DayStateAvailable).
		Updates(map[string]interface{}{
			"state":        models.DayStateComplete,
			"completed_at": at,
			"updated_at":   at,
		})
	return tx.RowsAffected, tx.Error
}

// Unlock makes a locked day available. Zero rows means it was not locked.
func (r *dayRepository) Unlock(ctx context.Context, planID uint, dayIndex int, at time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Day{}).
		Where("plan_id = ? AND day_index = ? AND state = ?", planID, dayIndex, models.DayStateLocked).
		Updates(map[string]interface{}{
			"state":       models.DayStateAvailable,
			"unlocked_at": at,
			"updated_at":  at,
		})
	return tx.RowsAffected, tx.Error
}
