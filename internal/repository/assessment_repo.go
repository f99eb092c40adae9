package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/models"
)

// AssessmentRepository persists reading assessments.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	ListByStudent(ctx context.Context, studentID uint) ([]models.Assessment, error)
	SaveReading(ctx context.Context, id uint, readingTime float64, errorCount int) (int64, error)
	SaveScore(ctx context.Context, id uint, scored models.Assessment) (int64, error)
	SetRecording(ctx context.Context, id uint, url string) error
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository constructs an assessment repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.WithContext(ctx).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (r *assessmentRepository) ListByStudent(ctx context.Context, studentID uint) ([]models.Assessment, error) {
	var items []models.Assessment
	if err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// SaveReading stores telemetry on an unscored assessment. Zero rows means it was already scored or is missing.
func (r *assessmentRepository) SaveReading(ctx context.Context, id uint, readingTime float64, errorCount int) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("id = ? AND scored_at IS NULL", id).
		Updates(map[string]interface{}{
			"reading_time_seconds": readingTime,
			"error_count":          errorCount,
			"updated_at":           time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

// SaveScore writes the final answers and scores once. Zero rows means another submission won.
func (r *assessmentRepository) SaveScore(ctx context.Context, id uint, scored models.Assessment) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("id = ? AND scored_at IS NULL", id).
		Updates(map[string]interface{}{
			"answers":              scored.Answers,
			"reading_time_seconds": scored.ReadingTimeSeconds,
			"error_count":          scored.ErrorCount,
			"result":               scored.Result,
			"fluency_score":        scored.FluencyScore,
			"comprehension_score":  scored.ComprehensionScore,
			"composite_score":      scored.CompositeScore,
			"reading_level":        scored.ReadingLevel,
			"reading_level_label":  scored.ReadingLevelLabel,
			"scored_at":            scored.ScoredAt,
			"updated_at":           time.Now().UTC(),
		})
	return tx.RowsAffected, tx.Error
}

func (r *assessmentRepository) SetRecording(ctx context.Context, id uint, url string) error {
	return r.db.WithContext(ctx).Model(&models.Assessment{}).Where("id = ?", id).
		Updates(map[string]interface{}{"recording_url": url, "updated_at": time.Now().UTC()}).Error
}
