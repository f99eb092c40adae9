package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/readalong-api/internal/models"
)

// BenchmarkRepository reads and seeds grade benchmarks.
type BenchmarkRepository interface {
	List(ctx context.Context) ([]models.Benchmark, error)
	Count(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, rows []models.Benchmark) (int64, error)
}

type benchmarkRepository struct {
	db *gorm.DB
}

// NewBenchmarkRepository constructs a benchmark repository.
func NewBenchmarkRepository(db *gorm.DB) BenchmarkRepository {
	return &benchmarkRepository{db: db}
}

func (r *benchmarkRepository) List(ctx context.Context) ([]models.Benchmark, error) {
	var rows []models.Benchmark
	if err := r.db.WithContext(ctx).Order("grade ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *benchmarkRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Benchmark{}).Count(&total).Error
	return total, err
}

// Upsert writes rows keyed by grade, replacing existing ranges.
func (r *benchmarkRepository) Upsert(ctx context.Context, rows []models.Benchmark) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "grade"}},
		DoUpdates: clause.AssignmentColumns([]string{"wpm_min", "wpm_max", "comprehension_min", "comprehension_max", "updated_at"}),
	}).Create(&rows)
	return tx.RowsAffected, tx.Error
}
