package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/readalong-api/internal/models"
)

// ParentRepository persists parent accounts.
type ParentRepository interface {
	Ensure(ctx context.Context, parent *models.Parent) error
	GetByID(ctx context.Context, id uint) (models.Parent, error)
}

type parentRepository struct {
	db *gorm.DB
}

// NewParentRepository constructs a parent repository.
func NewParentRepository(db *gorm.DB) ParentRepository {
	return &parentRepository{db: db}
}

// Ensure inserts the parent if no row with its id exists yet.
func (r *parentRepository) Ensure(ctx context.Context, parent *models.Parent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(parent).Error
}

func (r *parentRepository) GetByID(ctx context.Context, id uint) (models.Parent, error) {
	var parent models.Parent
	if err := r.db.WithContext(ctx).First(&parent, id).Error; err != nil {
		return models.Parent{}, err
	}
	return parent, nil
}
