package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/models"
)

// StudentRepository provides access to student records.
type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id uint) (models.Student, error)
	ListByParent(ctx context.Context, parentID uint) ([]models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) ListByParent(ctx context.Context, parentID uint) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Order("id ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}
