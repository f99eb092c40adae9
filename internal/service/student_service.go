package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/readalong-api/internal/dto"
	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/repository"
)

// ParentIdentity is the authenticated parent taken from the token.
type ParentIdentity struct {
	ID    uint
	Email string
	Name  string
}

// StudentService manages the students owned by a parent.
type StudentService interface {
	EnsureParent(ctx context.Context, identity ParentIdentity) error
	Create(ctx context.Context, parentID uint, payload dto.StudentCreateRequest) (dto.StudentResponse, error)
	List(ctx context.Context, parentID uint) ([]dto.StudentResponse, error)
	Get(ctx context.Context, parentID, studentID uint) (dto.StudentResponse, error)
	Owned(ctx context.Context, parentID, studentID uint) (models.Student, error)
}

type studentService struct {
	parents   repository.ParentRepository
	students  repository.StudentRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewStudentService builds a student service.
func NewStudentService(parents repository.ParentRepository, students repository.StudentRepository, validate *validator.Validate, logger zerolog.Logger) StudentService {
	return &studentService{
		parents:   parents,
		students:  students,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "student_service").Logger(),
	}
}

func (s *studentService) EnsureParent(ctx context.Context, identity ParentIdentity) error {
	if identity.ID == 0 {
		return ErrForbidden
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		email = fmt.Sprintf("parent-%d@users.readalong.local", identity.ID)
	}
	parent := models.Parent{ID: identity.ID, Email: email, Name: strings.TrimSpace(identity.Name)}
	if err := s.parents.Ensure(ctx, &parent); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}
	return nil
}

func (s *studentService) Create(ctx context.Context, parentID uint, payload dto.StudentCreateRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}
	if _, err := s.parents.GetByID(ctx, parentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StudentResponse{}, ErrParentNotFound
		}
		return dto.StudentResponse{}, err
	}

	interests := make([]string, 0, len(payload.Interests))
	for _, interest := range payload.Interests {
		if clean := strings.TrimSpace(s.sanitizer.Sanitize(interest)); clean != "" {
			interests = append(interests, clean)
		}
	}

	student := models.Student{
		ParentID:   parentID,
		Name:       strings.TrimSpace(s.sanitizer.Sanitize(payload.Name)),
		Age:        payload.Age,
		GradeLevel: payload.GradeLevel,
		Interests:  datatypes.NewJSONType(interests),
	}
	if student.Name == "" {
		return dto.StudentResponse{}, fmt.Errorf("student name is empty after sanitization")
	}

	if err := s.students.Create(ctx, &student); err != nil {
		return dto.StudentResponse{}, err
	}

	s.logger.Info().Uint("student_id", student.ID).Uint("parent_id", parentID).Msg("student created")

	return dto.NewStudentResponse(student), nil
}

func (s *studentService) List(ctx context.Context, parentID uint) ([]dto.StudentResponse, error) {
	students, err := s.students.ListByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return dto.NewStudentResponseSlice(students), nil
}

func (s *studentService) Get(ctx context.Context, parentID, studentID uint) (dto.StudentResponse, error) {
	student, err := s.Owned(ctx, parentID, studentID)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	return dto.NewStudentResponse(student), nil
}

// Owned loads a student and checks that parentID owns it.
func (s *studentService) Owned(ctx context.Context, parentID, studentID uint) (models.Student, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Student{}, ErrStudentNotFound
		}
		return models.Student{}, err
	}
	if student.ParentID != parentID {
		return models.Student{}, ErrForbidden
	}
	return student, nil
}
