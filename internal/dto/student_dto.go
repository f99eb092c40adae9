package dto

import (
	"time"

	"github.com/noah-isme/readalong-api/internal/models"
)

// StudentCreateRequest describes the payload for registering a child reader.
type StudentCreateRequest struct {
	Name       string   `json:"name" validate:"required,min=1,max=128"`
	Age        int      `json:"age" validate:"required,min=3,max=14"`
	GradeLevel int      `json:"grade_level" validate:"required,min=1,max=6"`
	Interests  []string `json:"interests" validate:"omitempty,max=10,dive,min=1,max=64"`
}

// StudentResponse is the serialized representation of a student.
type StudentResponse struct {
	ID         uint      `json:"id"`
	ParentID   uint      `json:"parent_id"`
	Name       string    `json:"name"`
	Age        int       `json:"age"`
	GradeLevel int       `json:"grade_level"`
	Interests  []string  `json:"interests"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStudentResponse converts a model into a DTO.
func NewStudentResponse(model models.Student) StudentResponse {
	interests := model.Interests.Data()
	if interests == nil {
		interests = []string{}
	}
	return StudentResponse{
		ID:         model.ID,
		ParentID:   model.ParentID,
		Name:       model.Name,
		Age:        model.Age,
		GradeLevel: model.GradeLevel,
		Interests:  interests,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

// NewStudentResponseSlice converts a slice of models into DTOs.
func NewStudentResponseSlice(students []models.Student) []StudentResponse {
	responses := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, NewStudentResponse(student))
	}
	return responses
}
