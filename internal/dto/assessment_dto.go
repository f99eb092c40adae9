package dto

import (
	"time"

	"github.com/noah-isme/readalong-api/internal/models"
	"github.com/noah-isme/readalong-api/internal/scoring"
)

// AssessmentCreateRequest starts a new placement assessment for a student.
type AssessmentCreateRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
}

// ReadingRequest carries raw reading telemetry. It can be resubmitted until the assessment is scored.
type ReadingRequest struct {
	ReadingTimeSeconds float64 `json:"reading_time_seconds" validate:"gte=0,lte=3600"`
	ErrorCount         int     `json:"error_count" validate:"gte=0,lte=1000"`
}

// SubmitAssessmentRequest finalises an assessment. Telemetry here overrides earlier reading saves.
type SubmitAssessmentRequest struct {
	Answers            map[int]string `json:"answers" validate:"omitempty,dive,max=500"`
	ReadingTimeSeconds *float64       `json:"reading_time_seconds" validate:"omitempty,gte=0,lte=3600"`
	ErrorCount         *int           `json:"error_count" validate:"omitempty,gte=0,lte=1000"`
}

// AssessmentQuestionResponse is a question as shown to the reader. Answers appear once scored.
type AssessmentQuestionResponse struct {
	Index         int      `json:"index"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// AssessmentResponse is the serialized representation of an assessment.
type AssessmentResponse struct {
	ID                 uint                         `json:"id"`
	StudentID          uint                         `json:"student_id"`
	GradeLevel         int                          `json:"grade_level"`
	Title              string                       `json:"title"`
	Passage            string                       `json:"passage"`
	WordCount          int                          `json:"word_count"`
	Questions          []AssessmentQuestionResponse `json:"questions"`
	Answers            map[int]string               `json:"answers,omitempty"`
	ReadingTimeSeconds *float64                     `json:"reading_time_seconds"`
	ErrorCount         *int                         `json:"error_count"`
	RecordingURL       string                       `json:"recording_url,omitempty"`
	FluencyScore       *float64                     `json:"fluency_score"`
	ComprehensionScore *float64                     `json:"comprehension_score"`
	CompositeScore     *float64                     `json:"composite_score"`
	ReadingLevel       string                       `json:"reading_level,omitempty"`
	ReadingLevelLabel  string                       `json:"reading_level_label,omitempty"`
	Result             *scoring.Result              `json:"result,omitempty"`
	Scored             bool                         `json:"scored"`
	ScoredAt           *time.Time                   `json:"scored_at"`
	CreatedAt          time.Time                    `json:"created_at"`
	UpdatedAt          time.Time                    `json:"updated_at"`
}

// NewAssessmentResponse converts a model into a DTO, hiding answer keys until scoring.
func NewAssessmentResponse(model models.Assessment) AssessmentResponse {
	scored := model.IsScored()
	stored := model.Questions.Data()
	questions := make([]AssessmentQuestionResponse, 0, len(stored))
	for i, q := range stored {
		item := AssessmentQuestionResponse{Index: i, Prompt: q.Prompt, Options: q.Options}
		if scored {
			item.CorrectAnswer = q.CorrectAnswer
		}
		questions = append(questions, item)
	}

	return AssessmentResponse{
		ID:                 model.ID,
		StudentID:          model.StudentID,
		GradeLevel:         model.GradeLevel,
		Title:              model.Title,
		Passage:            model.Passage,
		WordCount:          model.WordCount,
		Questions:          questions,
		Answers:            model.Answers.Data(),
		ReadingTimeSeconds: model.ReadingTimeSeconds,
		ErrorCount:         model.ErrorCount,
		RecordingURL:       model.RecordingURL,
		FluencyScore:       model.FluencyScore,
		ComprehensionScore: model.ComprehensionScore,
		CompositeScore:     model.CompositeScore,
		ReadingLevel:       model.ReadingLevel,
		ReadingLevelLabel:  model.ReadingLevelLabel,
		Result:             model.Result.Data(),
		Scored:             scored,
		ScoredAt:           model.ScoredAt,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

// NewAssessmentResponseSlice converts a slice of models into DTOs.
func NewAssessmentResponseSlice(assessments []models.Assessment) []AssessmentResponse {
	responses := make([]AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		responses = append(responses, NewAssessmentResponse(assessment))
	}
	return responses
}
