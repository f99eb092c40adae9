package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/readalong-api/internal/scoring"
)

// AssessmentQuestion is one comprehension question attached to a passage.
type AssessmentQuestion struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Assessment is one timed reading attempt. Telemetry can be saved repeatedly; scores are written once.
type Assessment struct {
	ID                 uint                                     `gorm:"primaryKey" json:"id"`
	StudentID          uint                                     `gorm:"index;not null" json:"student_id"`
	GradeLevel         int                                      `gorm:"not null" json:"grade_level"`
	Title              string                                   `gorm:"size:255" json:"title"`
	Passage            string                                   `gorm:"type:text;not null" json:"passage"`
	WordCount          int                                      `gorm:"not null" json:"word_count"`
	Questions          datatypes.JSONType[[]AssessmentQuestion] `json:"questions"`
	Answers            datatypes.JSONType[map[int]string]       `json:"answers"`
	ReadingTimeSeconds *float64                                 `json:"reading_time_seconds"`
	ErrorCount         *int                                     `json:"error_count"`
	RecordingURL       string                                   `gorm:"size:512" json:"recording_url,omitempty"`
	Result             datatypes.JSONType[*scoring.Result]      `json:"result"`
	FluencyScore       *float64                                 `json:"fluency_score"`
	ComprehensionScore *float64                                 `json:"comprehension_score"`
	CompositeScore     *float64                                 `json:"composite_score"`
	ReadingLevel       string                                   `gorm:"size:16" json:"reading_level,omitempty"`
	ReadingLevelLabel  string                                   `gorm:"size:64" json:"reading_level_label,omitempty"`
	ScoredAt           *time.Time                               `gorm:"index" json:"scored_at"`
	CreatedAt          time.Time                                `json:"created_at"`
	UpdatedAt          time.Time                                `json:"updated_at"`
}

// IsScored reports whether the final submission has been scored.
func (a Assessment) IsScored() bool {
	return a.ScoredAt != nil
}

// ScoringQuestions converts the stored questions into the scoring engine's form.
func (a Assessment) ScoringQuestions() []scoring.Question {
	stored := a.Questions.Data()
	out := make([]scoring.Question, 0, len(stored))
	for _, q := range stored {
		out = append(out, scoring.Question{Prompt: q.Prompt, CorrectAnswer: q.CorrectAnswer})
	}
	return out
}
