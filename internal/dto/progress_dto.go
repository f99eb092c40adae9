package dto

import (
	"time"

	"github.com/noah-isme/readalong-api/internal/models"
)

// RecordResponseRequest records one answer. AnsweredAt is the client's clock and orders offline replays.
type RecordResponseRequest struct {
	QuestionID string     `json:"question_id" validate:"required,max=64"`
	Answer     string     `json:"answer" validate:"required,max=2000"`
	TimeSpent  int        `json:"time_spent" validate:"gte=0,lte=86400"`
	AnsweredAt *time.Time `json:"answered_at"`
}

// CompleteActivityRequest marks an activity complete.
type CompleteActivityRequest struct {
	TimeSpent int `json:"time_spent" validate:"gte=0,lte=86400"`
}

// ResponseView is the stored answer to one question.
type ResponseView struct {
	QuestionID string    `json:"question_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	IsCorrect  bool      `json:"is_correct"`
	Feedback   string    `json:"feedback"`
	Score      float64   `json:"score"`
	TimeSpent  int       `json:"time_spent"`
	AnsweredAt time.Time `json:"answered_at"`
}

// ProgressResponse is the resumable state of one activity.
type ProgressResponse struct {
	Key          string         `json:"key"`
	ActivityType string         `json:"activity_type"`
	Status       string         `json:"status"`
	Attempts     int            `json:"attempts"`
	TimeSpent    int            `json:"time_spent"`
	StartedAt    *time.Time     `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
	Responses    []ResponseView `json:"responses"`
}

// NewProgressResponse converts a progress row and its responses into a DTO.
func NewProgressResponse(key string, model models.ActivityProgress) ProgressResponse {
	responses := make([]ResponseView, 0, len(model.Responses))
	for _, r := range model.Responses {
		responses = append(responses, ResponseView{
			QuestionID: r.QuestionID,
			Question:   r.Question,
			Answer:     r.Answer,
			IsCorrect:  r.IsCorrect,
			Feedback:   r.Feedback,
			Score:      r.Score,
			TimeSpent:  r.TimeSpent,
			AnsweredAt: r.AnsweredAt,
		})
	}
	status := model.Status
	if status == "" {
		status = models.ProgressNotStarted
	}
	return ProgressResponse{
		Key:          key,
		ActivityType: model.ActivityType,
		Status:       status,
		Attempts:     model.Attempts,
		TimeSpent:    model.TimeSpent,
		StartedAt:    model.StartedAt,
		CompletedAt:  model.CompletedAt,
		Responses:    responses,
	}
}

// CompletionResponse reports the activity state and any day transitions it caused.
type CompletionResponse struct {
	Progress      ProgressResponse `json:"progress"`
	Day           *DayResponse     `json:"day,omitempty"`
	NextDay       *DayResponse     `json:"next_day,omitempty"`
	PlanCompleted bool             `json:"plan_completed"`
}

// ContentStatusResponse is the generation status a client polls for one activity.
type ContentStatusResponse struct {
	ProgressKey string `json:"progress_key"`
	Status      string `json:"status"`
}
