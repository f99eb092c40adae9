package dto

import (
	"time"

	"github.com/noah-isme/readalong-api/internal/activity"
	"github.com/noah-isme/readalong-api/internal/models"
)

// PlanCreateRequest starts a new multi-day plan for a student.
type PlanCreateRequest struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=120"`
	Theme     string `json:"theme" validate:"omitempty,max=120"`
}

// DayResponse summarises one day of a plan.
type DayResponse struct {
	DayIndex    int        `json:"day_index"`
	State       string     `json:"state"`
	Activities  []string   `json:"activities"`
	UnlockedAt  *time.Time `json:"unlocked_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewDayResponse converts a model into a DTO.
func NewDayResponse(model models.Day) DayResponse {
	types := activity.ScheduleForDay(model.DayIndex)
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return DayResponse{
		DayIndex:    model.DayIndex,
		State:       model.State,
		Activities:  names,
		UnlockedAt:  model.UnlockedAt,
		CompletedAt: model.CompletedAt,
	}
}

// PlanResponse is the serialized representation of a plan.
type PlanResponse struct {
	ID          uint          `json:"id"`
	StudentID   uint          `json:"student_id"`
	Name        string        `json:"name"`
	Theme       string        `json:"theme"`
	Status      string        `json:"status"`
	StoryTitle  string        `json:"story_title,omitempty"`
	StoryError  string        `json:"story_error,omitempty"`
	Days        []DayResponse `json:"days"`
	CompletedAt *time.Time    `json:"completed_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewPlanResponse converts a model into a DTO.
func NewPlanResponse(model models.Plan) PlanResponse {
	days := make([]DayResponse, 0, len(model.Days))
	for _, day := range model.Days {
		days = append(days, NewDayResponse(day))
	}
	resp := PlanResponse{
		ID:          model.ID,
		StudentID:   model.StudentID,
		Name:        model.Name,
		Theme:       model.Theme,
		Status:      model.Status,
		StoryError:  model.StoryError,
		Days:        days,
		CompletedAt: model.CompletedAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.Story != nil {
		resp.StoryTitle = model.Story.Title
	}
	return resp
}

// NewPlanResponseSlice converts a slice of models into DTOs.
func NewPlanResponseSlice(plans []models.Plan) []PlanResponse {
	responses := make([]PlanResponse, 0, len(plans))
	for _, plan := range plans {
		responses = append(responses, NewPlanResponse(plan))
	}
	return responses
}

// ActivityView is one activity of a day as served to the reader.
type ActivityView struct {
	Type        string           `json:"type"`
	ProgressKey string           `json:"progress_key"`
	Status      string           `json:"status"`
	Source      string           `json:"source,omitempty"`
	Content     interface{}      `json:"content,omitempty"`
	Progress    ProgressResponse `json:"progress"`
}

// DayViewResponse is the reading and activities for one unlocked day.
type DayViewResponse struct {
	PlanID     uint                      `json:"plan_id"`
	DayIndex   int                       `json:"day_index"`
	State      string                    `json:"state"`
	StoryTitle string                    `json:"story_title"`
	StoryText  string                    `json:"story_text"`
	Vocabulary []activity.VocabularyWord `json:"vocabulary"`
	Activities []ActivityView            `json:"activities"`
}
