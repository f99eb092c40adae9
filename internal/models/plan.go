package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/readalong-api/internal/activity"
)

// Plan statuses.
const (
	PlanStatusGenerating = "generating"
	PlanStatusActive     = "active"
	PlanStatusCompleted  = "completed"
)

// Day states. Transitions only move forward.
const (
	DayStateLocked    = "locked"
	DayStateAvailable = "available"
	DayStateComplete  = "complete"
)

// Plan is a multi-day reading curriculum for one student. At most one plan per
// student may be outside the completed state.
type Plan struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StudentID   uint       `gorm:"not null;uniqueIndex:idx_plans_open_student,where:status <> 'completed'" json:"student_id"`
	ParentID    uint       `gorm:"index;not null" json:"parent_id"`
	Name        string     `gorm:"size:255;not null" json:"name"`
	Theme       string     `gorm:"size:255" json:"theme"`
	Status      string     `gorm:"size:16;not null;index" json:"status"`
	StoryError  string     `gorm:"type:text" json:"story_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Days        []Day      `json:"days,omitempty"`
	Story       *Story     `json:"story,omitempty"`
}

// Story holds the generated text split into one part per day.
type Story struct {
	ID         uint                                          `gorm:"primaryKey" json:"id"`
	PlanID     uint                                          `gorm:"uniqueIndex;not null" json:"plan_id"`
	Title      string                                        `gorm:"size:255;not null" json:"title"`
	Themes     datatypes.JSONType[[]string]                  `json:"themes"`
	Part1      string                                        `gorm:"type:text;not null" json:"part1"`
	Part2      string                                        `gorm:"type:text;not null" json:"part2"`
	Part3      string                                        `gorm:"type:text;not null" json:"part3"`
	Vocabulary datatypes.JSONType[[]activity.VocabularyWord] `json:"vocabulary"`
	Model      string                                        `gorm:"size:128" json:"model,omitempty"`
	CreatedAt  time.Time                                     `json:"created_at"`
	UpdatedAt  time.Time                                     `json:"updated_at"`
}

// Part returns the reading text for a day.
func (s Story) Part(dayIndex int) string {
	switch dayIndex {
	case 1:
		return s.Part1
	case 2:
		return s.Part2
	case 3:
		return s.Part3
	default:
		return ""
	}
}

// Day is one unit of plan progression.
type Day struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PlanID      uint       `gorm:"not null;uniqueIndex:idx_days_plan_day" json:"plan_id"`
	DayIndex    int        `gorm:"not null;uniqueIndex:idx_days_plan_day" json:"day_index"`
	State       string     `gorm:"size:16;not null" json:"state"`
	UnlockedAt  *time.Time `json:"unlocked_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
