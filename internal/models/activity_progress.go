package models

import (
	"time"

	"gorm.io/datatypes"
)

// Progress statuses.
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// ActivityContent is a cached generated activity for one (plan, day, type).
type ActivityContent struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	PlanID       uint           `gorm:"not null;uniqueIndex:idx_activity_content_key" json:"plan_id"`
	DayIndex     int            `gorm:"not null;uniqueIndex:idx_activity_content_key" json:"day_index"`
	ActivityType string         `gorm:"size:32;not null;uniqueIndex:idx_activity_content_key" json:"activity_type"`
	Content      datatypes.JSON `gorm:"not null" json:"content"`
	StudentAge   int            `gorm:"not null" json:"student_age"`
	ContentHash  string         `gorm:"size:64;not null" json:"content_hash"`
	Model        string         `gorm:"size:128" json:"model,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsFresh reports whether the row can be served for the given input hash.
func (c ActivityContent) IsFresh(hash string, now time.Time) bool {
	if c.ContentHash != hash {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// ActivityProgress is the resumable unit of work for one student activity.
type ActivityProgress struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	StudentID    uint               `gorm:"not null;uniqueIndex:idx_activity_progress_key" json:"student_id"`
	PlanID       uint               `gorm:"not null;uniqueIndex:idx_activity_progress_key" json:"plan_id"`
	DayIndex     int                `gorm:"not null;uniqueIndex:idx_activity_progress_key" json:"day_index"`
	ActivityType string             `gorm:"size:32;not null;uniqueIndex:idx_activity_progress_key" json:"activity_type"`
	Status       string             `gorm:"size:16;not null" json:"status"`
	StartedAt    *time.Time         `json:"started_at"`
	CompletedAt  *time.Time         `json:"completed_at"`
	TimeSpent    int                `gorm:"not null;default:0" json:"time_spent"`
	Attempts     int                `gorm:"not null;default:0" json:"attempts"`
	Version      int                `gorm:"not null;default:1" json:"version"`
	AnswerKey    datatypes.JSON     `gorm:"type:json" json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Responses    []ActivityResponse `gorm:"foreignKey:ProgressID" json:"responses,omitempty"`
}

// IsCompleted reports whether the activity has been marked complete.
func (p ActivityProgress) IsCompleted() bool {
	return p.Status == ProgressCompleted
}

// ActivityResponse is the latest answer to one question of an activity.
// (ProgressID, QuestionID) is the natural key used to collapse replays.
type ActivityResponse struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProgressID uint      `gorm:"not null;uniqueIndex:idx_activity_response_key" json:"progress_id"`
	QuestionID string    `gorm:"size:64;not null;uniqueIndex:idx_activity_response_key" json:"question_id"`
	Question   string    `gorm:"type:text" json:"question"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	IsCorrect  bool      `json:"is_correct"`
	Feedback   string    `gorm:"type:text" json:"feedback"`
	Score      float64   `json:"score"`
	TimeSpent  int       `gorm:"not null;default:0" json:"time_spent"`
	AnsweredAt time.Time `gorm:"not null" json:"answered_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
