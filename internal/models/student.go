package models

import (
	"time"

	"gorm.io/datatypes"
)

// Parent owns one or more students. The row is created on first authenticated use.
type Parent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Students  []Student `json:"-"`
}

// Student is a child reader managed by a parent.
type Student struct {
	ID         uint                         `gorm:"primaryKey" json:"id"`
	ParentID   uint                         `gorm:"index;not null" json:"parent_id"`
	Name       string                       `gorm:"size:128;not null" json:"name"`
	Age        int                          `gorm:"not null" json:"age"`
	GradeLevel int                          `gorm:"not null" json:"grade_level"`
	Interests  datatypes.JSONType[[]string] `json:"interests"`
	CreatedAt  time.Time                    `json:"created_at"`
	UpdatedAt  time.Time                    `json:"updated_at"`
}
