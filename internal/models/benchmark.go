package models

import (
	"time"

	"github.com/noah-isme/readalong-api/internal/scoring"
)

// Benchmark stores the reference reading ranges for one grade.
type Benchmark struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Grade            int       `gorm:"uniqueIndex;not null" json:"grade"`
	WPMMin           float64   `gorm:"not null" json:"wpm_min"`
	WPMMax           float64   `gorm:"not null" json:"wpm_max"`
	ComprehensionMin float64   `gorm:"not null" json:"comprehension_min"`
	ComprehensionMax float64   `gorm:"not null" json:"comprehension_max"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToScoring converts the row into the scoring engine's value type.
func (b Benchmark) ToScoring() scoring.Benchmark {
	return scoring.Benchmark{
		Grade:            b.Grade,
		WPMMin:           b.WPMMin,
		WPMMax:           b.WPMMax,
		ComprehensionMin: b.ComprehensionMin,
		ComprehensionMax: b.ComprehensionMax,
	}
}

// BenchmarkFromScoring builds a row from a scoring benchmark.
func BenchmarkFromScoring(b scoring.Benchmark) Benchmark {
	return Benchmark{
		Grade:            b.Grade,
		WPMMin:           b.WPMMin,
		WPMMax:           b.WPMMax,
		ComprehensionMin: b.ComprehensionMin,
		ComprehensionMax: b.ComprehensionMax,
	}
}
