package dto

import "github.com/noah-isme/readalong-api/internal/scoring"

// BenchmarkResponse exposes one grade's reference ranges.
type BenchmarkResponse struct {
	Grade            int     `json:"grade"`
	WPMMin           float64 `json:"wpm_min"`
	WPMMax           float64 `json:"wpm_max"`
	ComprehensionMin float64 `json:"comprehension_min"`
	ComprehensionMax float64 `json:"comprehension_max"`
}

// NewBenchmarkResponseSlice lists the table in grade order.
func NewBenchmarkResponseSlice(table *scoring.Table) []BenchmarkResponse {
	grades := table.Grades()
	out := make([]BenchmarkResponse, 0, len(grades))
	for _, grade := range grades {
		b, _ := table.Lookup(grade)
		out = append(out, BenchmarkResponse{
			Grade:            b.Grade,
			WPMMin:           b.WPMMin,
			WPMMax:           b.WPMMax,
			ComprehensionMin: b.ComprehensionMin,
			ComprehensionMax: b.ComprehensionMax,
		})
	}
	return out
}
