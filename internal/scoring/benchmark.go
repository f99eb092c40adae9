package scoring

import "sort"

// Benchmark is the per-grade reference range used to normalise raw reading telemetry.
type Benchmark struct {
	Grade            int     `json:"grade"`
	WPMMin           float64 `json:"wpm_min"`
	WPMMax           float64 `json:"wpm_max"`
	ComprehensionMin float64 `json:"comprehension_min"`
	ComprehensionMax float64 `json:"comprehension_max"`
}

// DefaultBenchmarks are seeded into an empty benchmarks table.
var DefaultBenchmarks = []Benchmark{
	{Grade: 1, WPMMin: 40, WPMMax: 60, ComprehensionMin: 60, ComprehensionMax: 80},
	{Grade: 2, WPMMin: 70, WPMMax: 100, ComprehensionMin: 65, ComprehensionMax: 85},
	{Grade: 3, WPMMin: 80, WPMMax: 140, ComprehensionMin: 70, ComprehensionMax: 90},
	{Grade: 4, WPMMin: 100, WPMMax: 150, ComprehensionMin: 70, ComprehensionMax: 90},
	{Grade: 5, WPMMin: 110, WPMMax: 160, ComprehensionMin: 75, ComprehensionMax: 95},
	{Grade: 6, WPMMin: 120, WPMMax: 170, ComprehensionMin: 75, ComprehensionMax: 95},
}

// Table is an immutable grade -> benchmark lookup.
type Table struct {
	byGrade map[int]Benchmark
}

// NewTable copies the rows into a read-only lookup. Later rows for the same grade win.
func NewTable(rows []Benchmark) *Table {
	byGrade := make(map[int]Benchmark, len(rows))
	for _, row := range rows {
		byGrade[row.Grade] = row
	}
	return &Table{byGrade: byGrade}
}

// Lookup returns the benchmark for the grade.
func (t *Table) Lookup(grade int) (Benchmark, bool) {
	if t == nil {
		return Benchmark{}, false
	}
	b, ok := t.byGrade[grade]
	return b, ok
}

// Grades lists the grades present in ascending order.
func (t *Table) Grades() []int {
	if t == nil {
		return nil
	}
	grades := make([]int, 0, len(t.byGrade))
	for grade := range t.byGrade {
		grades = append(grades, grade)
	}
	sort.Ints(grades)
	return grades
}

// Len reports the number of grades in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byGrade)
}
