package scoring

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MinElapsedSeconds is the threshold a reading session must exceed to be scored.
	MinElapsedSeconds = 10.0

	// ErrorPenaltyWords is the number of words deducted per reading error.
	ErrorPenaltyWords = 1.0

	// FluencyWeight and ComprehensionWeight combine into the composite score. They sum to 1.
	FluencyWeight       = 0.6
	ComprehensionWeight = 0.4

	// Composite thresholds for the reading level bands.
	BelowGradeThreshold = 60.0
	AboveGradeThreshold = 90.0

	// Normalised score at the bottom and top of a benchmark range.
	rangeFloorScore   = 60.0
	rangeCeilingScore = 90.0
)

// Level is the qualitative band derived from the composite score.
type Level string

const (
	LevelBelow Level = "below"
	LevelAt    Level = "at"
	LevelAbove Level = "above"
)

// ReadingSession is the raw telemetry of one assessment attempt.
type ReadingSession struct {
	StudentID        uint
	GradeLevel       int
	PassageWordCount int
	ElapsedSeconds   float64
	ErrorCount       int
}

// Question is a comprehension question with its answer key.
type Question struct {
	Prompt        string
	CorrectAnswer string
}

// Answers maps question index to the student's answer.
type Answers map[int]string

// Result holds every derived score for a session.
type Result struct {
	WordsPerMinute       float64 `json:"words_per_minute"`
	WordsCorrectPerMin   float64 `json:"words_correct_per_minute"`
	Accuracy             float64 `json:"accuracy"`
	FluencyScore         float64 `json:"fluency_score"`
	CorrectAnswers       int     `json:"correct_answers"`
	TotalQuestions       int     `json:"total_questions"`
	ComprehensionPercent float64 `json:"comprehension_percent"`
	ComprehensionScore   float64 `json:"comprehension_score"`
	CompositeScore       float64 `json:"composite_score"`
	Level                Level   `json:"level"`
	Label                string  `json:"label"`
}

// Engine scores sessions against a benchmark table.
type Engine struct {
	table      *Table
	minElapsed float64
}

// NewEngine builds an engine. A non-positive minElapsed falls back to MinElapsedSeconds.
func NewEngine(table *Table, minElapsed float64) *Engine {
	if minElapsed <= 0 {
		minElapsed = MinElapsedSeconds
	}
	return &Engine{table: table, minElapsed: minElapsed}
}

// Table exposes the engine's benchmark table.
func (e *Engine) Table() *Table {
	return e.table
}

// Score looks up the session's grade and scores it.
func (e *Engine) Score(session ReadingSession, questions []Question, answers Answers) (Result, error) {
	if session.ElapsedSeconds <= e.minElapsed {
		return Result{}, invalidAttempt(session.ElapsedSeconds, e.minElapsed)
	}
	benchmark, ok := e.table.Lookup(session.GradeLevel)
	if !ok {
		return Result{}, invalidGrade(session.GradeLevel)
	}
	return score(session, benchmark, questions, answers), nil
}

// Score computes the result for a session against an explicit benchmark using MinElapsedSeconds.
func Score(session ReadingSession, benchmark Benchmark, questions []Question, answers Answers) (Result, error) {
	if session.ElapsedSeconds <= MinElapsedSeconds {
		return Result{}, invalidAttempt(session.ElapsedSeconds, MinElapsedSeconds)
	}
	if benchmark.Grade != session.GradeLevel {
		return Result{}, invalidGrade(session.GradeLevel)
	}
	return score(session, benchmark, questions, answers), nil
}

func score(session ReadingSession, benchmark Benchmark, questions []Question, answers Answers) Result {
	minutes := session.ElapsedSeconds / 60
	words := float64(session.PassageWordCount)
	penalised := math.Max(0, words-float64(session.ErrorCount)*ErrorPenaltyWords)

	result := Result{
		WordsPerMinute:     round2(words / minutes),
		WordsCorrectPerMin: round2(penalised / minutes),
	}
	if words > 0 {
		result.Accuracy = round2(penalised / words * 100)
	}
	result.FluencyScore = round2(Normalize(penalised/minutes, benchmark.WPMMin, benchmark.WPMMax))

	result.TotalQuestions = len(questions)
	result.CorrectAnswers = CountCorrect(questions, answers)

	if result.TotalQuestions == 0 {
		result.CompositeScore = result.FluencyScore
	} else {
		percent := float64(result.CorrectAnswers) / float64(result.TotalQuestions) * 100
		result.ComprehensionPercent = round2(percent)
		result.ComprehensionScore = round2(Normalize(percent, benchmark.ComprehensionMin, benchmark.ComprehensionMax))
		result.CompositeScore = Composite(result.FluencyScore, result.ComprehensionScore)
	}

	result.Level = LevelFor(result.CompositeScore)
	result.Label = LabelFor(result.Level, session.GradeLevel)
	return result
}

// Composite combines fluency and comprehension with the fixed weights.
func Composite(fluency, comprehension float64) float64 {
	return round2(FluencyWeight*fluency + ComprehensionWeight*comprehension)
}

// Normalize maps a raw value onto 0-100 relative to the [lo, hi] benchmark range.
// lo maps to 60 and hi maps to 90; values beyond hi earn up to 10 more points over one range width.
func Normalize(value, lo, hi float64) float64 {
	if value <= 0 {
		return 0
	}
	width := hi - lo
	var out float64
	switch {
	case lo > 0 && value < lo:
		out = rangeFloorScore * value / lo
	case value <= hi:
		if width <= 0 {
			out = rangeCeilingScore
		} else {
			out = rangeFloorScore + (rangeCeilingScore-rangeFloorScore)*(value-lo)/width
		}
	default:
		bonus := 1.0
		if width > 0 {
			bonus = math.Min(1, (value-hi)/width)
		}
		out = rangeCeilingScore + (100-rangeCeilingScore)*bonus
	}
	return clamp(out, 0, 100)
}

// CountCorrect counts answers matching the key after trimming and case folding.
func CountCorrect(questions []Question, answers Answers) int {
	correct := 0
	for idx, q := range questions {
		given, ok := answers[idx]
		if !ok {
			continue
		}
		if AnswerMatches(given, q.CorrectAnswer) {
			correct++
		}
	}
	return correct
}

// AnswerMatches compares two answers case-insensitively after trimming whitespace.
func AnswerMatches(given, expected string) bool {
	given = strings.TrimSpace(given)
	expected = strings.TrimSpace(expected)
	if given == "" || expected == "" {
		return false
	}
	return strings.EqualFold(given, expected)
}

// LevelFor bands a composite score.
func LevelFor(composite float64) Level {
	switch {
	case composite >= AboveGradeThreshold:
		return LevelAbove
	case composite >= BelowGradeThreshold:
		return LevelAt
	default:
		return LevelBelow
	}
}

// LabelFor renders the human-readable reading level label.
func LabelFor(level Level, grade int) string {
	switch level {
	case LevelAbove:
		return fmt.Sprintf("Above grade %d level", grade)
	case LevelAt:
		return fmt.Sprintf("At grade %d level", grade)
	default:
		return fmt.Sprintf("Below grade %d level", grade)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
