package scoring

import "fmt"

// Error codes returned by the scoring engine.
const (
	CodeInvalidAttempt    = "INVALID_ATTEMPT"
	CodeInvalidGradeLevel = "INVALID_GRADE_LEVEL"
)

// Error is a typed scoring failure. Callers match on Code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrInvalidAttempt matches any session rejected as too short to score.
	ErrInvalidAttempt = &Error{Code: CodeInvalidAttempt, Message: "reading session too short, try again"}
	// ErrInvalidGradeLevel matches any grade with no benchmark row.
	ErrInvalidGradeLevel = &Error{Code: CodeInvalidGradeLevel, Message: "no benchmark for grade level"}
)

func invalidAttempt(elapsed, min float64) error {
	return &Error{
		Code:    CodeInvalidAttempt,
		Message: fmt.Sprintf("reading session of %.1fs is too short, it must last longer than %.0fs, try again", elapsed, min),
	}
}

func invalidGrade(grade int) error {
	return &Error{
		Code:    CodeInvalidGradeLevel,
		Message: fmt.Sprintf("no benchmark for grade level %d", grade),
	}
}
