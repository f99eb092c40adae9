package service

import (
	"errors"
	"fmt"
)

// Domain error codes surfaced to clients.
const (
	CodeDayLocked         = "DAY_LOCKED"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeGenerationPending = "GENERATION_PENDING"
	CodeStaleWrite        = "STALE_WRITE"
)

// DomainError is a recoverable, per-request failure with a stable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches any DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

var (
	// ErrDayLocked rejects access to a day whose predecessors are not complete.
	ErrDayLocked = &DomainError{Code: CodeDayLocked, Message: "this day is still locked, finish the previous day first"}
	// ErrGenerationFailed means the generator exhausted its retries and nothing could be served instead.
	ErrGenerationFailed = &DomainError{Code: CodeGenerationFailed, Message: "we could not create this activity, please try again"}
	// ErrGenerationPending means another request is generating the content right now.
	ErrGenerationPending = &DomainError{Code: CodeGenerationPending, Message: "this activity is being prepared, check back in a moment"}
	// ErrStaleWrite means a progress update kept losing optimistic concurrency races.
	ErrStaleWrite = &DomainError{Code: CodeStaleWrite, Message: "your progress changed on another device, please retry"}
)

var (
	ErrStudentNotFound     = errors.New("student not found")
	ErrParentNotFound      = errors.New("parent not found")
	ErrForbidden           = errors.New("you do not have access to this resource")
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrAssessmentFinalized = errors.New("assessment has already been scored")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrActivePlanExists    = errors.New("student already has a plan in progress")
	ErrStoryNotReady       = errors.New("the story for this plan is not ready yet")
	ErrDayNotFound         = errors.New("day not found")
	ErrProgressCompleted   = errors.New("activity is already complete")
	ErrUnknownQuestion     = errors.New("question does not belong to this activity")
	ErrInvalidRecording    = errors.New("recording must be an audio file")
	ErrRecordingTooLarge   = errors.New("recording exceeds the upload limit")
	ErrUploadsDisabled     = errors.New("recording uploads are not configured")
)

func dayLocked(dayIndex int) error {
	return &DomainError{
		Code:    CodeDayLocked,
		Message: fmt.Sprintf("day %d is still locked, finish the previous day first", dayIndex),
	}
}

func generationFailed(cause error) error {
	return &DomainError{Code: CodeGenerationFailed, Message: ErrGenerationFailed.Message, Err: cause}
}
