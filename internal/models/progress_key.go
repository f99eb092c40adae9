package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/readalong-api/internal/activity"
)

// ErrInvalidProgressKey is returned when a progress key cannot be parsed.
var ErrInvalidProgressKey = errors.New("invalid progress key")

// ProgressKey identifies one resumable unit of work.
type ProgressKey struct {
	StudentID    uint
	PlanID       uint
	DayIndex     int
	ActivityType activity.Type
}

// String renders the key as "<studentId>.<planId>.<dayIndex>.<activityType>".
func (k ProgressKey) String() string {
	return fmt.Sprintf("%d.%d.%d.%s", k.StudentID, k.PlanID, k.DayIndex, k.ActivityType)
}

// ParseProgressKey parses the dotted string form.
func ParseProgressKey(raw string) (ProgressKey, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 4 {
		return ProgressKey{}, fmt.Errorf("%w: %q", ErrInvalidProgressKey, raw)
	}
	student, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || student == 0 {
		return ProgressKey{}, fmt.Errorf("%w: bad student id", ErrInvalidProgressKey)
	}
	plan, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || plan == 0 {
		return ProgressKey{}, fmt.Errorf("%w: bad plan id", ErrInvalidProgressKey)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil || day < 1 || day > activity.PlanLength {
		return ProgressKey{}, fmt.Errorf("%w: bad day index", ErrInvalidProgressKey)
	}
	typ, err := activity.ParseType(parts[3])
	if err != nil {
		return ProgressKey{}, fmt.Errorf("%w: %v", ErrInvalidProgressKey, err)
	}
	if !activity.ScheduledOn(day, typ) {
		return ProgressKey{}, fmt.Errorf("%w: %s is not scheduled on day %d", ErrInvalidProgressKey, typ, day)
	}
	return ProgressKey{StudentID: uint(student), PlanID: uint(plan), DayIndex: day, ActivityType: typ}, nil
}
