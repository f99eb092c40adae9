package activity

import (
	"fmt"
	"strings"
)

// Type identifies one comprehension exercise kind.
type Type string

const (
	TypeWho        Type = "who"
	TypeWhere      Type = "where"
	TypeSequence   Type = "sequence"
	TypeMainIdea   Type = "main_idea"
	TypeVocabulary Type = "vocabulary"
	TypePredict    Type = "predict"
)

// PlanLength is the number of days in every plan; one story part per day.
const PlanLength = 3

var schedule = map[int][]Type{
	1: {TypeWho, TypeWhere},
	2: {TypeSequence, TypePredict},
	3: {TypeMainIdea, TypeVocabulary},
}

// AllTypes lists every activity type.
func AllTypes() []Type {
	return []Type{TypeWho, TypeWhere, TypeSequence, TypeMainIdea, TypeVocabulary, TypePredict}
}

// ScheduleForDay returns the activities that make up the given day.
func ScheduleForDay(dayIndex int) []Type {
	types := schedule[dayIndex]
	return append([]Type(nil), types...)
}

// ScheduledOn reports whether t is part of the given day.
func ScheduledOn(dayIndex int, t Type) bool {
	for _, candidate := range schedule[dayIndex] {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseType normalises and validates an activity type string.
func ParseType(raw string) (Type, error) {
	normalized := Type(strings.ToLower(strings.TrimSpace(raw)))
	normalized = Type(strings.ReplaceAll(string(normalized), "-", "_"))
	for _, t := range AllTypes() {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown activity type %q", raw)
}

// Describe returns the instruction given to the generator for each type.
func (t Type) Describe() string {
	switch t {
	case TypeWho:
		return "character identification: who is in the story and what they are like"
	case TypeWhere:
		return "setting identification: where and when the story takes place"
	case TypeSequence:
		return "event sequencing: put the story events in the order they happened"
	case TypeMainIdea:
		return "main idea: what the passage is mostly about"
	case TypeVocabulary:
		return "vocabulary: meanings of words used in the passage"
	case TypePredict:
		return "prediction: what might happen next, using clues from the passage"
	default:
		return string(t)
	}
}
