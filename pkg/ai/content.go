package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StoryPart is one day's portion of a story.
type StoryPart struct {
	Text string `json:"text"`
}

// StoryWord is a vocabulary entry attached to a story.
type StoryWord struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example,omitempty"`
}

// StoryPayload is the decoded story reply.
type StoryPayload struct {
	Title      string      `json:"title"`
	Parts      []StoryPart `json:"parts"`
	Vocabulary []StoryWord `json:"vocabulary"`
}

// AssessmentQuestion is one placement comprehension question.
type AssessmentQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// AssessmentPayload is the decoded placement passage reply.
type AssessmentPayload struct {
	Title     string               `json:"title"`
	Passage   string               `json:"passage"`
	Questions []AssessmentQuestion `json:"questions"`
}

// ParseStory decodes and checks a story reply against the expected part count.
func ParseStory(raw json.RawMessage, parts int) (StoryPayload, error) {
	var story StoryPayload
	if err := json.Unmarshal(raw, &story); err != nil {
		return StoryPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("decode story: %w", err)}
	}
	if strings.TrimSpace(story.Title) == "" {
		return StoryPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("story has no title")}
	}
	if len(story.Parts) < parts {
		return StoryPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("story has %d parts, want %d", len(story.Parts), parts)}
	}
	story.Parts = story.Parts[:parts]
	for i, p := range story.Parts {
		if strings.TrimSpace(p.Text) == "" {
			return StoryPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("story part %d is empty", i+1)}
		}
	}
	return story, nil
}

// ParseAssessment decodes and checks a placement passage reply.
func ParseAssessment(raw json.RawMessage) (AssessmentPayload, error) {
	var payload AssessmentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return AssessmentPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("decode assessment: %w", err)}
	}
	if len(strings.Fields(payload.Passage)) == 0 {
		return AssessmentPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("assessment passage is empty")}
	}
	if len(payload.Questions) == 0 {
		return AssessmentPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("assessment has no questions")}
	}
	for i, q := range payload.Questions {
		if strings.TrimSpace(q.Prompt) == "" || strings.TrimSpace(q.Answer) == "" {
			return AssessmentPayload{}, &InvalidResponseError{Content: raw, Err: fmt.Errorf("assessment question %d is incomplete", i+1)}
		}
	}
	return payload, nil
}
