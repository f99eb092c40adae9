package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = "You write warm, age-appropriate reading material for children learning to read. " +
	"Never include violence, scary content, brand names or personal data. Reply with a single JSON object and nothing else."

// StoryInput describes the multi-part story for a plan.
type StoryInput struct {
	GradeLevel   int
	Age          int
	Interests    []string
	Theme        string
	Parts        int
	ReadingLevel string
}

// AssessmentInput describes the reading passage used to place a student.
type AssessmentInput struct {
	GradeLevel int
	Age        int
	Interests  []string
	Questions  int
}

// ActivityInput describes one comprehension activity for a story part.
type ActivityInput struct {
	ActivityType string
	Description  string
	StoryText    string
	Age          int
	Example      string
}

// StoryRequest builds the prompt for a plan story.
func StoryRequest(in StoryInput) Request {
	parts := in.Parts
	if parts <= 0 {
		parts = 3
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a story in %d parts for a %d year old reader in grade %d.\n", parts, in.Age, in.GradeLevel)
	if in.ReadingLevel != "" {
		fmt.Fprintf(&b, "The reader is currently %s.\n", strings.ToLower(in.ReadingLevel))
	}
	if len(in.Interests) > 0 {
		fmt.Fprintf(&b, "The reader enjoys: %s.\n", strings.Join(in.Interests, ", "))
	}
	if in.Theme != "" {
		fmt.Fprintf(&b, "Theme: %s.\n", in.Theme)
	}
	b.WriteString("Each part should be 120 to 250 words and end so the reader wants to continue.\n")
	b.WriteString(`Return JSON: {"title": string, "parts": [{"text": string}], "vocabulary": [{"word": string, "definition": string, "example": string}]}. `)
	b.WriteString("Include 4 to 6 vocabulary words that appear in the story.")
	return Request{Kind: KindStory, System: systemPrompt, Prompt: b.String(), MaxTokens: 2048, Temperature: 0.8}
}

// AssessmentRequest builds the prompt for a placement passage.
func AssessmentRequest(in AssessmentInput) Request {
	questions := in.Questions
	if questions <= 0 {
		questions = 3
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short reading passage of 100 to 180 words for a %d year old in grade %d.\n", in.Age, in.GradeLevel)
	if len(in.Interests) > 0 {
		fmt.Fprintf(&b, "Base it on these interests: %s.\n", strings.Join(in.Interests, ", "))
	}
	fmt.Fprintf(&b, "Add %d comprehension questions, each with 3 or 4 short options and one correct answer taken from the options.\n", questions)
	b.WriteString(`Return JSON: {"title": string, "passage": string, "questions": [{"prompt": string, "options": [string], "answer": string}]}.`)
	return Request{Kind: KindAssessment, System: systemPrompt, Prompt: b.String(), MaxTokens: 1200, Temperature: 0.7}
}

// ActivityRequest builds the prompt for one activity over a story part.
func ActivityRequest(in ActivityInput) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s activity (%s) for a %d year old about the story below.\n", in.ActivityType, in.Description, in.Age)
	b.WriteString("Only ask about things stated or strongly implied in the story. Options must be distinct and the answer must be one of the options.\n")
	if in.Example != "" {
		fmt.Fprintf(&b, "Return JSON shaped exactly like this example: %s\n", in.Example)
	}
	b.WriteString("\nStory:\n")
	b.WriteString(in.StoryText)
	return Request{Kind: KindActivity, System: systemPrompt, Prompt: b.String(), MaxTokens: 1024, Temperature: 0.4}
}
