package ai

import (
	"context"
	"encoding/json"
)

// Kind labels what a generation request is for.
type Kind string

const (
	KindStory      Kind = "story"
	KindAssessment Kind = "assessment"
	KindActivity   Kind = "activity"
)

// Request is a single prompt sent to a model. Models are asked for one JSON object.
type Request struct {
	Kind        Kind
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64

	// Validate, when set, rejects unusable content. WithRetry treats a
	// rejection as an invalid response.
	Validate func(content json.RawMessage) error `json:"-"`
}

// Response carries the raw JSON object returned by the model.
type Response struct {
	Content json.RawMessage
	Model   string
	Usage   Usage
}

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Generator is a language model capable of returning structured JSON.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Model() string
}
