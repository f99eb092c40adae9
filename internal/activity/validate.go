package activity

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/readalong-api/internal/scoring"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://readalong.local/schemas/"

// ErrInvalidContent matches every content validation failure.
var ErrInvalidContent = errors.New("invalid activity content")

// ValidationError explains why generated content was rejected.
type ValidationError struct {
	Type   Type
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s content: %s", e.Type, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidContent
}

func invalid(t Type, format string, args ...interface{}) error {
	return &ValidationError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

var (
	schemaOnce sync.Once
	schemaSet  map[Type]*jsonschema.Schema
	schemaErr  error
)

func compiledSchemas() (map[Type]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemaErr = fmt.Errorf("read activity schemas: %w", err)
			return
		}
		for _, entry := range entries {
			data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
			if err != nil {
				schemaErr = fmt.Errorf("read schema %s: %w", entry.Name(), err)
				return
			}
			if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("add schema %s: %w", entry.Name(), err)
				return
			}
		}

		compiled := make(map[Type]*jsonschema.Schema, len(AllTypes()))
		for _, t := range AllTypes() {
			schema, err := compiler.Compile(schemaBaseURL + string(t) + ".schema.json")
			if err != nil {
				schemaErr = fmt.Errorf("compile %s schema: %w", t, err)
				return
			}
			compiled[t] = schema
		}
		schemaSet = compiled
	})
	return schemaSet, schemaErr
}

// Parse checks raw JSON against the schema for t, decodes it and applies the structural rules.
func Parse(t Type, raw []byte) (Content, error) {
	schemas, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := schemas[t]
	if !ok {
		return nil, invalid(t, "unknown activity type")
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalid(t, "malformed json: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, invalid(t, "schema: %v", err)
	}

	content, err := Decode(t, raw)
	if err != nil {
		return nil, invalid(t, "%v", err)
	}
	if err := Validate(content); err != nil {
		return nil, err
	}
	return content, nil
}

// Validate applies the structural rules that a schema cannot express.
func Validate(content Content) error {
	switch c := content.(type) {
	case WhoContent:
		for i, ch := range c.Characters {
			if strings.TrimSpace(ch.Name) == "" {
				return invalid(c.Type(), "character %d has no name", i)
			}
		}
		return validateChoices(c.Type(), c.Items)
	case WhereContent:
		for i, s := range c.Settings {
			if strings.TrimSpace(s.Name) == "" {
				return invalid(c.Type(), "setting %d has no name", i)
			}
		}
		return validateChoices(c.Type(), c.Items)
	case MainIdeaContent:
		return validateChoices(c.Type(), c.Items)
	case VocabularyContent:
		if len(c.Words) == 0 {
			return invalid(c.Type(), "no words")
		}
		seen := make(map[string]struct{}, len(c.Words))
		for _, w := range c.Words {
			key := fold(w.Word)
			if key == "" || strings.TrimSpace(w.Definition) == "" {
				return invalid(c.Type(), "word entries need a word and a definition")
			}
			if _, dup := seen[key]; dup {
				return invalid(c.Type(), "duplicate word %q", w.Word)
			}
			seen[key] = struct{}{}
		}
		return validateChoices(c.Type(), c.Items)
	case SequenceContent:
		return validateSequence(c)
	case PredictContent:
		if strings.TrimSpace(c.Prompt) == "" {
			return invalid(c.Type(), "empty prompt")
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported content %T", ErrInvalidContent, content)
	}
}

func validateChoices(t Type, questions []ChoiceQuestion) error {
	if len(questions) == 0 {
		return invalid(t, "no questions")
	}
	ids := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		id := strings.TrimSpace(q.ID)
		if id == "" {
			return invalid(t, "question without id")
		}
		if _, dup := ids[id]; dup {
			return invalid(t, "duplicate question id %q", id)
		}
		ids[id] = struct{}{}

		if strings.TrimSpace(q.Prompt) == "" {
			return invalid(t, "question %s has no prompt", id)
		}
		if len(q.Options) < 2 {
			return invalid(t, "question %s needs at least two options", id)
		}
		options := make(map[string]struct{}, len(q.Options))
		matched := false
		for _, opt := range q.Options {
			key := fold(opt)
			if key == "" {
				return invalid(t, "question %s has an empty option", id)
			}
			if _, dup := options[key]; dup {
				return invalid(t, "question %s repeats option %q", id, opt)
			}
			options[key] = struct{}{}
			if scoring.AnswerMatches(opt, q.Answer) {
				matched = true
			}
		}
		if !matched {
			return invalid(t, "question %s answer is not one of its options", id)
		}
	}
	return nil
}

func validateSequence(c SequenceContent) error {
	t := c.Type()
	if strings.TrimSpace(c.Instructions) == "" {
		return invalid(t, "empty instructions")
	}
	if len(c.Events) < 3 {
		return invalid(t, "at least three events are required")
	}
	ids := make(map[string]struct{}, len(c.Events))
	texts := make(map[string]struct{}, len(c.Events))
	for _, e := range c.Events {
		id := strings.TrimSpace(e.ID)
		if id == "" || strings.Contains(id, ",") {
			return invalid(t, "event ids must be non-empty and contain no commas")
		}
		if _, dup := ids[id]; dup {
			return invalid(t, "duplicate event id %q", id)
		}
		ids[id] = struct{}{}
		text := fold(e.Text)
		if text == "" {
			return invalid(t, "event %s has no text", id)
		}
		if _, dup := texts[text]; dup {
			return invalid(t, "duplicate event text %q", e.Text)
		}
		texts[text] = struct{}{}
	}
	if len(c.CorrectOrder) != len(c.Events) {
		return invalid(t, "correct order lists %d events, want %d", len(c.CorrectOrder), len(c.Events))
	}
	placed := make(map[string]struct{}, len(c.CorrectOrder))
	for _, id := range c.CorrectOrder {
		id = strings.TrimSpace(id)
		if _, ok := ids[id]; !ok {
			return invalid(t, "correct order references unknown event %q", id)
		}
		if _, dup := placed[id]; dup {
			return invalid(t, "correct order repeats event %q", id)
		}
		placed[id] = struct{}{}
	}
	return nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
