package activity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionKind tells the answer checker how to compare answers.
type QuestionKind string

const (
	KindChoice QuestionKind = "choice"
	KindOrder  QuestionKind = "order"
	KindOpen   QuestionKind = "open"
)

// Question is one entry of an activity's answer key.
type Question struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Kind    QuestionKind `json:"kind"`
	Options []string     `json:"options,omitempty"`
	Answer  string       `json:"-"`
}

// Content is a decoded, validated activity payload.
type Content interface {
	Type() Type
	// Questions returns the answer key.
	Questions() []Question
	// Public returns the payload with answer keys removed.
	Public() interface{}
}

// ChoiceQuestion is a multiple choice question shared by several activity types.
type ChoiceQuestion struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type publicChoice struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

func choiceKey(questions []ChoiceQuestion) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		out = append(out, Question{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Kind:    KindChoice,
			Options: append([]string(nil), q.Options...),
			Answer:  q.Answer,
		})
	}
	return out
}

func publicChoices(questions []ChoiceQuestion) []publicChoice {
	out := make([]publicChoice, 0, len(questions))
	for _, q := range questions {
		out = append(out, publicChoice{ID: q.ID, Prompt: q.Prompt, Options: append([]string(nil), q.Options...)})
	}
	return out
}

// Character is a story character named in a who activity.
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WhoContent asks the student to identify characters.
type WhoContent struct {
	Characters []Character      `json:"characters"`
	Items      []ChoiceQuestion `json:"questions"`
}

func (c WhoContent) Type() Type            { return TypeWho }
func (c WhoContent) Questions() []Question { return choiceKey(c.Items) }
func (c WhoContent) Public() interface{} {
	return map[string]interface{}{
		"characters": c.Characters,
		"questions":  publicChoices(c.Items),
	}
}

// Setting is a place or time named in a where activity.
type Setting struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WhereContent asks the student to identify the setting.
type WhereContent struct {
	Settings []Setting        `json:"settings"`
	Items    []ChoiceQuestion `json:"questions"`
}

func (c WhereContent) Type() Type            { return TypeWhere }
func (c WhereContent) Questions() []Question { return choiceKey(c.Items) }
func (c WhereContent) Public() interface{} {
	return map[string]interface{}{
		"settings":  c.Settings,
		"questions": publicChoices(c.Items),
	}
}

// SequenceEvent is one event to be ordered.
type SequenceEvent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SequenceQuestionID is the single question id of a sequence activity.
const SequenceQuestionID = "order"

// SequenceContent asks the student to order events. Answers are comma separated event ids.
type SequenceContent struct {
	Instructions string          `json:"instructions"`
	Events       []SequenceEvent `json:"events"`
	CorrectOrder []string        `json:"correct_order"`
}

func (c SequenceContent) Type() Type { return TypeSequence }
func (c SequenceContent) Questions() []Question {
	ids := make([]string, 0, len(c.Events))
	for _, e := range c.Events {
		ids = append(ids, e.ID)
	}
	return []Question{{
		ID:      SequenceQuestionID,
		Prompt:  c.Instructions,
		Kind:    KindOrder,
		Options: ids,
		Answer:  strings.Join(c.CorrectOrder, ","),
	}}
}
func (c SequenceContent) Public() interface{} {
	return map[string]interface{}{
		"instructions": c.Instructions,
		"events":       c.Events,
		"question_id":  SequenceQuestionID,
	}
}

// MainIdeaContent asks what the passage is mostly about.
type MainIdeaContent struct {
	Items []ChoiceQuestion `json:"questions"`
}

func (c MainIdeaContent) Type() Type            { return TypeMainIdea }
func (c MainIdeaContent) Questions() []Question { return choiceKey(c.Items) }
func (c MainIdeaContent) Public() interface{} {
	return map[string]interface{}{"questions": publicChoices(c.Items)}
}

// VocabularyWord is a word from the story with its meaning.
type VocabularyWord struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example,omitempty"`
}

// VocabularyContent teaches and checks word meanings.
type VocabularyContent struct {
	Words []VocabularyWord `json:"words"`
	Items []ChoiceQuestion `json:"questions"`
}

func (c VocabularyContent) Type() Type            { return TypeVocabulary }
func (c VocabularyContent) Questions() []Question { return choiceKey(c.Items) }
func (c VocabularyContent) Public() interface{} {
	return map[string]interface{}{
		"words":     c.Words,
		"questions": publicChoices(c.Items),
	}
}

// PredictQuestionID is the single question id of a predict activity.
const PredictQuestionID = "prediction"

// PredictContent is an open prompt; any non-empty answer is accepted.
type PredictContent struct {
	Prompt string   `json:"prompt"`
	Hints  []string `json:"hints"`
}

func (c PredictContent) Type() Type { return TypePredict }
func (c PredictContent) Questions() []Question {
	return []Question{{ID: PredictQuestionID, Prompt: c.Prompt, Kind: KindOpen}}
}
func (c PredictContent) Public() interface{} {
	return map[string]interface{}{
		"prompt":      c.Prompt,
		"hints":       c.Hints,
		"question_id": PredictQuestionID,
	}
}

// Decode unmarshals raw JSON into the variant for t without validating it.
func Decode(t Type, raw []byte) (Content, error) {
	var (
		content Content
		err     error
	)
	switch t {
	case TypeWho:
		var c WhoContent
		err = json.Unmarshal(raw, &c)
		content = c
	case TypeWhere:
		var c WhereContent
		err = json.Unmarshal(raw, &c)
		content = c
	case TypeSequence:
		var c SequenceContent
		err = json.Unmarshal(raw, &c)
		content = c
	case TypeMainIdea:
		var c MainIdeaContent
		err = json.Unmarshal(raw, &c)
		content = c
	case TypeVocabulary:
		var c VocabularyContent
		err = json.Unmarshal(raw, &c)
		content = c
	case TypePredict:
		var c PredictContent
		err = json.Unmarshal(raw, &c)
		content = c
	default:
		return nil, fmt.Errorf("unknown activity type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", t, err)
	}
	return content, nil
}

// FindQuestion returns the answer key entry with the given id.
func FindQuestion(content Content, questionID string) (Question, bool) {
	for _, q := range content.Questions() {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}
