package activity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	maxTemplateEvents = 4
	maxTemplateWords  = 4
	minSentenceWords  = 3
)

// TemplateInput is the story material a fallback template can draw on.
type TemplateInput struct {
	StoryText  string
	Vocabulary []VocabularyWord
}

// HasFallback reports whether t has a deterministic template.
func HasFallback(t Type) bool {
	switch t {
	case TypeSequence, TypeVocabulary, TypePredict:
		return true
	default:
		return false
	}
}

// Fallback builds a deterministic activity from the story alone. It returns
// false when t has no template or the story cannot support one.
func Fallback(t Type, in TemplateInput) (Content, bool) {
	var content Content
	switch t {
	case TypeSequence:
		c, ok := sequenceTemplate(in.StoryText)
		if !ok {
			return nil, false
		}
		content = c
	case TypeVocabulary:
		c, ok := vocabularyTemplate(in.Vocabulary)
		if !ok {
			return nil, false
		}
		content = c
	case TypePredict:
		content = predictTemplate(in.StoryText)
	default:
		return nil, false
	}
	if err := Validate(content); err != nil {
		return nil, false
	}
	return content, true
}

func sequenceTemplate(story string) (SequenceContent, bool) {
	sentences := Sentences(story)
	if len(sentences) < 3 {
		return SequenceContent{}, false
	}
	picked := sentences
	if len(sentences) > maxTemplateEvents {
		picked = make([]string, 0, maxTemplateEvents)
		for i := 0; i < maxTemplateEvents; i++ {
			picked = append(picked, sentences[i*(len(sentences)-1)/(maxTemplateEvents-1)])
		}
	}

	events := make([]SequenceEvent, 0, len(picked))
	order := make([]string, 0, len(picked))
	for _, sentence := range picked {
		id := eventID(sentence)
		events = append(events, SequenceEvent{ID: id, Text: sentence})
		order = append(order, id)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	return SequenceContent{
		Instructions: "Put these events in the order they happened in the story.",
		Events:       events,
		CorrectOrder: order,
	}, true
}

func eventID(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(text)))
	return "e" + hex.EncodeToString(sum[:4])
}

func vocabularyTemplate(words []VocabularyWord) (VocabularyContent, bool) {
	unique := make([]VocabularyWord, 0, len(words))
	seenWords := map[string]struct{}{}
	seenDefs := map[string]struct{}{}
	for _, w := range words {
		word, def := fold(w.Word), fold(w.Definition)
		if word == "" || def == "" {
			continue
		}
		if _, dup := seenWords[word]; dup {
			continue
		}
		if _, dup := seenDefs[def]; dup {
			continue
		}
		seenWords[word] = struct{}{}
		seenDefs[def] = struct{}{}
		unique = append(unique, VocabularyWord{
			Word:       strings.TrimSpace(w.Word),
			Definition: strings.TrimSpace(w.Definition),
			Example:    strings.TrimSpace(w.Example),
		})
		if len(unique) == maxTemplateWords {
			break
		}
	}
	if len(unique) < 2 {
		return VocabularyContent{}, false
	}

	definitions := make([]string, len(unique))
	for i, w := range unique {
		definitions[i] = w.Definition
	}

	questions := make([]ChoiceQuestion, 0, len(unique))
	for i, w := range unique {
		options := append(append([]string(nil), definitions[i:]...), definitions[:i]...)
		if i%2 == 1 {
			options[0], options[len(options)-1] = options[len(options)-1], options[0]
		}
		questions = append(questions, ChoiceQuestion{
			ID:      fmt.Sprintf("v%d", i+1),
			Prompt:  fmt.Sprintf("What does %q mean?", w.Word),
			Options: options,
			Answer:  w.Definition,
		})
	}
	return VocabularyContent{Words: unique, Items: questions}, true
}

func predictTemplate(story string) PredictContent {
	hints := []string{
		"Think about what the characters want.",
		"Look at how this part of the story ended.",
	}
	if sentences := Sentences(story); len(sentences) > 0 {
		hints = append(hints, "Remember: "+sentences[len(sentences)-1])
	}
	return PredictContent{
		Prompt: "What do you think will happen next? Use clues from the story to explain your idea.",
		Hints:  hints,
	}
}

// Sentences splits text into sentences of at least three words, dropping repeats.
func Sentences(text string) []string {
	var (
		out     []string
		current strings.Builder
		seen    = map[string]struct{}{}
	)
	flush := func() {
		sentence := strings.Join(strings.Fields(current.String()), " ")
		current.Reset()
		if len(strings.Fields(sentence)) < minSentenceWords {
			return
		}
		key := strings.ToLower(sentence)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, sentence)
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
