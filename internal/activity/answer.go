package activity

import (
	"fmt"
	"strings"

	"github.com/noah-isme/readalong-api/internal/scoring"
)

// Evaluation is the outcome of checking one answer against the key.
type Evaluation struct {
	Correct  bool    `json:"correct"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Evaluate checks an answer for a single question.
func Evaluate(q Question, answer string) Evaluation {
	switch q.Kind {
	case KindOpen:
		if strings.TrimSpace(answer) == "" {
			return Evaluation{Feedback: "Write down what you think will happen next."}
		}
		return Evaluation{Correct: true, Score: 1, Feedback: "Thanks for sharing your prediction!"}
	case KindOrder:
		return evaluateOrder(q, answer)
	default:
		if scoring.AnswerMatches(answer, q.Answer) {
			return Evaluation{Correct: true, Score: 1, Feedback: "Great job!"}
		}
		return Evaluation{Feedback: "Not quite. Look back at the story and try again."}
	}
}

func evaluateOrder(q Question, answer string) Evaluation {
	expected := SplitOrder(q.Answer)
	given := SplitOrder(answer)
	if len(expected) == 0 {
		return Evaluation{}
	}

	placed := 0
	for i, id := range expected {
		if i < len(given) && strings.EqualFold(given[i], id) {
			placed++
		}
	}
	eval := Evaluation{Score: float64(placed) / float64(len(expected))}
	if placed == len(expected) && len(given) == len(expected) {
		eval.Correct = true
		eval.Score = 1
		eval.Feedback = "Perfect order!"
		return eval
	}
	eval.Feedback = fmt.Sprintf("You placed %d of %d events correctly.", placed, len(expected))
	return eval
}

// SplitOrder parses a comma separated list of event ids.
func SplitOrder(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeAnswer returns the canonical stored form of an answer.
func NormalizeAnswer(q Question, answer string) string {
	if q.Kind == KindOrder {
		return strings.Join(SplitOrder(answer), ",")
	}
	return strings.TrimSpace(answer)
}
