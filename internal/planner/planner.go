package planner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/models"
)

// MaxSubquestions caps the number of sub-questions derived from one question
const MaxSubquestions = 6

// leadingPhrases are stripped (case-insensitively) from the start of a question
// to obtain its topic. A phrase only matches when followed by a space.
var leadingPhrases = []string{
	"what is", "what are",
	"how does", "how do", "how will",
	"why is", "why are",
	"explain", "describe",
	"analyse", "analyze",
	"evaluate", "assess",
}

var angleTemplates = []string{
	"What is the current landscape of %s?",
	"What structural drivers are shaping %s?",
	"What empirical evidence supports or challenges claims about %s?",
	"What forward-looking scenarios could change %s?",
}

// Plan derives 1..6 unique investigative sub-questions from the question.
// A blank question yields a *models.ValidationError.
func Plan(question string) ([]string, error) {
	q := normalizeWhitespace(question)
	if q == "" {
		return nil, models.NewValidationError("question", "must not be blank")
	}

	segments := splitSegments(q)
	if len(segments) > 1 {
		out := make([]string, 0, MaxSubquestions)
		seen := make(map[string]bool, len(segments))
		for _, s := range segments {
			if !strings.HasSuffix(s, "?") {
				s += "?"
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
			if len(out) == MaxSubquestions {
				break
			}
		}
		return out, nil
	}

	topic := Topic(q)
	out := make([]string, 0, len(angleTemplates))
	seen := make(map[string]bool, len(angleTemplates))
	for _, tmpl := range angleTemplates {
		s := strings.Replace(tmpl, "%s", topic, 1)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// Topic strips a leading interrogative or imperative phrase and any trailing
// question marks, then lower-cases the first character.
func Topic(question string) string {
	q := normalizeWhitespace(question)
	for _, p := range leadingPhrases {
		if len(q) > len(p) && strings.EqualFold(q[:len(p)], p) && q[len(p)] == ' ' {
			q = strings.TrimSpace(q[len(p):])
			break
		}
	}
	topic := strings.TrimSpace(strings.TrimRight(q, "?"))
	if topic == "" {
		topic = strings.TrimSpace(strings.TrimRight(normalizeWhitespace(question), "?"))
	}
	if topic == "" {
		return "the question"
	}
	r, size := utf8.DecodeRuneInString(topic)
	return string(unicode.ToLower(r)) + topic[size:]
}

func splitSegments(q string) []string {
	parts := strings.FieldsFunc(q, func(r rune) bool { return r == '?' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
