package question

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/victornm/trivia/internal/domain"
)

const (
	prefixQuestion  = "QUESTION:"
	prefixCorrect   = "CORRECT:"
	prefixFactCheck = "FACT CHECK:"
)

// Reasons a completion is rejected.
const (
	reasonMissingField  = "missing_field"
	reasonChoices       = "choices"
	reasonCorrectLetter = "correct_letter"
	reasonDuplicateBody = "duplicate_choice"
	reasonRepeated      = "repeated_question"
	reasonCompletion    = "completion_error"
)

type parseError struct {
	reason string
	msg    string
}

func (e *parseError) Error() string {
	return fmt.Sprintf("question: %s: %s", e.reason, e.msg)
}

func rejected(reason, format string, args ...any) error {
	return &parseError{reason: reason, msg: fmt.Sprintf(format, args...)}
}

// Parse reads the five-field text format produced by the completer.
// Unknown lines are ignored; the last occurrence of a field wins.
func Parse(text string) (domain.Question, error) {
	var (
		q       domain.Question
		choices = make(map[string]string, len(domain.Labels))
		extra   int
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if v, ok := cutPrefixFold(line, prefixQuestion); ok {
			q.Prompt = v
			continue
		}

		if v, ok := cutPrefixFold(line, prefixCorrect); ok {
			q.Correct = v
			continue
		}

		if v, ok := cutPrefixFold(line, prefixFactCheck); ok {
			q.FactCheck = v
			continue
		}

		if label, body, ok := cutChoice(line); ok {
			if _, dup := choices[label]; dup {
				extra++
			}
			choices[label] = body
		}
	}

	if q.Prompt == "" {
		return q, rejected(reasonMissingField, "no %s line", prefixQuestion)
	}
	if q.FactCheck == "" {
		return q, rejected(reasonMissingField, "no %s line", prefixFactCheck)
	}
	if q.Correct == "" {
		return q, rejected(reasonMissingField, "no %s line", prefixCorrect)
	}

	if len(choices) != len(domain.Labels) || extra > 0 {
		return q, rejected(reasonChoices, "want %d labelled choices, got %d", len(domain.Labels), len(choices)+extra)
	}

	seen := make(map[string]string, len(choices))
	for _, l := range domain.Labels {
		body := choices[l]
		if body == "" {
			return q, rejected(reasonChoices, "choice %s is empty", l)
		}

		norm := strings.ToLower(body)
		if other, ok := seen[norm]; ok {
			return q, rejected(reasonDuplicateBody, "choices %s and %s are the same", other, l)
		}
		seen[norm] = l

		q.Choices = append(q.Choices, domain.Choice{Label: l, Text: body})
	}

	correct, ok := correctLetter(q.Correct)
	if !ok {
		return q, rejected(reasonCorrectLetter, "%q is not one of A, B, C, D", q.Correct)
	}
	q.Correct = correct

	return q, nil
}

func cutPrefixFold(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(line[len(prefix):]), true
}

// cutChoice accepts "A) text", "A. text" and "A: text".
func cutChoice(line string) (label, body string, ok bool) {
	if len(line) < 2 {
		return "", "", false
	}

	label = strings.ToUpper(line[:1])
	if !isLabel(label) {
		return "", "", false
	}

	switch line[1] {
	case ')', '.', ':':
	default:
		return "", "", false
	}

	return label, strings.TrimSpace(line[2:]), true
}

// correctLetter extracts the label from values like "B", "b)" or "B) Paris".
func correctLetter(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}

	first := strings.ToUpper(v[:1])
	if isLabel(first) && (len(v) == 1 || !isLetter(v[1])) {
		return first, true
	}

	return "", false
}

func isLabel(s string) bool {
	for _, l := range domain.Labels {
		if s == l {
			return true
		}
	}

	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
