package question

import (
	"bytes"
	"strings"
	"text/template"
)

const defaultTopic = "general knowledge"

const systemPrompt = `You are a trivia expert creating well-researched, interesting questions. ` +
	`Questions should be educational and fun, accurate, and about well-known rather than obscure subjects. ` +
	`Do not repeat questions or topic areas within a game.`

var userPrompt = template.Must(template.New("prompt").Parse(`Create an interesting, educational and fun trivia question about {{.Topic}} with four high-quality multiple choice answers.
The question must be about a well-documented, verifiable fact.
{{- if .Avoid}}
Do not ask any of these questions again:
{{- range .Avoid}}
- {{.}}
{{- end}}
{{- end}}

Rules for answers:
- All answers should be roughly the same length and style
- Wrong answers should be plausible but definitively incorrect
- The correct answer must be factually accurate
- Every answer must be different

Format EXACTLY as follows:
QUESTION: [Clear, specific question about a verifiable fact]
A) [Answer choice]
B) [Answer choice]
C) [Answer choice]
D) [Answer choice]
CORRECT: [single letter A, B, C, or D]
FACT CHECK: [Brief explanation why the correct answer is factually accurate]`))

func buildPrompt(topic string, avoid []string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = defaultTopic
	}

	var b bytes.Buffer
	err := userPrompt.Execute(&b, struct {
		Topic string
		Avoid []string
	}{
		Topic: topic,
		Avoid: avoid,
	})

	return b.String(), err
}
