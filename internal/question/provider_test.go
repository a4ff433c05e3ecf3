package question_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/question"
)

func TestProvider_Generate(t *testing.T) {
	type (
		inputs struct {
			replies []reply
			topic   string
			calls   int
		}

		outputs struct {
			prompts []string
			errs    []error
			texts   []string
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a well formed completion is returned": {
			arrange: func() inputs {
				return inputs{
					replies: []reply{{text: completion("What is 2 + 2?")}},
					topic:   "math",
					calls:   1,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.errs[0])
				assert.Equal(t, "What is 2 + 2?", out.texts[0])
				assert.Contains(t, out.prompts[0], "about math")
			},
		},

		"malformed completions are retried": {
			arrange: func() inputs {
				return inputs{
					replies: []reply{
						{text: "QUESTION: broken"},
						{text: completion("What is 3 + 3?")},
					},
					topic: "math",
					calls: 1,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.errs[0])
				assert.Equal(t, "What is 3 + 3?", out.texts[0])
				assert.Len(t, out.prompts, 2)
			},
		},

		"a repeated question is rejected and retried": {
			arrange: func() inputs {
				return inputs{
					replies: []reply{
						{text: completion("What is 2 + 2?")},
						{text: completion("  what is 2 +  2?  ")},
						{text: completion("What is 5 + 5?")},
					},
					topic: "math",
					calls: 2,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.errs[0])
				require.NoError(t, out.errs[1])
				assert.Equal(t, "What is 2 + 2?", out.texts[0])
				assert.Equal(t, "What is 5 + 5?", out.texts[1])
				assert.Contains(t, out.prompts[1], "- What is 2 + 2?", "earlier questions should be quoted back")
			},
		},

		"attempts are bounded and exhaustion is reported as unavailable": {
			arrange: func() inputs {
				return inputs{
					replies: []reply{
						{err: fmt.Errorf("boom")},
						{text: "nonsense"},
						{err: fmt.Errorf("boom")},
						{text: completion("never reached")},
					},
					topic: "history",
					calls: 1,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.Error(t, out.errs[0])
				assert.True(t, errors.Is(out.errs[0], errors.CodeUnavailable))
				assert.Len(t, out.prompts, 3)
			},
		},

		"empty topic falls back to general knowledge": {
			arrange: func() inputs {
				return inputs{
					replies: []reply{{text: completion("Who wrote Hamlet?")}},
					topic:   "  ",
					calls:   1,
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.errs[0])
				assert.Contains(t, out.prompts[0], "about general knowledge")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			fc := &fakeCompleter{replies: in.replies}
			p := question.NewProvider(question.Config{Completer: fc})

			var out outputs
			for i := 0; i < in.calls; i++ {
				q, err := p.Generate(context.Background(), in.topic)
				out.errs = append(out.errs, err)
				out.texts = append(out.texts, q.Prompt)
			}
			out.prompts = fc.prompts

			tt.assert(t, out)
		})
	}
}

func TestProvider_GenerateSetsTopicAndTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := question.NewProvider(question.Config{
		Completer: &fakeCompleter{replies: []reply{{text: completion("Q1?")}}},
		Now:       func() time.Time { return now },
	})

	q, err := p.Generate(context.Background(), " Space ")
	require.NoError(t, err)
	assert.Equal(t, "Space", q.Topic)
	assert.Equal(t, now, q.CreatedAt)
	assert.Len(t, q.Choices, 4)
}

func TestProvider_SameQuestionAllowedForAnotherTopic(t *testing.T) {
	p := question.NewProvider(question.Config{
		Completer: &fakeCompleter{replies: []reply{
			{text: completion("Q1?")},
			{text: completion("Q1?")},
		}},
	})

	_, err := p.Generate(context.Background(), "a")
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "b")
	require.NoError(t, err)
}

func TestProvider_StopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeCompleter{replies: []reply{{err: context.Canceled}, {err: context.Canceled}, {err: context.Canceled}}}
	p := question.NewProvider(question.Config{Completer: fc, RetryDelay: time.Hour})

	_, err := p.Generate(ctx, "x")
	require.Error(t, err)
	assert.Len(t, fc.prompts, 1)
}

func TestOpenAI_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": "\n" + completion("Q?") + "\n",
				},
			}},
		})
	}))
	defer srv.Close()

	c := question.NewOpenAI(question.OpenAIConfig{
		APIKey:  "secret",
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
	})

	text, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, completion("Q?"), text)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func completion(q string) string {
	return strings.Join([]string{
		"QUESTION: " + q,
		"A) one",
		"B) two",
		"C) three",
		"D) four",
		"CORRECT: C",
		"FACT CHECK: because.",
	}, "\n")
}

type reply struct {
	text string
	err  error
}

type fakeCompleter struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return "", fmt.Errorf("no more replies")
	}

	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}
