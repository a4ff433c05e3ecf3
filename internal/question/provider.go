// Package question generates multiple-choice trivia questions with a text-generation service.
package question

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/errors"
	"github.com/victornm/trivia/internal/telemetry"
)

const (
	defaultMaxAttempts = 3

	// maxAvoid bounds how many earlier questions are quoted back in the prompt.
	maxAvoid = 10
)

// Completer sends one prompt to a text-generation service and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Config struct {
	Completer   Completer
	MaxAttempts int
	// RetryDelay is the pause after a failed completion call before the next attempt.
	RetryDelay time.Duration
	Now        func() time.Time
}

// Provider generates questions and remembers which ones it has already handed out.
type Provider struct {
	completer   Completer
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time

	mu    sync.Mutex
	seen  map[string]struct{}
	asked map[string][]string
}

func NewProvider(c Config) *Provider {
	p := &Provider{
		completer:   c.Completer,
		maxAttempts: c.MaxAttempts,
		retryDelay:  c.RetryDelay,
		now:         c.Now,
		seen:        make(map[string]struct{}),
		asked:       make(map[string][]string),
	}

	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.now == nil {
		p.now = time.Now
	}

	return p
}

// ErrUnavailable is returned when no valid question could be generated.
func ErrUnavailable(topic string, cause error) error {
	return errors.New(errors.CodeUnavailable,
		errors.WithMessagef("question unavailable: topic=%q", topic),
		errors.WithCause(cause),
	)
}

// Generate returns a new question about topic. Malformed or repeated completions
// are retried up to the configured number of attempts.
func (p *Provider) Generate(ctx context.Context, topic string) (domain.Question, error) {
	topic = strings.TrimSpace(topic)

	var errs []error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		q, err := p.attempt(ctx, topic)
		if err == nil {
			telemetry.QuestionsGenerated.Inc()
			return q, nil
		}

		errs = append(errs, err)

		var pe *parseError
		reason := reasonCompletion
		if stderrors.As(err, &pe) {
			reason = pe.reason
		}
		telemetry.QuestionsRejected.WithLabelValues(reason).Inc()

		slog.WarnContext(ctx, "question: attempt rejected",
			"topic", topic,
			"attempt", attempt,
			"reason", reason,
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}

		if reason == reasonCompletion && attempt < p.maxAttempts {
			if err := sleep(ctx, p.retryDelay); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}

	return domain.Question{}, ErrUnavailable(topic, stderrors.Join(errs...))
}

func (p *Provider) attempt(ctx context.Context, topic string) (domain.Question, error) {
	prompt, err := buildPrompt(topic, p.recent(topic))
	if err != nil {
		return domain.Question{}, fmt.Errorf("build prompt: %w", err)
	}

	text, err := p.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return domain.Question{}, fmt.Errorf("complete: %w", err)
	}

	q, err := Parse(text)
	if err != nil {
		return domain.Question{}, err
	}

	if !p.remember(topic, q.Prompt) {
		return domain.Question{}, rejected(reasonRepeated, "%q was already asked", q.Prompt)
	}

	q.Topic = topic
	q.CreatedAt = p.now()
	return q, nil
}

// remember records topic:question and reports whether it was new.
func (p *Provider) remember(topic, prompt string) bool {
	key := seenKey(topic, prompt)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}

	t := normalize(topic)
	p.asked[t] = append(p.asked[t], prompt)
	if n := len(p.asked[t]); n > maxAvoid {
		p.asked[t] = p.asked[t][n-maxAvoid:]
	}

	return true
}

func (p *Provider) recent(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	asked := p.asked[normalize(topic)]
	out := make([]string, len(asked))
	copy(out, asked)
	return out
}

func seenKey(topic, prompt string) string {
	return normalize(topic) + ":" + normalize(prompt)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
