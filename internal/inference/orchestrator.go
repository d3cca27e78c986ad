// Package inference asks structured-output model providers to extract the
// fields of a record from a message. Candidates are tried strictly in order
// and the first well-formed response wins.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/logger"
)

// DefaultTimeout bounds a single candidate attempt.
const DefaultTimeout = 15 * time.Second

// Candidate is one endpoint and model pair to attempt. An empty Endpoint
// means the provider's default base URL.
type Candidate struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
}

// Provider issues one structured-output request and returns the raw text of
// the response.
type Provider interface {
	Generate(ctx context.Context, c Candidate, prompt string) (string, error)
}

// Orchestrator walks candidates until one returns a usable response.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	provider Provider
	timeout  time.Duration
}

// NewOrchestrator creates an Orchestrator. A non-positive timeout selects
// DefaultTimeout.
func NewOrchestrator(provider Provider, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		provider: provider,
		timeout:  timeout,
	}
}

// Infer tries each candidate once, in order. Failures are logged and
// skipped. The second return value is false when no candidate produced a
// usable response, which callers treat as "fall back to local parsing".
func (o *Orchestrator) Infer(ctx context.Context, normalizedText, defaultCurrency string, candidates []Candidate) (domain.ExtractedFields, bool) {
	if o == nil || o.provider == nil || len(candidates) == 0 {
		return domain.ExtractedFields{}, false
	}

	log := logger.FromContext(ctx)
	prompt := BuildPrompt(normalizedText, defaultCurrency)

	for i, c := range candidates {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Int("remaining", len(candidates)-i).Msg("inference abandoned")
			break
		}

		start := time.Now()
		fields, err := o.attempt(ctx, c, prompt)
		if err != nil {
			log.Warn().
				Err(err).
				Str("model", c.Model).
				Str("endpoint", c.Endpoint).
				Int("attempt", i+1).
				Dur("elapsed", time.Since(start)).
				Msg("inference candidate failed")
			continue
		}

		log.Debug().
			Str("model", c.Model).
			Int("attempt", i+1).
			Dur("elapsed", time.Since(start)).
			Msg("inference candidate succeeded")
		return fields, true
	}

	return domain.ExtractedFields{}, false
}

type generateResult struct {
	text string
	err  error
}

// attempt runs one candidate under the per-attempt timeout. The deadline is
// enforced here too, so a provider that ignores ctx cannot stall the walk.
func (o *Orchestrator) attempt(ctx context.Context, c Candidate, prompt string) (domain.ExtractedFields, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		text, err := o.provider.Generate(ctx, c, prompt)
		done <- generateResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return domain.ExtractedFields{}, fmt.Errorf("attempt: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return domain.ExtractedFields{}, fmt.Errorf("attempt: generate: %w", res.err)
		}
		fields, err := DecodeFields(res.text)
		if err != nil {
			return domain.ExtractedFields{}, fmt.Errorf("attempt: %w", err)
		}
		return fields, nil
	}
}
