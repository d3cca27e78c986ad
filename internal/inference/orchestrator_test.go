package inference

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider answers per model and records the models it was asked for.
type mockProvider struct {
	GenerateFunc func(ctx context.Context, c Candidate, prompt string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockProvider) Generate(ctx context.Context, c Candidate, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, c.Model)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, c, prompt)
}

func (m *mockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func answers(byModel map[string]string) *mockProvider {
	return &mockProvider{
		GenerateFunc: func(ctx context.Context, c Candidate, prompt string) (string, error) {
			resp, ok := byModel[c.Model]
			if !ok {
				return "", errors.New("unavailable")
			}
			return resp, nil
		},
	}
}

func quietContext(buf *bytes.Buffer) context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(buf))
}

var abc = []Candidate{{Model: "a"}, {Model: "b"}, {Model: "c"}}

func TestInfer_ShortCircuitsOnFirstSuccess(t *testing.T) {
	provider := answers(map[string]string{
		"b": `{"amount": 20000, "currency": "UZS", "category": "Taxi", "type": "expense"}`,
		"c": `{"amount": 1, "currency": null, "category": null, "type": null}`,
	})
	orch := NewOrchestrator(provider, time.Second)

	var logs bytes.Buffer
	got, ok := orch.Infer(quietContext(&logs), "Taxi 20000", "UZS", abc)

	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, provider.Calls())
	assert.Equal(t, "20000", got.Amount.Decimal.String())
	assert.Equal(t, "Taxi", got.Category)
	assert.Equal(t, domain.MovementExpense, got.MovementKind)
	assert.Contains(t, logs.String(), "inference candidate failed")
	assert.Contains(t, logs.String(), `"model":"a"`)
}

func TestInfer_AllCandidatesFail(t *testing.T) {
	provider := answers(map[string]string{
		"b": "I cannot help with that",
		"c": `{"amount": "lots", "currency": null, "category": null, "type": null}`,
	})
	orch := NewOrchestrator(provider, time.Second)

	var logs bytes.Buffer
	_, ok := orch.Infer(quietContext(&logs), "Taxi 20000", "UZS", abc)

	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, provider.Calls())
	assert.Equal(t, 3, bytes.Count(logs.Bytes(), []byte("inference candidate failed")))
}

func TestInfer_WrongShapeMovesToNextCandidate(t *testing.T) {
	provider := answers(map[string]string{
		"a": `{"error": "RESOURCE_EXHAUSTED"}`,
		"b": `{"amount": 40000, "currency": "UZS", "category": "Food", "type": "expense"}`,
	})
	orch := NewOrchestrator(provider, time.Second)

	var logs bytes.Buffer
	got, ok := orch.Infer(quietContext(&logs), "lunch 40000", "UZS", abc)

	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, provider.Calls())
	assert.Equal(t, "40000", got.Amount.Decimal.String())
	assert.Equal(t, "Food", got.Category)
	assert.Contains(t, logs.String(), "malformed response")
}

func TestInfer_EmptyObjectIsAFailure(t *testing.T) {
	provider := answers(map[string]string{"a": `{}`, "b": `{}`, "c": `{}`})
	orch := NewOrchestrator(provider, time.Second)

	var logs bytes.Buffer
	_, ok := orch.Infer(quietContext(&logs), "lunch 40000", "UZS", abc)

	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, provider.Calls())
}

func TestInfer_TimeoutMovesToNextCandidate(t *testing.T) {
	provider := &mockProvider{
		GenerateFunc: func(ctx context.Context, c Candidate, prompt string) (string, error) {
			if c.Model == "a" {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return `{"amount": 5, "currency": "UZS", "category": "Salary", "type": "income"}`, nil
		},
	}
	orch := NewOrchestrator(provider, 20*time.Millisecond)

	var logs bytes.Buffer
	got, ok := orch.Infer(quietContext(&logs), "salary 5", "UZS", abc)

	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, provider.Calls())
	assert.Equal(t, domain.MovementIncome, got.MovementKind)
	assert.Contains(t, logs.String(), "deadline exceeded")
}

func TestInfer_ProviderIgnoringContextIsCutOff(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	provider := &mockProvider{
		GenerateFunc: func(ctx context.Context, c Candidate, prompt string) (string, error) {
			if c.Model == "a" {
				<-release
			}
			return `{"amount": 7, "currency": null, "category": null, "type": null}`, nil
		},
	}
	orch := NewOrchestrator(provider, 20*time.Millisecond)

	var logs bytes.Buffer
	start := time.Now()
	got, ok := orch.Infer(quietContext(&logs), "7", "UZS", abc)

	require.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "7", got.Amount.Decimal.String())
}

func TestInfer_NoCandidates(t *testing.T) {
	provider := answers(nil)
	orch := NewOrchestrator(provider, time.Second)

	_, ok := orch.Infer(context.Background(), "Taxi 20000", "UZS", nil)

	assert.False(t, ok)
	assert.Empty(t, provider.Calls())
}

func TestInfer_NilOrchestrator(t *testing.T) {
	var orch *Orchestrator
	_, ok := orch.Infer(context.Background(), "Taxi 20000", "UZS", abc)
	assert.False(t, ok)
}

func TestInfer_CancelledContextStopsWalk(t *testing.T) {
	provider := answers(nil)
	orch := NewOrchestrator(provider, time.Second)

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(quietContext(&logs))
	cancel()

	_, ok := orch.Infer(ctx, "Taxi 20000", "UZS", abc)

	assert.False(t, ok)
	assert.Empty(t, provider.Calls())
}

func TestInfer_PromptCarriesTextAndCurrency(t *testing.T) {
	var prompt string
	provider := &mockProvider{
		GenerateFunc: func(ctx context.Context, c Candidate, p string) (string, error) {
			prompt = p
			return `{}`, nil
		},
	}
	orch := NewOrchestrator(provider, time.Second)

	_, ok := orch.Infer(context.Background(), "Lent Anton 100000", "KZT", abc[:1])

	require.True(t, ok)
	assert.Contains(t, prompt, "Lent Anton 100000")
	assert.Contains(t, prompt, `"KZT"`)
}

func TestNewOrchestrator_DefaultTimeout(t *testing.T) {
	orch := NewOrchestrator(answers(nil), 0)
	assert.Equal(t, DefaultTimeout, orch.timeout)
}
