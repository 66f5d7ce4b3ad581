package llmtest

import (
	"context"
	"sync/atomic"

	"github.com/akolanti/BidExtract/internal/llm"
)

// MockProvider implements llm.Provider. Calls counts Complete invocations.
type MockProvider struct {
	ProviderName string
	OnComplete   func(ctx context.Context, req llm.Request) (llm.Completion, error)
	OnPing       func(ctx context.Context) error

	calls atomic.Int64
}

func (m *MockProvider) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	m.calls.Add(1)
	if m.OnComplete != nil {
		return m.OnComplete(ctx, req)
	}
	return llm.Completion{Text: `{"fields":{}}`, Model: "mock-model"}, nil
}

func (m *MockProvider) Ping(ctx context.Context) error {
	if m.OnPing != nil {
		return m.OnPing(ctx)
	}
	return nil
}

func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// CountingGate never blocks beyond ctx and counts granted slots.
type CountingGate struct {
	OnAcquire func(ctx context.Context, tokens int) error

	slots atomic.Int64
}

func (g *CountingGate) Acquire(ctx context.Context, tokens int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.OnAcquire != nil {
		if err := g.OnAcquire(ctx, tokens); err != nil {
			return err
		}
	}
	g.slots.Add(1)
	return nil
}

func (g *CountingGate) Slots() int {
	return int(g.slots.Load())
}
