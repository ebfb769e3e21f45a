// Package llmtest provides a scripted provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/BaSui01/canvasflow/llm"
)

// ScriptedProvider returns canned responses in order, then repeats the last.
type ScriptedProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Requests  []*llm.CompletionRequest
	calls     int
}

func (p *ScriptedProvider) Completion(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	idx := p.calls
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.calls++
	return &llm.CompletionResponse{
		Model:   req.Model,
		Content: p.Responses[idx],
	}, nil
}

func (p *ScriptedProvider) Name() string { return "scripted" }
