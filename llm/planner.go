package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

const (
	planPromptTemplate = "Given these browser automation tools:\n%s\n\nCreate a plan to: %s\n\nRespond with a JSON array of steps, each {\"tool\": string, \"params\": object}."
	planMaxTokens      = 1024
)

// PlanStep is one tool invocation produced by the planner.
type PlanStep struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// ToolLister is the registry surface the planner needs.
type ToolLister interface {
	Describe() string
}

// Planner turns an instruction into an ordered tool plan via a single
// completion call. The model's output must be a JSON array of steps; no
// repair or retry is attempted on malformed output.
type Planner struct {
	provider  Provider
	tools     ToolLister
	model     string
	tokenizer *Tokenizer
	logger    *zap.Logger
}

// NewPlanner creates a planner. A nil logger defaults to a no-op.
func NewPlanner(provider Provider, tools ToolLister, model string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		provider:  provider,
		tools:     tools,
		model:     model,
		tokenizer: NewTokenizer(model),
		logger:    logger.With(zap.String("component", "planner")),
	}
}

// BuildPrompt renders the planning prompt for an instruction.
func (p *Planner) BuildPrompt(instruction string) string {
	return fmt.Sprintf(planPromptTemplate, p.tools.Describe(), instruction)
}

// Plan requests and parses an execution plan.
func (p *Planner) Plan(ctx context.Context, instruction string) ([]PlanStep, error) {
	prompt := p.BuildPrompt(instruction)

	if count, err := p.tokenizer.CountTokens(prompt); err == nil {
		if count+planMaxTokens > p.tokenizer.MaxTokens() {
			return nil, types.NewError(types.ErrContextTooLong,
				fmt.Sprintf("planning prompt uses %d tokens, model window is %d", count, p.tokenizer.MaxTokens()))
		}
	}

	resp, err := p.provider.Completion(ctx, &CompletionRequest{
		Model:     p.model,
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens: planMaxTokens,
	})
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "plan completion failed").
			WithCause(err).
			WithProvider(p.provider.Name())
	}

	steps, err := ParsePlan(resp.Content)
	if err != nil {
		p.logger.Warn("unparseable plan output",
			zap.String("provider", p.provider.Name()),
			zap.Int("output_len", len(resp.Content)))
		return nil, err
	}
	return steps, nil
}

// ParsePlan extracts the JSON step array from model output. Markdown code
// fences and surrounding prose are tolerated; anything else fails.
func ParsePlan(output string) ([]PlanStep, error) {
	text := strings.TrimSpace(output)
	if i := strings.Index(text, "["); i >= 0 {
		if j := strings.LastIndex(text, "]"); j > i {
			text = text[i : j+1]
		}
	}

	var steps []PlanStep
	if err := json.Unmarshal([]byte(text), &steps); err != nil {
		return nil, types.NewPlanParseError(err)
	}
	for i, s := range steps {
		if s.Tool == "" {
			return nil, types.NewPlanParseError(fmt.Errorf("step %d missing tool name", i))
		}
	}
	return steps, nil
}
