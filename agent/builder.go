package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/canvasflow/browser"
	"github.com/BaSui01/canvasflow/llm"
	"github.com/BaSui01/canvasflow/persistence"
	"github.com/BaSui01/canvasflow/types"
)

// SystemAgentBrowser is the built-in agent type available without a stored
// definition.
const SystemAgentBrowser = "browser"

// DefinitionStore loads stored agent definitions. May be nil when the
// server runs without persistence.
type DefinitionStore interface {
	GetByID(ctx context.Context, id string) (*persistence.AgentDefinition, error)
}

// ExecutionRecorder receives finished executions for metrics.
type ExecutionRecorder interface {
	RecordAgentExecution(agentID, agentType, status string, duration time.Duration)
}

// BuildRequest selects and configures an agent instance.
type BuildRequest struct {
	AgentID      string         `json:"agentId,omitempty"`
	AgentType    string         `json:"agentType,omitempty"`
	ProviderType string         `json:"providerType,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// identity labels the request for metrics.
func (r BuildRequest) identity() string {
	if r.AgentID != "" {
		return "def-" + r.AgentID
	}
	if r.ProviderType != "" {
		return r.AgentType + "-" + r.ProviderType
	}
	return r.AgentType
}

// Builder resolves build requests into browser agents. Every request gets
// a fresh instance with its own session, so concurrent executions never
// share a page. Live instances are tracked until their Cleanup runs.
type Builder struct {
	driver     browser.Driver
	browserCfg browser.Config
	provider   llm.Provider
	providers  map[string]llm.Provider
	model      string
	defs       DefinitionStore
	steps      StepRecorder
	execs      ExecutionRecorder
	logger     *zap.Logger

	mu   sync.Mutex
	live map[*BrowserAgent]struct{}
}

// NewBuilder creates a builder. provider is the default used when a request
// names no providerType; defs, steps and execs may be nil.
func NewBuilder(driver browser.Driver, browserCfg browser.Config, provider llm.Provider, model string, defs DefinitionStore, steps StepRecorder, execs ExecutionRecorder, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		driver:     driver,
		browserCfg: browserCfg,
		provider:   provider,
		providers:  make(map[string]llm.Provider),
		model:      model,
		defs:       defs,
		steps:      steps,
		execs:      execs,
		logger:     logger.With(zap.String("component", "agent_builder")),
		live:       make(map[*BrowserAgent]struct{}),
	}
	if provider != nil {
		b.providers[provider.Name()] = provider
	}
	return b
}

// RegisterProvider makes a provider selectable by providerType in build
// requests. Last write wins on duplicate names.
func (b *Builder) RegisterProvider(name string, p llm.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[name] = p
}

// resolveProvider maps a requested providerType onto a registered provider.
func (b *Builder) resolveProvider(providerType string) (llm.Provider, error) {
	if providerType == "" {
		if b.provider == nil {
			return nil, types.NewError(types.ErrProviderNotSet, "no language model provider is configured")
		}
		return b.provider, nil
	}
	b.mu.Lock()
	p, ok := b.providers[providerType]
	b.mu.Unlock()
	if !ok {
		return nil, types.NewError(types.ErrProviderUnavailable, fmt.Sprintf("unknown provider type: %s", providerType))
	}
	return p, nil
}

// Build resolves a request into a fresh agent instance. The caller owns the
// instance lifecycle: Initialize before use, Cleanup when done.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BrowserAgent, error) {
	if req.AgentID == "" && req.AgentType == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "agentId or agentType is required")
	}

	provider, err := b.resolveProvider(req.ProviderType)
	if err != nil {
		return nil, err
	}

	cfg := b.browserCfg
	model := b.model

	if req.AgentID != "" {
		if b.defs == nil {
			return nil, types.NewError(types.ErrServiceUnavailable, "agent definitions are unavailable")
		}
		def, err := b.defs.GetByID(ctx, req.AgentID)
		if err != nil {
			return nil, err
		}
		stored, err := def.ConfigMap()
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "malformed stored agent config").WithCause(err)
		}
		cfg, model = applyConfig(cfg, model, stored)
	} else if req.AgentType != SystemAgentBrowser {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown agent type: %s", req.AgentType))
	}

	cfg, model = applyConfig(cfg, model, req.Config)

	inst := NewBrowserAgent(b.driver, cfg, provider, model, b.steps, b.logger)
	inst.onCleanup = func() { b.forget(inst) }

	b.mu.Lock()
	b.live[inst] = struct{}{}
	b.mu.Unlock()

	b.logger.Info("agent built",
		zap.String("identity", req.identity()),
		zap.String("model", model))
	return inst, nil
}

func (b *Builder) forget(inst *BrowserAgent) {
	b.mu.Lock()
	delete(b.live, inst)
	b.mu.Unlock()
}

// Run executes one instruction through the full instance lifecycle:
// build, initialize, execute, cleanup. The session never outlives the call.
func (b *Builder) Run(ctx context.Context, req BuildRequest, instruction string) (Response, error) {
	inst, err := b.Build(ctx, req)
	if err != nil {
		return Response{}, err
	}
	defer func() {
		if cerr := inst.Cleanup(ctx); cerr != nil {
			b.logger.Warn("cleanup failed", zap.Error(cerr))
		}
	}()

	if err := inst.Initialize(ctx); err != nil {
		return Response{}, err
	}

	resp := inst.Execute(ctx, instruction)

	if b.execs != nil {
		status := "success"
		if !resp.Success {
			status = "error"
		}
		agentID := req.AgentID
		if agentID == "" {
			agentID = req.identity()
		}
		b.execs.RecordAgentExecution(agentID, req.AgentType, status, resp.Metrics.EndTime.Sub(resp.Metrics.StartTime))
	}
	return resp, nil
}

// CloseAll cleans up every live instance. Sessions close concurrently so
// one hung browser does not hold shutdown past its deadline.
func (b *Builder) CloseAll(ctx context.Context) {
	b.mu.Lock()
	instances := make([]*BrowserAgent, 0, len(b.live))
	for inst := range b.live {
		instances = append(instances, inst)
	}
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			if err := inst.Cleanup(gctx); err != nil {
				b.logger.Warn("cleanup failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// applyConfig overlays a config map onto browser settings and model choice.
func applyConfig(cfg browser.Config, model string, overrides map[string]any) (browser.Config, string) {
	if overrides == nil {
		return cfg, model
	}
	if v, ok := overrides["headless"].(bool); ok {
		cfg.Headless = v
	}
	if v, ok := overrides["model"].(string); ok && v != "" {
		model = v
	}
	if v, ok := overrides["timeout"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	return cfg, model
}
