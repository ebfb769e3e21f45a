package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/browser"
	"github.com/BaSui01/canvasflow/internal/ctxkeys"
	"github.com/BaSui01/canvasflow/llm"
	"github.com/BaSui01/canvasflow/tools"
	"github.com/BaSui01/canvasflow/types"
)

// ExecutionMetrics describes one Execute call.
type ExecutionMetrics struct {
	ExecutionID string    `json:"execution_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Instruction string    `json:"instruction"`
	Error       string    `json:"error,omitempty"`
}

// Response is the normalized outcome of Execute. Failures are carried in
// Result/Metrics.Error rather than as a Go error.
type Response struct {
	Success bool             `json:"success"`
	Result  string           `json:"result"`
	Metrics ExecutionMetrics `json:"metrics"`
}

// HistoryEntry records one past Execute call.
type HistoryEntry struct {
	Instruction string    `json:"instruction"`
	Result      string    `json:"result"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

// BrowserAgent drives a browser session through the plan-execute loop. It
// owns the session lifecycle: Initialize before Execute, Cleanup after.
type BrowserAgent struct {
	driver   browser.Driver
	cfg      browser.Config
	provider llm.Provider
	model    string
	recorder StepRecorder
	logger   *zap.Logger

	// onCleanup is set by the builder so a cleaned-up instance stops
	// being tracked for shutdown.
	onCleanup func()

	mu       sync.Mutex
	session  browser.Session
	page     browser.Page
	executor *Executor
	snapshot *browser.Snapshot
	history  []HistoryEntry
}

// NewBrowserAgent creates an uninitialized browser agent.
func NewBrowserAgent(driver browser.Driver, cfg browser.Config, provider llm.Provider, model string, recorder StepRecorder, logger *zap.Logger) *BrowserAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserAgent{
		driver:   driver,
		cfg:      cfg,
		provider: provider,
		model:    model,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "browser_agent")),
	}
}

// Initialize launches the browser session and wires the tool set. Calling
// it on an initialized agent is a no-op.
func (a *BrowserAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		return nil
	}

	session, err := a.driver.Launch(ctx, a.cfg)
	if err != nil {
		return types.NewBrowserError(err)
	}
	page, err := session.NewPage(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return types.NewBrowserError(err)
	}

	registry := tools.NewRegistry()
	tools.RegisterBrowserTools(registry, page)
	planner := llm.NewPlanner(a.provider, registry, a.model, a.logger)

	a.session = session
	a.page = page
	a.executor = NewExecutor(planner, registry, a.recorder, a.logger)

	a.logger.Info("browser agent initialized", zap.Bool("headless", a.cfg.Headless))
	return nil
}

// Execute runs one instruction. It never returns a Go error: failures are
// normalized into the response, and every call appends a history entry.
// The page context snapshot refreshes only after a successful run.
func (a *BrowserAgent) Execute(ctx context.Context, instruction string) Response {
	// Channel-initiated executions carry their id in the context; direct
	// API calls get a fresh one.
	executionID, ok := ctxkeys.ExecutionID(ctx)
	if !ok {
		executionID = uuid.NewString()
	}
	metrics := ExecutionMetrics{
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Instruction: instruction,
	}

	a.mu.Lock()
	executor := a.executor
	page := a.page
	a.mu.Unlock()

	var resp Response
	if executor == nil {
		err := types.NewError(types.ErrAgentNotReady, "browser agent is not initialized")
		metrics.EndTime = time.Now()
		metrics.Error = err.Message
		resp = Response{Success: false, Result: err.Message, Metrics: metrics}
	} else if result, err := executor.ExecuteTask(ctx, instruction); err != nil {
		a.logger.Warn("task failed",
			zap.String("execution_id", metrics.ExecutionID),
			zap.Error(err))
		msg := normalizeError(err)
		metrics.EndTime = time.Now()
		metrics.Error = msg
		resp = Response{Success: false, Result: msg, Metrics: metrics}
	} else {
		metrics.EndTime = time.Now()
		resp = Response{Success: true, Result: result, Metrics: metrics}
		if snap, serr := browser.Capture(ctx, page); serr == nil {
			a.mu.Lock()
			a.snapshot = snap
			a.mu.Unlock()
		}
	}

	a.mu.Lock()
	a.history = append(a.history, HistoryEntry{
		Instruction: instruction,
		Result:      resp.Result,
		Success:     resp.Success,
		Timestamp:   metrics.EndTime,
	})
	a.mu.Unlock()

	return resp
}

// normalizeError keeps structured messages and folds everything else under
// the browser error code.
func normalizeError(err error) string {
	if e, ok := err.(*types.Error); ok {
		return e.Message
	}
	return types.NewBrowserError(err).Message
}

// Snapshot returns the last captured page context, or nil before the first
// successful execution.
func (a *BrowserAgent) Snapshot() *browser.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshot == nil {
		return nil
	}
	snap := *a.snapshot
	return &snap
}

// History returns a copy of the execution history.
func (a *BrowserAgent) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]HistoryEntry(nil), a.history...)
}

// Cleanup closes the page and session. Safe to call repeatedly.
func (a *BrowserAgent) Cleanup(ctx context.Context) error {
	a.mu.Lock()

	released := a.onCleanup
	a.onCleanup = nil

	session := a.session
	page := a.page
	a.session = nil
	a.page = nil
	a.executor = nil
	a.mu.Unlock()

	if released != nil {
		released()
	}
	if session == nil {
		return nil
	}

	var firstErr error
	if page != nil {
		if err := page.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if err := session.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return types.NewBrowserError(firstErr)
	}
	return nil
}
