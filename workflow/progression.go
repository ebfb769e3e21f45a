package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/agent"
	"github.com/BaSui01/canvasflow/persistence"
	"github.com/BaSui01/canvasflow/types"
)

// ExecutionState 工作流执行状态
type ExecutionState string

const (
	ExecutionInitial   ExecutionState = "initial"
	ExecutionRunning   ExecutionState = "running"
	ExecutionPaused    ExecutionState = "paused"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
)

// Execution is one run of a workflow. A workflow has at most one active
// execution at a time.
type Execution struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	SessionID     string         `json:"session_id,omitempty"`
	State         ExecutionState `json:"state"`
	CurrentNodeID string         `json:"current_node_id,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ExecutionStore persists workflow executions. May be nil.
type ExecutionStore interface {
	Create(ctx context.Context, rec *persistence.ExecutionRecord) error
	Complete(ctx context.Context, id, output, errText string) error
}

// Engine advances a workflow execution along the graph as node agents
// report terminal statuses: completion follows the outgoing edge, errors
// and assistance requests pause the run until Resume.
type Engine struct {
	workflowID string
	graph      *Graph
	machine    *agent.Machine
	store      ExecutionStore
	logger     *zap.Logger

	mu   sync.Mutex
	exec *Execution
}

// NewEngine creates an engine bound to a graph and agent machine, and
// subscribes to the machine's transitions. store may be nil.
func NewEngine(workflowID string, g *Graph, m *agent.Machine, store ExecutionStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		workflowID: workflowID,
		graph:      g,
		machine:    m,
		store:      store,
		logger: logger.With(
			zap.String("component", "progression"),
			zap.String("workflow_id", workflowID)),
	}
	m.Subscribe(e.onTransition)
	return e
}

// Execution returns a copy of the current execution, if any.
func (e *Engine) Execution() (Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec == nil {
		return Execution{}, false
	}
	return *e.exec, true
}

// Start begins a new execution at the root's first child. Agents of all
// workflow nodes are mounted if they are not already.
func (e *Engine) Start(ctx context.Context, sessionID string) (Execution, error) {
	root, ok := e.graph.Root()
	if !ok {
		return Execution{}, types.NewError(types.ErrInvalidGraphEdit, "workflow has no root node")
	}
	first, ok := e.graph.Next(root.ID)
	if !ok {
		return Execution{}, types.NewError(types.ErrInvalidGraphEdit, "root node has no outgoing connection")
	}

	e.mu.Lock()
	if e.exec != nil && (e.exec.State == ExecutionRunning || e.exec.State == ExecutionPaused) {
		e.mu.Unlock()
		return Execution{}, types.NewError(types.ErrAgentBusy, "workflow already has an active execution")
	}

	for _, n := range e.graph.Nodes() {
		if n.Type != NodeTypeRoot {
			e.machine.Mount(n.ID)
		}
	}

	exec := &Execution{
		ID:            uuid.NewString(),
		WorkflowID:    e.workflowID,
		SessionID:     sessionID,
		State:         ExecutionRunning,
		CurrentNodeID: first.ID,
		StartedAt:     time.Now(),
	}
	e.exec = exec
	snapshot := *exec
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.Create(ctx, &persistence.ExecutionRecord{
			ID:        exec.ID,
			AgentID:   first.AgentID,
			SessionID: sessionID,
			Input:     e.workflowID,
		}); err != nil {
			e.logger.Warn("failed to persist execution", zap.Error(err))
		}
	}

	if err := e.activate(first.ID); err != nil {
		e.fail(ctx, err)
		return snapshot, err
	}

	e.logger.Info("execution started",
		zap.String("execution_id", exec.ID),
		zap.String("first_node", first.ID))
	return snapshot, nil
}

// Pause suspends a running execution.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec == nil || e.exec.State != ExecutionRunning {
		return types.NewError(types.ErrExecutionNotRunning, "no running execution to pause")
	}
	e.exec.State = ExecutionPaused
	return nil
}

// Resume reactivates the paused execution's current node. A node stuck in
// error or assistance moves back to working.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if e.exec == nil || e.exec.State != ExecutionPaused {
		e.mu.Unlock()
		return types.NewError(types.ErrExecutionNotRunning, "no paused execution to resume")
	}
	nodeID := e.exec.CurrentNodeID
	e.exec.State = ExecutionRunning
	e.exec.Error = ""
	e.mu.Unlock()

	st, ok := e.machine.State(nodeID)
	if !ok {
		return types.NewError(types.ErrAgentNotFound, "current node is not mounted: "+nodeID)
	}
	switch st.Status {
	case agent.StatusError, agent.StatusAssistance:
		return e.machine.Transition(nodeID, agent.StatusWorking, agent.Update{})
	case agent.StatusInitial, agent.StatusIdle:
		return e.activate(nodeID)
	case agent.StatusComplete:
		// The node finished while the run was paused; pick up from there.
		e.advanceFrom(nodeID, st.Result)
		return nil
	default:
		// Node is already activating or working; it just keeps going.
		return nil
	}
}

// onTransition reacts to terminal node statuses for the current node.
func (e *Engine) onTransition(agentID string, from, to agent.Status, st agent.RuntimeState) {
	switch to {
	case agent.StatusComplete, agent.StatusError, agent.StatusAssistance:
	default:
		return
	}

	e.mu.Lock()
	if e.exec == nil || e.exec.State != ExecutionRunning || e.exec.CurrentNodeID != agentID {
		e.mu.Unlock()
		return
	}

	switch to {
	case agent.StatusComplete:
		e.mu.Unlock()
		e.advanceFrom(agentID, st.Result)

	case agent.StatusError:
		e.exec.State = ExecutionPaused
		e.exec.Error = st.Error
		e.mu.Unlock()
		e.logger.Warn("execution paused on node error",
			zap.String("node_id", agentID),
			zap.String("error", st.Error))

	case agent.StatusAssistance:
		e.exec.State = ExecutionPaused
		e.mu.Unlock()
		e.logger.Info("execution paused for assistance",
			zap.String("node_id", agentID),
			zap.String("message", st.AssistanceMessage))
	}
}

// advanceFrom follows nodeID's outgoing edge: activates the next node, or
// completes the execution if there is none.
func (e *Engine) advanceFrom(nodeID, result string) {
	e.mu.Lock()
	if e.exec == nil || e.exec.State != ExecutionRunning || e.exec.CurrentNodeID != nodeID {
		e.mu.Unlock()
		return
	}

	next, ok := e.graph.Next(nodeID)
	if !ok {
		now := time.Now()
		e.exec.State = ExecutionCompleted
		e.exec.CompletedAt = &now
		execID := e.exec.ID
		e.mu.Unlock()

		e.logger.Info("execution completed", zap.String("execution_id", execID))
		if e.store != nil {
			if err := e.store.Complete(context.Background(), execID, result, ""); err != nil {
				e.logger.Warn("failed to finalize execution record", zap.Error(err))
			}
		}
		return
	}

	e.exec.CurrentNodeID = next.ID
	e.mu.Unlock()

	if err := e.activate(next.ID); err != nil {
		e.fail(context.Background(), err)
	}
}

// activate walks a node from wherever it is to activating.
func (e *Engine) activate(nodeID string) error {
	st, ok := e.machine.State(nodeID)
	if !ok {
		return types.NewError(types.ErrAgentNotFound, "node is not mounted: "+nodeID)
	}
	if st.Status == agent.StatusInitial {
		if err := e.machine.Transition(nodeID, agent.StatusIdle, agent.Update{}); err != nil {
			return err
		}
	}
	return e.machine.Transition(nodeID, agent.StatusActivating, agent.Update{})
}

// fail marks the execution failed.
func (e *Engine) fail(ctx context.Context, cause error) {
	e.mu.Lock()
	if e.exec == nil {
		e.mu.Unlock()
		return
	}
	now := time.Now()
	e.exec.State = ExecutionFailed
	e.exec.CompletedAt = &now
	e.exec.Error = cause.Error()
	execID := e.exec.ID
	e.mu.Unlock()

	e.logger.Error("execution failed", zap.String("execution_id", execID), zap.Error(cause))
	if e.store != nil {
		if err := e.store.Complete(ctx, execID, "", cause.Error()); err != nil {
			e.logger.Warn("failed to finalize execution record", zap.Error(err))
		}
	}
}
