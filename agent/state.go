package agent

import "fmt"

// Status 定义 Agent 生命周期状态
type Status string

const (
	StatusInitial    Status = "initial"    // Just placed, not yet configured
	StatusIdle       Status = "idle"       // Configured, waiting for activation
	StatusActivating Status = "activating" // Warming up (session launch, context load)
	StatusWorking    Status = "working"    // Executing a task
	StatusComplete   Status = "complete"   // Finished successfully (terminal)
	StatusError      Status = "error"      // Failed, editable and retryable
	StatusAssistance Status = "assistance" // Waiting for human input
)

// validTransitions 定义合法的状态转换
var validTransitions = map[Status][]Status{
	StatusInitial:    {StatusIdle},
	StatusIdle:       {StatusActivating},
	StatusActivating: {StatusWorking},
	StatusWorking:    {StatusComplete, StatusError, StatusAssistance},
	StatusError:      {StatusWorking}, // retry resumes work directly
	StatusAssistance: {StatusWorking}, // human replied, resume work
	StatusComplete:   {},              // terminal
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// editableStatuses are the statuses in which a node's configuration may be
// changed from the canvas.
var editableStatuses = map[Status]bool{
	StatusInitial:    true,
	StatusError:      true,
	StatusAssistance: true,
}

// Editable reports whether configuration edits are allowed in this status.
func Editable(s Status) bool {
	return editableStatuses[s]
}

// TransitionError 非法状态转换错误
type TransitionError struct {
	AgentID   string
	Current   Status
	Attempted Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for %s: %s -> %s", e.AgentID, e.Current, e.Attempted)
}
