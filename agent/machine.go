package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

// RuntimeState is the observable lifecycle state of one mounted agent.
// Progress is a percentage, nil until the first report.
type RuntimeState struct {
	Status            Status     `json:"status"`
	IsEditable        bool       `json:"is_editable"`
	Progress          *int       `json:"progress,omitempty"`
	Error             string     `json:"error,omitempty"`
	AssistanceMessage string     `json:"assistance_message,omitempty"`
	Result            string     `json:"result,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Update carries optional field changes applied together with a transition.
// Nil fields are left untouched (before the clearing rules run). Progress
// is clamped to 0..100.
type Update struct {
	Progress          *int
	Error             *string
	AssistanceMessage *string
	Result            *string
}

// Listener observes committed transitions. Listeners are invoked outside
// the machine lock, in subscription order.
type Listener func(agentID string, from, to Status, state RuntimeState)

// TransitionRecorder receives committed transitions for metrics.
type TransitionRecorder interface {
	RecordAgentStateTransition(agentID, fromState, toState string)
}

// Machine tracks the runtime state of every mounted agent. Illegal
// transitions never mutate state: they are returned as errors and kept in a
// per-agent slot until the next successful transition.
type Machine struct {
	mu        sync.RWMutex
	states    map[string]*RuntimeState
	lastErr   map[string]*TransitionError
	listeners []Listener
	recorder  TransitionRecorder
	logger    *zap.Logger
}

// NewMachine creates an empty machine. recorder may be nil.
func NewMachine(logger *zap.Logger, recorder TransitionRecorder) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		states:   make(map[string]*RuntimeState),
		lastErr:  make(map[string]*TransitionError),
		recorder: recorder,
		logger:   logger.With(zap.String("component", "agent_machine")),
	}
}

// Subscribe registers a transition listener.
func (m *Machine) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Mount seeds a fresh agent in the initial status. Mounting an already
// mounted agent is a no-op.
func (m *Machine) Mount(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[agentID]; ok {
		return
	}
	m.states[agentID] = &RuntimeState{
		Status:     StatusInitial,
		IsEditable: Editable(StatusInitial),
	}
}

// Remove destroys an agent's state.
func (m *Machine) Remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, agentID)
	delete(m.lastErr, agentID)
}

// State returns a copy of an agent's state.
func (m *Machine) State(agentID string) (RuntimeState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[agentID]
	if !ok {
		return RuntimeState{}, false
	}
	return *st, true
}

// LastError returns the most recent rejected transition for an agent, if
// one happened since its last successful transition.
func (m *Machine) LastError(agentID string) *TransitionError {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr[agentID]
}

// Agents returns the ids of all mounted agents.
func (m *Machine) Agents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}

// Transition moves an agent to the next status, applying upd atomically.
func (m *Machine) Transition(agentID string, next Status, upd Update) error {
	m.mu.Lock()

	st, ok := m.states[agentID]
	if !ok {
		m.mu.Unlock()
		return types.NewError(types.ErrAgentNotFound, "agent not mounted: "+agentID)
	}

	from := st.Status
	if !CanTransition(from, next) {
		terr := &TransitionError{AgentID: agentID, Current: from, Attempted: next}
		m.lastErr[agentID] = terr
		m.mu.Unlock()
		m.logger.Warn("rejected state transition",
			zap.String("agent_id", agentID),
			zap.String("from", string(from)),
			zap.String("to", string(next)))
		return terr
	}

	m.apply(st, next, upd)
	delete(m.lastErr, agentID)
	snapshot := *st
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordAgentStateTransition(agentID, string(from), string(next))
	}
	for _, l := range listeners {
		l(agentID, from, next, snapshot)
	}
	return nil
}

// apply mutates st under the machine lock.
func (m *Machine) apply(st *RuntimeState, next Status, upd Update) {
	st.Status = next
	st.IsEditable = Editable(next)

	if upd.Progress != nil {
		p := *upd.Progress
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		st.Progress = &p
	}
	if upd.Error != nil {
		st.Error = *upd.Error
	}
	if upd.AssistanceMessage != nil {
		st.AssistanceMessage = *upd.AssistanceMessage
	}
	if upd.Result != nil {
		st.Result = *upd.Result
	}

	// Stale failure context never survives a move to a non-failure status.
	if next != StatusError {
		st.Error = ""
	}
	if next != StatusAssistance {
		st.AssistanceMessage = ""
	}
	if next == StatusComplete {
		now := time.Now()
		st.CompletedAt = &now
	}
}

// Reset reseeds an agent to a fresh idle state, bypassing the transition
// table. Used when re-running a finished or failed workflow.
func (m *Machine) Reset(agentID string) error {
	m.mu.Lock()
	if _, ok := m.states[agentID]; !ok {
		m.mu.Unlock()
		return types.NewError(types.ErrAgentNotFound, "agent not mounted: "+agentID)
	}
	m.states[agentID] = &RuntimeState{
		Status:     StatusInitial,
		IsEditable: Editable(StatusInitial),
	}
	delete(m.lastErr, agentID)
	m.mu.Unlock()

	return m.Transition(agentID, StatusIdle, Update{})
}

// ResetErrored reseeds every agent currently in the error status and
// returns their ids.
func (m *Machine) ResetErrored() []string {
	m.mu.RLock()
	var errored []string
	for id, st := range m.states {
		if st.Status == StatusError {
			errored = append(errored, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range errored {
		_ = m.Reset(id)
	}
	return errored
}
