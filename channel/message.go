// Package channel implements the duplex execution channel: a per-execution
// websocket session that accepts control messages and streams execution
// state snapshots.
package channel

import (
	"encoding/json"
	"time"
)

// Inbound message types.
const (
	TypeStartExecution  = "START_EXECUTION"
	TypeCancelExecution = "CANCEL_EXECUTION"
	TypeError           = "ERROR"
)

// Execution snapshot statuses, pushed in phase order.
const (
	StatusInitializing = "initializing"
	StatusRunning      = "running"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// cancelMessage is the error recorded when a client cancels an execution.
const cancelMessage = "Execution cancelled by user"

// Envelope is the inbound control frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StartPayload is the data of a START_EXECUTION frame.
type StartPayload struct {
	AgentID      string         `json:"agentId,omitempty"`
	AgentType    string         `json:"agentType,omitempty"`
	ProviderType string         `json:"providerType,omitempty"`
	Instruction  string         `json:"instruction"`
	Config       map[string]any `json:"config,omitempty"`
}

// ErrorEnvelope is sent in reply to malformed or unknown frames. The
// connection stays open.
type ErrorEnvelope struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Metrics carries snapshot timing.
type Metrics struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
}

// Snapshot is the outbound execution state frame. The latest snapshot is
// also kept in the SnapshotStore so late subscribers can catch up.
type Snapshot struct {
	ExecutionID string  `json:"execution_id"`
	Status      string  `json:"status"`
	Result      string  `json:"result,omitempty"`
	Error       string  `json:"error,omitempty"`
	Metrics     Metrics `json:"metrics"`
}
