// Package persistence stores agent definitions and execution records.
package persistence

import (
	"encoding/json"
	"time"
)

// AgentDefinition is a stored agent blueprint. Tools, DefaultConfig and
// Metadata are JSON text columns so the schema works identically across
// postgres, mysql and sqlite.
type AgentDefinition struct {
	ID            string `gorm:"primaryKey;size:64" json:"id"`
	Name          string `gorm:"size:255;not null" json:"name"`
	Description   string `gorm:"type:text" json:"description,omitempty"`
	CreatedBy     string `gorm:"size:64;index" json:"created_by,omitempty"`
	IsSystem      bool   `gorm:"index" json:"is_system"`
	Tools         string `gorm:"type:text" json:"tools,omitempty"`
	DefaultConfig string `gorm:"type:text" json:"default_config,omitempty"`
	Metadata      string `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName maps to the agents table.
func (AgentDefinition) TableName() string { return "agents" }

// ToolList decodes the Tools column.
func (d *AgentDefinition) ToolList() ([]string, error) {
	if d.Tools == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(d.Tools), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConfigMap decodes the DefaultConfig column.
func (d *AgentDefinition) ConfigMap() (map[string]any, error) {
	if d.DefaultConfig == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(d.DefaultConfig), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecutionRecord is one persisted agent execution. Output and Errors are
// written once, when the execution finishes.
type ExecutionRecord struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	AgentID   string `gorm:"size:64;index" json:"agent_id"`
	SessionID string `gorm:"size:64;index" json:"session_id,omitempty"`
	Input     string `gorm:"type:text" json:"input"`
	Output    string `gorm:"type:text" json:"output,omitempty"`
	Errors    string `gorm:"type:text" json:"errors,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName maps to the executions table.
func (ExecutionRecord) TableName() string { return "executions" }
