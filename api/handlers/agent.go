package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/agent"
	"github.com/BaSui01/canvasflow/types"
)

// =============================================================================
// 🤖 Agent 执行 Handler
// =============================================================================

// AgentRunner runs one instruction against a resolved agent instance.
// *agent.Builder satisfies it.
type AgentRunner interface {
	Run(ctx context.Context, req agent.BuildRequest, instruction string) (agent.Response, error)
}

// ExecuteRequest 执行请求体
type ExecuteRequest struct {
	AgentID      string         `json:"agentId,omitempty"`
	AgentType    string         `json:"agentType,omitempty"`
	ProviderType string         `json:"providerType,omitempty"`
	Instruction  string         `json:"instruction"`
	Config       map[string]any `json:"config,omitempty"`
}

// AgentHandler Agent 执行处理器
type AgentHandler struct {
	runner AgentRunner
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 执行处理器
func NewAgentHandler(runner AgentRunner, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		runner: runner,
		logger: logger.With(zap.String("component", "agent_handler")),
	}
}

// HandleExecute 处理 POST /api/agent/execute
func (h *AgentHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest,
			"method not allowed", h.logger)
		return
	}

	var req ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Instruction == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"instruction is required", h.logger)
		return
	}
	if req.AgentID == "" && req.AgentType == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"agentId or agentType is required", h.logger)
		return
	}

	resp, err := h.runner.Run(r.Context(), agent.BuildRequest{
		AgentID:      req.AgentID,
		AgentType:    req.AgentType,
		ProviderType: req.ProviderType,
		Config:       req.Config,
	}, req.Instruction)
	if err != nil {
		if apiErr, ok := err.(*types.Error); ok {
			WriteError(w, apiErr, h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError,
			err.Error(), h.logger)
		return
	}

	WriteSuccess(w, resp)
}
