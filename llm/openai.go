package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// OpenAIConfig configures the provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewOpenAIProvider creates a provider. An empty BaseURL targets the
// public OpenAI API.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "openai_provider")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Created int64 `json:"created,omitempty"`
}

type openAIErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion sends a chat completion request and extracts the first choice.
func (p *OpenAIProvider) Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	body := openAIRequest{
		Model:       req.Model,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode completion request").
			WithCause(err).WithProvider(p.Name())
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build completion request").
			WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "completion request failed").
			WithCause(err).WithProvider(p.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode completion response").
			WithCause(err).WithProvider(p.Name())
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "completion response has no choices").
			WithProvider(p.Name())
	}

	out := &CompletionResponse{
		ID:       parsed.ID,
		Provider: p.Name(),
		Model:    parsed.Model,
		Content:  parsed.Choices[0].Message.Content,
	}
	if parsed.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	if parsed.Created > 0 {
		out.CreatedAt = time.Unix(parsed.Created, 0)
	}
	return out, nil
}

// mapHTTPError folds upstream HTTP failures into the error taxonomy.
func (p *OpenAIProvider) mapHTTPError(resp *http.Response) *types.Error {
	msg := readErrMsg(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name()).WithRetryable(true)
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return types.NewError(types.ErrContextTooLong, msg).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name()).WithRetryable(true)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).
			WithHTTPStatus(resp.StatusCode).WithProvider(p.Name())
	}
}

func readErrMsg(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "upstream request failed"
	}
	var parsed openAIErrorResp
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return fmt.Sprintf("upstream request failed: %s", strings.TrimSpace(string(data)))
}
