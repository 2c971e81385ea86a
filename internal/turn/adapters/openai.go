package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
)

var openaiSupportedModels = []string{
	openai.GPT4o,
	openai.GPT4Turbo,
	openai.GPT3Dot5Turbo,
}

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	MaxTokens    int
}

func sanitizeOpenAIConfig(cfg OpenAIConfig) OpenAIConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}
	return cfg
}

// OpenAIAdapter implements ports.LlmPort over the OpenAI Chat Completions
// API, serving the orchestrator's "fast" and "balanced" model tiers.
type OpenAIAdapter struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIAdapter builds an adapter from cfg. Returns an error if APIKey is
// empty.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	cfg = sanitizeOpenAIConfig(cfg)
	return &OpenAIAdapter{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}, nil
}

// ProviderID identifies this adapter for routing, logging, and usage records.
func (a *OpenAIAdapter) ProviderID() string { return "openai" }

// IsAvailable reports whether the adapter was constructed with a usable key.
func (a *OpenAIAdapter) IsAvailable() bool { return a.client != nil }

// SupportsStreaming reports true: Chat Completions supports SSE streaming.
func (a *OpenAIAdapter) SupportsStreaming() bool { return true }

// SupportedModels lists the GPT model family this adapter can serve.
func (a *OpenAIAdapter) SupportedModels() []string { return openaiSupportedModels }

// CurrentModel returns the model used when a request leaves Model empty.
func (a *OpenAIAdapter) CurrentModel() string { return a.cfg.DefaultModel }

func (a *OpenAIAdapter) modelOrDefault(m string) string {
	if m == "" {
		return a.cfg.DefaultModel
	}
	return m
}

// Chat sends one non-streaming completion request with retry/backoff.
func (a *OpenAIAdapter) Chat(ctx context.Context, req ports.LlmRequest) (*ports.LlmResponse, error) {
	chatReq := a.buildRequest(req, false)

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		resp, err = a.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}
		wrapped := a.wrapError(err, a.modelOrDefault(req.Model))
		if !isRetryable(wrapped) || attempt >= a.cfg.MaxRetries {
			return nil, wrapped
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.RetryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		return nil, a.wrapError(err, a.modelOrDefault(req.Model))
	}
	if len(resp.Choices) == 0 {
		return &ports.LlmResponse{}, nil
	}

	choice := resp.Choices[0]
	out := &ports.LlmResponse{
		Content: choice.Message.Content,
		Usage: &model.LlmUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Model:        a.modelOrDefault(req.Model),
			ProviderID:   a.ProviderID(),
			Timestamp:    time.Now(),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

// ChatStream sends a streaming completion request and translates OpenAI's
// delta events into ports.LlmChunk values, assembling fragmented tool-call
// arguments by index the way the Chat Completions streaming API delivers
// them.
func (a *OpenAIAdapter) ChatStream(ctx context.Context, req ports.LlmRequest) (<-chan ports.LlmChunk, error) {
	chatReq := a.buildRequest(req, true)

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, a.wrapError(err, a.modelOrDefault(req.Model))
	}

	chunks := make(chan ports.LlmChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		toolCalls := map[int]*model.ToolCall{}
		rawArgs := map[int]*strings.Builder{}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					flushToolCalls(chunks, toolCalls, rawArgs)
					chunks <- ports.LlmChunk{Done: true}
					return
				}
				chunks <- ports.LlmChunk{Err: a.wrapError(err, a.modelOrDefault(req.Model)), Done: true}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				chunks <- ports.LlmChunk{TextDelta: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if toolCalls[idx] == nil {
					toolCalls[idx] = &model.ToolCall{}
					rawArgs[idx] = &strings.Builder{}
				}
				if tc.ID != "" {
					toolCalls[idx].ID = tc.ID
				}
				if tc.Function.Name != "" {
					toolCalls[idx].Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					rawArgs[idx].WriteString(tc.Function.Arguments)
				}
			}
			if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
				flushToolCalls(chunks, toolCalls, rawArgs)
				toolCalls = map[int]*model.ToolCall{}
				rawArgs = map[int]*strings.Builder{}
			}
		}
	}()

	return chunks, nil
}

func flushToolCalls(chunks chan<- ports.LlmChunk, toolCalls map[int]*model.ToolCall, rawArgs map[int]*strings.Builder) {
	for idx, tc := range toolCalls {
		if tc.ID == "" || tc.Name == "" {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(rawArgs[idx].String()), &args)
		tc.Arguments = args
		chunks <- ports.LlmChunk{ToolCalls: []model.ToolCall{*tc}}
	}
}

func (a *OpenAIAdapter) buildRequest(req ports.LlmRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case model.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			messages = append(messages, oaiMsg)
		default:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    a.modelOrDefault(req.Model),
		Messages: messages,
		Stream:   stream,
	}
	if a.cfg.MaxTokens > 0 {
		chatReq.MaxTokens = a.cfg.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = a.convertTools(req.Tools)
	}
	return chatReq
}

func (a *OpenAIAdapter) convertTools(tools []model.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		schema := tool.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (a *OpenAIAdapter) wrapError(err error, modelName string) error {
	if err == nil {
		return nil
	}
	if isCallError(err) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newCallError("openai", modelName, err).withStatus(apiErr.HTTPStatusCode)
	}
	return newCallError("openai", modelName, err)
}
