package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
)

// anthropicSupportedModels mirrors the coding-tier model family this
// orchestrator routes to the Tool Loop's "coding" tier.
var anthropicSupportedModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-haiku-20240307",
}

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	MaxTokens    int
}

func sanitizeAnthropicConfig(cfg AnthropicConfig) AnthropicConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return cfg
}

// AnthropicAdapter implements ports.LlmPort over the Anthropic Messages API,
// serving the orchestrator's "coding" model tier.
type AnthropicAdapter struct {
	client  anthropic.Client
	cfg     AnthropicConfig
	current string
}

// NewAnthropicAdapter builds an adapter from cfg. Returns an error if APIKey
// is empty.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	cfg = sanitizeAnthropicConfig(cfg)

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicAdapter{
		client:  anthropic.NewClient(opts...),
		cfg:     cfg,
		current: cfg.DefaultModel,
	}, nil
}

// ProviderID identifies this adapter for routing, logging, and usage records.
func (a *AnthropicAdapter) ProviderID() string { return "anthropic" }

// IsAvailable reports whether the adapter was constructed with a usable key.
func (a *AnthropicAdapter) IsAvailable() bool { return a.cfg.APIKey != "" }

// SupportsStreaming reports true: every Claude model supports SSE streaming.
func (a *AnthropicAdapter) SupportsStreaming() bool { return true }

// SupportedModels lists the Claude model family this adapter can serve.
func (a *AnthropicAdapter) SupportedModels() []string { return anthropicSupportedModels }

// CurrentModel returns the model used when a request leaves Model empty.
func (a *AnthropicAdapter) CurrentModel() string { return a.current }

func (a *AnthropicAdapter) modelOrDefault(m string) string {
	if m == "" {
		return a.cfg.DefaultModel
	}
	return m
}

// Chat sends one non-streaming completion request with retry/backoff and
// returns the assembled response.
func (a *AnthropicAdapter) Chat(ctx context.Context, req ports.LlmRequest) (*ports.LlmResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	var message *anthropic.Message
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		message, err = a.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		wrapped := a.wrapError(err, a.modelOrDefault(req.Model))
		if !isRetryable(wrapped) || attempt >= a.cfg.MaxRetries {
			return nil, wrapped
		}
		backoff := a.cfg.RetryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return nil, a.wrapError(err, a.modelOrDefault(req.Model))
	}

	resp := &ports.LlmResponse{
		Usage: &model.LlmUsage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
			Model:        a.modelOrDefault(req.Model),
			ProviderID:   a.ProviderID(),
			Timestamp:    time.Now(),
		},
	}
	var text strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(variant.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

// ChatStream sends a streaming completion request and translates Anthropic's
// SSE events into ports.LlmChunk values.
func (a *AnthropicAdapter) ChatStream(ctx context.Context, req ports.LlmRequest) (<-chan ports.LlmChunk, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan ports.LlmChunk)
	go func() {
		defer close(chunks)

		stream := a.client.Messages.NewStreaming(ctx, params)

		var currentCall *model.ToolCall
		var currentInput strings.Builder
		var inputTokens, outputTokens int64

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				if ms.Message.Usage.InputTokens > 0 {
					inputTokens = ms.Message.Usage.InputTokens
				}
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					tu := block.AsToolUse()
					currentCall = &model.ToolCall{ID: tu.ID, Name: tu.Name}
					currentInput.Reset()
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						chunks <- ports.LlmChunk{TextDelta: delta.Text}
					}
				case "input_json_delta":
					currentInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if currentCall != nil {
					var args map[string]any
					_ = json.Unmarshal([]byte(currentInput.String()), &args)
					currentCall.Arguments = args
					chunks <- ports.LlmChunk{ToolCalls: []model.ToolCall{*currentCall}}
					currentCall = nil
				}
			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					outputTokens = md.Usage.OutputTokens
				}
			case "message_stop":
				chunks <- ports.LlmChunk{
					Done: true,
					Usage: &model.LlmUsage{
						InputTokens:  inputTokens,
						OutputTokens: outputTokens,
						Model:        a.modelOrDefault(req.Model),
						ProviderID:   a.ProviderID(),
						Timestamp:    time.Now(),
					},
				}
				return
			case "error":
				chunks <- ports.LlmChunk{Err: a.wrapError(errors.New("anthropic stream error"), a.modelOrDefault(req.Model)), Done: true}
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- ports.LlmChunk{Err: a.wrapError(err, a.modelOrDefault(req.Model)), Done: true}
		}
	}()

	return chunks, nil
}

func (a *AnthropicAdapter) buildParams(req ports.LlmRequest) (anthropic.MessageNewParams, error) {
	messages, err := a.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelOrDefault(req.Model)),
		Messages:  messages,
		MaxTokens: int64(a.cfg.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := a.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

func (a *AnthropicAdapter) convertMessages(messages []model.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" && msg.Role != model.RoleTool {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == model.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
		}

		var param anthropic.MessageParam
		if msg.Role == model.RoleAssistant {
			param = anthropic.NewAssistantMessage(content...)
		} else {
			param = anthropic.NewUserMessage(content...)
		}
		result = append(result, param)
	}
	return result, nil
}

func (a *AnthropicAdapter) convertTools(tools []model.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		schemaBytes, err := json.Marshal(tool.Schema)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func (a *AnthropicAdapter) wrapError(err error, modelName string) error {
	if err == nil {
		return nil
	}
	if isCallError(err) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return newCallError("anthropic", modelName, err).withStatus(apiErr.StatusCode)
	}
	return newCallError("anthropic", modelName, err)
}
