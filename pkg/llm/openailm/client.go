package openailm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imagent/pkg/llm"
	"imagent/pkg/utils"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // one attempt per call; FallbackClient handles failover
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	return false
}

// Chat implements llm.LLMClient using a single non-streaming Responses call.
func (c *Client) Chat(ctx context.Context, messages []llm.Message, availableTools []llm.Tool) (llm.Message, error) {
	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}

	opts := []option.RequestOption{}

	// Handle unified "thinking_effort" option
	if effortStr, ok := c.options["thinking_effort"].(string); ok && effortStr != "" && effortStr != "off" {
		var effort shared.ReasoningEffort
		switch effortStr {
		case "low":
			effort = shared.ReasoningEffortLow
		case "high":
			effort = shared.ReasoningEffortHigh
		default:
			effort = shared.ReasoningEffortMedium
		}

		params.Reasoning = shared.ReasoningParam{
			Effort: effort,
		}
	}

	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}

	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}

	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_output_tokens", int(maxTok)))
	}

	if tools := c.convertTools(availableTools); len(tools) > 0 {
		params.Tools = tools
	}

	debugger := llm.NewResponseDebugger(ctx, c.provider, c.debugEnabled)
	defer debugger.Close()
	debugger.WriteJSON("request", params)

	start := time.Now()
	resp, err := c.client.Responses.New(ctx, params, opts...)
	if err != nil {
		return llm.Message{}, fmt.Errorf("openai responses call: %w", err)
	}
	debugger.WriteString("response " + resp.RawJSON())

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   []llm.ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		id := fc.CallID
		if id == "" {
			id = fc.ID
		}
		if id == "" {
			id = utils.NewCallID()
		}
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   id,
			Name: fc.Name,
			Function: llm.FunctionCall{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}

	if text := resp.OutputText(); text != "" {
		msg.AddContentBlock(llm.NewTextBlock(text))
	}

	stopReason := normalizeStopReason(string(resp.Status))
	if len(msg.ToolCalls) > 0 {
		stopReason = llm.StopReasonToolCall
	}
	msg.Usage = &llm.LLMUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		StopReason:       stopReason,
	}
	llm.LogUsage(ctx, c.model, msg.Usage)

	slog.DebugContext(ctx, "Model call finished", "provider", c.provider, "model", c.model,
		"duration", time.Since(start).String(), "tool_calls", len(msg.ToolCalls))
	return msg, nil
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.GetTextContent(),
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if text := m.GetTextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					text,
					responses.EasyInputMessageRoleAssistant,
				))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					tc.Function.Arguments,
					tc.ID,
					tc.Name,
				))
			}
		case llm.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
				m.ToolCallID,
				m.GetTextContent(),
			))
		}
	}

	return items
}

func (c *Client) convertTools(availableTools []llm.Tool) []responses.ToolUnionParam {
	var tools []responses.ToolUnionParam
	for _, t := range availableTools {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  llm.FunctionSchema(t),
				// optional fields are allowed, which strict mode forbids
				Strict: openai.Bool(false),
			},
		})
	}
	return tools
}

// normalizeStopReason converts the Responses API status to
// a standardized lowercase format.
func normalizeStopReason(status string) string {
	switch strings.ToLower(status) {
	case "completed", "":
		return llm.StopReasonStop
	case "incomplete":
		return llm.StopReasonLength
	default:
		return status
	}
}
