package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imagent/pkg/llm"
	"imagent/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	// Per-call deadlines come from the context; the transport only bounds connection setup
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	customClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, customClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

// SetDebug implements the llm.LLMClient interface
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// Chat implements llm.LLMClient with a single non-streaming chat request.
func (o *OllamaClient) Chat(ctx context.Context, messages []llm.Message, availableTools []llm.Tool) (llm.Message, error) {
	streamVal := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: o.convertMessages(messages),
		Options:  o.options,
		Tools:    o.convertTools(availableTools),
		Stream:   &streamVal,
	}

	debugger := llm.NewResponseDebugger(ctx, o.Provider(), o.debugEnabled)
	defer debugger.Close()
	debugger.WriteJSON("request", req)

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   []llm.ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		debugger.WriteJSON("response", resp)

		if resp.Message.Thinking != "" {
			msg.AddContentBlock(llm.NewThinkingBlock(resp.Message.Thinking))
		}
		if resp.Message.Content != "" {
			msg.AddContentBlock(llm.NewTextBlock(resp.Message.Content))
		}

		for _, tc := range resp.Message.ToolCalls {
			argsB, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				slog.WarnContext(ctx, "Failed to marshal tool call arguments", "provider", "ollama", "error", err)
				argsB = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = utils.NewCallID()
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   id,
				Name: tc.Function.Name,
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: string(argsB),
				},
			})
		}

		if resp.Done {
			reason := resp.DoneReason
			if len(msg.ToolCalls) > 0 {
				reason = llm.StopReasonToolCall
			}
			msg.Usage = &llm.LLMUsage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				StopReason:       reason,
			}
			if resp.DoneReason == llm.StopReasonLength {
				slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
			}
		}
		return nil
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("ollama chat with model %s: %w", o.model, err)
	}

	llm.LogUsage(ctx, o.model, msg.Usage)
	return msg, nil
}

// convertTools turns tool schemas into the ollama function format. The
// SDK's tool types are filled through JSON to stay independent of its
// internal property representation.
func (o *OllamaClient) convertTools(availableTools []llm.Tool) api.Tools {
	if len(availableTools) == 0 {
		return nil
	}

	raw := make([]map[string]any, 0, len(availableTools))
	for _, t := range availableTools {
		raw = append(raw, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  llm.FunctionSchema(t),
			},
		})
	}

	var ollamaTools api.Tools
	rawB, err := json.Marshal(raw)
	if err != nil {
		slog.Error("Failed to marshal tools", "provider", "ollama", "error", err)
		return nil
	}
	if err := json.Unmarshal(rawB, &ollamaTools); err != nil {
		slog.Error("Failed to unmarshal to api.Tools", "provider", "ollama", "error", err)
		return nil
	}
	return ollamaTools
}

// convertMessages converts messages to Ollama API format
func (o *OllamaClient) convertMessages(messages []llm.Message) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:     m.Role,
			Content:  m.GetTextContent(),
			Thinking: m.GetThinkingContent(),
		}

		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			var ollamaToolCalls []api.ToolCall
			for _, tc := range m.ToolCalls {
				args := tc.Function.Arguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				var apiArgs api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(args), &apiArgs); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "ollama", "error", err)
				}

				ollamaToolCalls = append(ollamaToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: apiArgs,
					},
				})
			}
			msg.ToolCalls = ollamaToolCalls
		}

		if m.Role == llm.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}

		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	return strings.Contains(errMsg, "overloaded")
}
