package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(ctx context.Context, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "prompt=%d completion=%d total=%d", usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if usage.ThoughtsTokens > 0 {
		fmt.Fprintf(&sb, " thoughts=%d", usage.ThoughtsTokens)
	}
	if usage.CachedTokens > 0 {
		fmt.Fprintf(&sb, " cached=%d", usage.CachedTokens)
	}

	slog.DebugContext(ctx, "LLM usage", "model", model, "tokens", sb.String(), "stop_reason", usage.StopReason)
}

// Tool describes a capability the model may request. Providers turn it into
// their native function declaration.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema "properties" object.
	Parameters() map[string]any
	RequiredParameters() []string
}

// FunctionSchema builds the JSON schema object for a tool's arguments.
func FunctionSchema(t Tool) map[string]any {
	required := t.RequiredParameters()
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": t.Parameters(),
		"required":   required,
	}
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// Chat 送出完整對話歷史與可用工具，返回一則助理訊息（文字和/或工具調用）
	Chat(ctx context.Context, messages []Message, tools []Tool) (Message, error)

	// Provider 回傳提供者名稱，例如 "openai"
	Provider() string

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool

	// SetDebug 開關原始回應的除錯紀錄
	SetDebug(enabled bool)
}

// ErrNoClients is returned by a FallbackClient without providers.
var ErrNoClients = errors.New("no LLM clients configured")

// FallbackClient 依序嘗試多個 Client，每個只嘗試一次
type FallbackClient struct {
	Clients []LLMClient
}

// Chat implements LLMClient.
func (f *FallbackClient) Chat(ctx context.Context, messages []Message, tools []Tool) (Message, error) {
	if len(f.Clients) == 0 {
		return Message{}, ErrNoClients
	}

	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}

		msg, err := client.Chat(ctx, messages, tools)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		slog.ErrorContext(ctx, "Provider failed", "index", i+1, "provider", client.Provider(), "error", err)
	}
	return Message{}, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// Provider implements LLMClient.
func (f *FallbackClient) Provider() string {
	names := make([]string, len(f.Clients))
	for i, c := range f.Clients {
		names[i] = c.Provider()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 的錯誤意味著所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}

// SetDebug propagates the debug switch to every child client.
func (f *FallbackClient) SetDebug(enabled bool) {
	for _, c := range f.Clients {
		c.SetDebug(enabled)
	}
}
