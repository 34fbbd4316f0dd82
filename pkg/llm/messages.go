package llm

import (
	"strings"
	"time"

	"imagent/pkg/utils"
)

//----------------------------------------------------------------
// Message - 通用訊息結構
//----------------------------------------------------------------

// Message 表示一條對話訊息
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "user", "assistant", "system", "tool"
	Content   []ContentBlock `json:"content"` // 內容區塊陣列
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls 包含 LLM 產生的工具調用請求（僅 role: assistant 時有效）
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID 關聯此訊息所屬的工具調用 ID（僅 role: tool 時有效）
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName 為回應的工具名稱（僅 role: tool 時有效，Gemini 需要）
	ToolName string `json:"tool_name,omitempty"`

	Usage *LLMUsage `json:"usage,omitempty"`
}

// ToolCall 表示 LLM 產生的工具調用請求
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta 保存提供者特定的元數據（例如 Gemini 的 thought_signature）
	// 不會被序列化到 JSON，僅用於內部傳遞
	Meta map[string]any `json:"-"`
}

// FunctionCall 包含具體的工具名稱與參數
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON 字串
}

// ContentBlock 表示訊息中的一個內容區塊
type ContentBlock struct {
	Type string `json:"type"` // "text", "thinking"
	Text string `json:"text,omitempty"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage 建立純文字訊息
func NewTextMessage(role, text string) Message {
	return Message{
		ID:        utils.GenerateID(),
		Role:      role,
		Content:   []ContentBlock{NewTextBlock(text)},
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage 建立系統訊息
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage 建立使用者訊息
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage 建立助理訊息
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolResultMessage 建立回應指定工具調用的結果訊息
func NewToolResultMessage(call ToolCall, text string) Message {
	msg := NewTextMessage(RoleTool, text)
	msg.ToolCallID = call.ID
	msg.ToolName = call.Name
	return msg
}

// AddContentBlock 添加內容區塊到訊息
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// GetTextContent 提取所有文字內容（排除 thinking）
func (m *Message) GetTextContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// GetThinkingContent 提取所有思考內容
func (m *Message) GetThinkingContent() string {
	var sb strings.Builder
	for _, block := range m.Content {
		if block.Type == BlockTypeThinking {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// HasToolCalls 判斷助理訊息是否要求工具調用
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

//----------------------------------------------------------------
// Helper Functions - ContentBlock
//----------------------------------------------------------------

// NewTextBlock 建立文字區塊
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeText,
		Text: text,
	}
}

// NewThinkingBlock 建立思考區塊
func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeThinking,
		Text: text,
	}
}
