package llm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrToolResultMismatch is returned when a batch of tool results does not
// answer the tool calls of the preceding assistant message one to one.
var ErrToolResultMismatch = errors.New("tool results do not match the preceding tool calls")

// ChatHistory 管理一個對話的訊息序列（只可追加）
type ChatHistory struct {
	messages []Message
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員，並以系統提示詞作為第一則訊息
func NewChatHistory(systemPrompt string) *ChatHistory {
	return &ChatHistory{
		messages: []Message{NewSystemMessage(systemPrompt)},
	}
}

// Add 加入一則新訊息
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
}

// AddToolResults appends the results of one tool round. The last message in
// the history must be an assistant message whose tool calls the results
// answer exactly, in order. Nothing is appended on mismatch.
func (h *ChatHistory) AddToolResults(results []Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) == 0 {
		return fmt.Errorf("%w: history is empty", ErrToolResultMismatch)
	}
	last := h.messages[len(h.messages)-1]
	if last.Role != RoleAssistant {
		return fmt.Errorf("%w: last message has role %q", ErrToolResultMismatch, last.Role)
	}
	if len(last.ToolCalls) != len(results) {
		return fmt.Errorf("%w: %d calls, %d results", ErrToolResultMismatch, len(last.ToolCalls), len(results))
	}
	for i, res := range results {
		if res.Role != RoleTool {
			return fmt.Errorf("%w: result %d has role %q", ErrToolResultMismatch, i, res.Role)
		}
		if res.ToolCallID != last.ToolCalls[i].ID {
			return fmt.Errorf("%w: result %d answers %q, want %q", ErrToolResultMismatch, i, res.ToolCallID, last.ToolCalls[i].ID)
		}
	}

	h.messages = append(h.messages, results...)
	return nil
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len 回傳訊息數量
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Last 回傳最後一則訊息
func (h *ChatHistory) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}
