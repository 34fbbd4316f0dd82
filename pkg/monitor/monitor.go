package monitor

import "time"

// Event types
const (
	EventToolStart   = "TOOL_START"
	EventToolDone    = "TOOL_DONE"
	EventToolIgnored = "TOOL_IGNORED"
)

// Event 代表一則工具進度事件
type Event struct {
	Timestamp time.Time
	Type      string // EventToolStart, EventToolDone, EventToolIgnored
	SessionID string
	Tool      string
	CallID    string
	Detail    string // error text or ignored tool names
	Failed    bool
}

// Monitor 介面定義了監控器的行為
type Monitor interface {
	// Start 啟動監控器
	Start() error

	// Stop 停止監控器
	Stop() error

	// OnEvent 接收並顯示事件
	OnEvent(ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Start() error    { return nil }
func (Nop) Stop() error     { return nil }
func (Nop) OnEvent(_ Event) {}
