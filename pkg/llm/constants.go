package llm

// Role constants for Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop     = "stop"      // Normal completion
	StopReasonLength   = "length"    // Output truncated due to token limit
	StopReasonToolCall = "tool_call" // Model handed control to tools
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
)

type contextKey string

// DebugDirContextKey carries the session id used to group debug dumps and log lines.
const DebugDirContextKey contextKey = "llm_debug_dir"
