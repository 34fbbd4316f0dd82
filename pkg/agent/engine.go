package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"imagent/pkg/config"
	"imagent/pkg/llm"
	"imagent/pkg/monitor"
	"imagent/pkg/session"
	"imagent/pkg/tools"
)

const (
	noReplyNotice      = "（模型没有返回内容）"
	ignoredToolsNotice = "（本轮已执行过工具，模型追加的工具调用已忽略）"
)

// Engine runs one conversational turn at a time: a model decision, at most
// one round of tool execution, and a finalize call.
type Engine struct {
	client   llm.LLMClient
	registry *tools.Registry
	monitor  monitor.Monitor
	sysCfg   config.SystemConfig
}

// NewEngine initializes an Engine. A nil monitor discards progress events.
func NewEngine(client llm.LLMClient, registry *tools.Registry, mon monitor.Monitor, sysCfg config.SystemConfig) *Engine {
	if mon == nil {
		mon = monitor.Nop{}
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Engine{
		client:   client,
		registry: registry,
		monitor:  mon,
		sysCfg:   sysCfg,
	}
}

// HandleTurn appends the user input to the session, lets the model decide,
// executes any requested tools and returns the visible reply. A model client
// error aborts only this turn.
func (e *Engine) HandleTurn(ctx context.Context, sess *session.Session, input string) (string, error) {
	ctx = sess.Context(ctx)
	start := time.Now()

	sess.History.Add(llm.NewUserMessage(input))

	decision, err := e.chat(ctx, sess)
	if err != nil {
		return "", fmt.Errorf("model decision: %w", err)
	}
	sess.History.Add(decision)

	if !decision.HasToolCalls() {
		return replyText(decision), nil
	}

	results := e.ExecuteToolCalls(ctx, sess, decision.ToolCalls)
	if err := sess.History.AddToolResults(results); err != nil {
		return "", fmt.Errorf("commit tool results: %w", err)
	}

	final, err := e.chat(ctx, sess)
	if err != nil {
		return "", fmt.Errorf("model finalize: %w", err)
	}
	if final.HasToolCalls() {
		e.dropToolCalls(ctx, sess, &final)
	}
	sess.History.Add(final)

	slog.InfoContext(ctx, "Turn finished", "tools", len(decision.ToolCalls), "elapsed", time.Since(start).Round(time.Millisecond))
	return replyText(final), nil
}

// chat sends the full history with the tool schemas under the per-call timeout.
func (e *Engine) chat(ctx context.Context, sess *session.Session) (llm.Message, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.sysCfg.LLMTimeout())
	defer cancel()

	var availableTools []llm.Tool
	if e.sysCfg.EnableTools {
		availableTools = e.registry.Schemas()
	}

	msg, err := e.client.Chat(runCtx, sess.History.GetMessages(), availableTools)
	if err != nil {
		slog.ErrorContext(ctx, "LLM call failed", "provider", e.client.Provider(), "transient", e.client.IsTransientError(err), "error", err)
		return llm.Message{}, err
	}
	msg.Role = llm.RoleAssistant
	return msg, nil
}

// dropToolCalls removes calls requested by the finalize response so the
// history never carries unanswered calls.
func (e *Engine) dropToolCalls(ctx context.Context, sess *session.Session, msg *llm.Message) {
	names := make([]string, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		names[i] = callName(tc)
	}
	slog.WarnContext(ctx, "Ignoring tool calls requested after the tool round", "tools", names)
	e.monitor.OnEvent(monitor.Event{
		Timestamp: time.Now(),
		Type:      monitor.EventToolIgnored,
		SessionID: sess.ID,
		Detail:    strings.Join(names, ", "),
	})

	msg.ToolCalls = nil
	if strings.TrimSpace(msg.GetTextContent()) == "" {
		msg.AddContentBlock(llm.NewTextBlock(ignoredToolsNotice))
	}
}

// ExecuteToolCalls runs the calls sequentially in request order and returns
// exactly one tool result message per call, bound to its id.
func (e *Engine) ExecuteToolCalls(ctx context.Context, sess *session.Session, calls []llm.ToolCall) []llm.Message {
	env := tools.Env{SessionID: sess.ID, Artifacts: sess.Artifacts}
	results := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		res := e.ResolveAndRunToolCall(ctx, env, tc)
		results = append(results, llm.NewToolResultMessage(tc, res.Content()))
	}
	return results
}

// ResolveAndRunToolCall is a resilience wrapper that ensures every tool call
// yields a result, even if the tool panics.
func (e *Engine) ResolveAndRunToolCall(ctx context.Context, env tools.Env, tc llm.ToolCall) (res tools.Result) {
	name := callName(tc)
	start := time.Now()
	e.monitor.OnEvent(monitor.Event{
		Timestamp: start,
		Type:      monitor.EventToolStart,
		SessionID: env.SessionID,
		Tool:      name,
		CallID:    tc.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", name, "error", r, "stack", string(debug.Stack()))
			res = tools.Failure(tools.NewError(tools.KindInternal, "工具执行异常", fmt.Errorf("panic: %v", r)))
		}

		ev := monitor.Event{
			Timestamp: time.Now(),
			Type:      monitor.EventToolDone,
			SessionID: env.SessionID,
			Tool:      name,
			CallID:    tc.ID,
		}
		if res.Failed() {
			ev.Failed = true
			ev.Detail = res.Err.Message
			slog.WarnContext(ctx, "Tool failed", "tool", name, "call_id", tc.ID, "kind", res.Err.Kind, "error", res.Err)
		} else {
			slog.InfoContext(ctx, "Tool finished", "tool", name, "call_id", tc.ID, "elapsed", time.Since(start).Round(time.Millisecond))
		}
		e.monitor.OnEvent(ev)
	}()

	return e.HandleToolCall(ctx, env, tc)
}

// HandleToolCall resolves, parses, validates and executes an individual tool call.
func (e *Engine) HandleToolCall(ctx context.Context, env tools.Env, tc llm.ToolCall) tools.Result {
	name := callName(tc)
	tool, ok := e.registry.Lookup(name)
	if !ok {
		slog.ErrorContext(ctx, "Unknown tool call", "name", name)
		return tools.Failure(tools.NewError(tools.KindUnknownTool, "未知工具: "+name, nil))
	}

	args, err := tools.ParseArguments(tc.Function.Arguments)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse tool args", "tool", name, "error", err)
		return tools.Failure(tools.NewError(tools.KindValidation, "参数解析失败", err))
	}
	if err := tools.Validate(tool, args); err != nil {
		return tools.Failure(tools.NewError(tools.KindValidation, "参数校验失败", err))
	}

	slog.InfoContext(ctx, "Executing tool", "name", name, "args", args)
	return tool.Execute(ctx, env, args)
}

func callName(tc llm.ToolCall) string {
	if tc.Function.Name != "" {
		return tc.Function.Name
	}
	return tc.Name
}

func replyText(msg llm.Message) string {
	text := strings.TrimSpace(msg.GetTextContent())
	if text == "" {
		return noReplyNotice
	}
	return text
}
