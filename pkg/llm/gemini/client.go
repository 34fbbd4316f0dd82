package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imagent/pkg/llm"
	"imagent/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(ctx context.Context, apiKey string, model string, useThought bool, baseURL string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// SetDebug implements the llm.LLMClient interface
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// Chat implements llm.LLMClient.Chat
func (g *GeminiClient) Chat(ctx context.Context, messages []llm.Message, availableTools []llm.Tool) (llm.Message, error) {
	apiMessages, systemInstruction := g.convertMessages(messages)

	var thinkingCfg *genai.ThinkingConfig
	if g.useThought {
		thinkingCfg = &genai.ThinkingConfig{
			IncludeThoughts: true,
		}
	}

	debugger := llm.NewResponseDebugger(ctx, g.Provider(), g.debugEnabled)
	defer debugger.Close()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, apiMessages, &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             g.convertTools(availableTools),
		ThinkingConfig:    thinkingCfg,
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("gemini generate content with model %s: %w", g.model, err)
	}
	debugger.WriteJSON("response", resp)

	msg := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Content:   []llm.ContentBlock{},
		Timestamp: time.Now().Unix(),
	}

	var stopReason string
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != "" {
			stopReason = normalizeStopReason(string(candidate.FinishReason))
		}
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				if part.Thought {
					msg.AddContentBlock(llm.NewThinkingBlock(part.Text))
				} else {
					msg.AddContentBlock(llm.NewTextBlock(part.Text))
				}
			}

			if part.FunctionCall != nil {
				argsB, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = utils.NewCallID()
				}
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:   id,
					Name: part.FunctionCall.Name,
					Function: llm.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsB),
					},
					// Save original FunctionCall for reconstruction (includes thought_signature, etc.)
					Meta: map[string]any{
						"gemini_function_call": part.FunctionCall,
					},
				})
				slog.DebugContext(ctx, "Tool call", "provider", "gemini", "name", part.FunctionCall.Name, "args", string(argsB))
			}
		}
	}

	if len(msg.ToolCalls) > 0 {
		stopReason = llm.StopReasonToolCall
	}
	usage := &llm.LLMUsage{StopReason: stopReason}
	if u := resp.UsageMetadata; u != nil {
		usage.PromptTokens = int(u.PromptTokenCount)
		usage.CompletionTokens = int(u.CandidatesTokenCount)
		usage.TotalTokens = int(u.TotalTokenCount)
		usage.ThoughtsTokens = int(u.ThoughtsTokenCount)
		usage.CachedTokens = int(u.CachedContentTokenCount)
	}
	msg.Usage = usage
	llm.LogUsage(ctx, g.model, usage)

	return msg, nil
}

func (g *GeminiClient) convertTools(availableTools []llm.Tool) []*genai.Tool {
	var fds []*genai.FunctionDeclaration
	for _, t := range availableTools {
		fd := &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
		}
		schemaB, _ := json.Marshal(llm.FunctionSchema(t))
		var schema genai.Schema
		if err := json.Unmarshal(schemaB, &schema); err == nil {
			fd.Parameters = &schema
		}
		fds = append(fds, fd)
	}
	if len(fds) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetTextContent(); text != "" {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
			}
			continue

		case llm.RoleTool:
			// Tool results are part of user role in Gemini
			genaiContents = append(genaiContents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: map[string]any{"result": msg.GetTextContent()},
					},
				}},
			})
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			if block.Text == "" {
				continue
			}
			parts = append(parts, &genai.Part{
				Text:    block.Text,
				Thought: block.Type == llm.BlockTypeThinking,
			})
		}

		// Gemini requires echoing previous calls before their responses
		for _, tc := range msg.ToolCalls {
			if originalFC, ok := tc.Meta["gemini_function_call"].(*genai.FunctionCall); ok {
				parts = append(parts, &genai.Part{FunctionCall: originalFC})
				continue
			}

			var args map[string]any
			if strings.TrimSpace(tc.Function.Arguments) != "" {
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "gemini", "error", err)
				}
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				},
			})
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return genaiContents, systemInstruction
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "STOP":
		return llm.StopReasonStop
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return llm.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 500 Internal Error
	return strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error")
}
