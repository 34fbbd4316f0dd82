package gemini

import (
	"errors"
	"testing"

	"imagent/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type schemaTool struct{}

func (schemaTool) Name() string        { return "generate_image" }
func (schemaTool) Description() string { return "draw" }
func (schemaTool) Parameters() map[string]any {
	return map[string]any{"prompt": map[string]any{"type": "string"}}
}
func (schemaTool) RequiredParameters() []string { return []string{"prompt"} }

func TestConvertMessages(t *testing.T) {
	g := &GeminiClient{model: "gemini-test"}

	call := llm.ToolCall{
		ID:       "call_1",
		Name:     "generate_image",
		Function: llm.FunctionCall{Name: "generate_image", Arguments: `{"prompt":"cat"}`},
	}
	assistant := llm.NewAssistantMessage("")
	assistant.ToolCalls = []llm.ToolCall{call}

	contents, sys := g.convertMessages([]llm.Message{
		llm.NewSystemMessage("be helpful"),
		llm.NewUserMessage("画一只猫"),
		assistant,
		llm.NewToolResultMessage(call, `{"status":"ok"}`),
	})

	require.NotNil(t, sys)
	assert.Equal(t, "be helpful", sys.Parts[0].Text)
	require.Len(t, contents, 3)

	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "画一只猫", contents[0].Parts[0].Text)

	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "call_1", contents[1].Parts[0].FunctionCall.ID)
	assert.Equal(t, "cat", contents[1].Parts[0].FunctionCall.Args["prompt"])

	resp := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "call_1", resp.ID)
	assert.Equal(t, "generate_image", resp.Name)
	assert.Equal(t, `{"status":"ok"}`, resp.Response["result"])
}

func TestConvertMessagesReusesOriginalCall(t *testing.T) {
	g := &GeminiClient{}
	original := &genai.FunctionCall{ID: "fc-1", Name: "edit_image", Args: map[string]any{"prompt": "blue"}}

	assistant := llm.NewAssistantMessage("")
	assistant.ToolCalls = []llm.ToolCall{{
		ID:       "fc-1",
		Function: llm.FunctionCall{Name: "edit_image", Arguments: `{}`},
		Meta:     map[string]any{"gemini_function_call": original},
	}}

	contents, _ := g.convertMessages([]llm.Message{assistant})
	require.Len(t, contents, 1)
	assert.Same(t, original, contents[0].Parts[0].FunctionCall)
}

func TestConvertTools(t *testing.T) {
	g := &GeminiClient{}
	assert.Nil(t, g.convertTools(nil))

	tools := g.convertTools([]llm.Tool{schemaTool{}})
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 1)
	fd := tools[0].FunctionDeclarations[0]
	assert.Equal(t, "generate_image", fd.Name)
	require.NotNil(t, fd.Parameters)
	assert.Equal(t, []string{"prompt"}, fd.Parameters.Required)
}

func TestNormalizeStopReason(t *testing.T) {
	assert.Equal(t, llm.StopReasonStop, normalizeStopReason("STOP"))
	assert.Equal(t, llm.StopReasonLength, normalizeStopReason("MAX_TOKENS"))
	assert.Equal(t, "safety", normalizeStopReason("SAFETY"))
}

func TestIsTransientError(t *testing.T) {
	g := &GeminiClient{}
	assert.True(t, g.IsTransientError(errors.New("Error 503, model overloaded")))
	assert.True(t, g.IsTransientError(errors.New("429 RESOURCE EXHAUSTED")))
	assert.False(t, g.IsTransientError(errors.New("400 invalid argument")))
	assert.False(t, g.IsTransientError(nil))
}
