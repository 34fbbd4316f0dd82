package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"imagent/pkg/artifact"
	"imagent/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ToolID is the closed set of tools the agent knows about.
type ToolID int

const (
	GenerateImage ToolID = iota + 1
	EditImage
)

var toolNames = map[ToolID]string{
	GenerateImage: "generate_image",
	EditImage:     "edit_image",
}

func (id ToolID) String() string {
	if name, ok := toolNames[id]; ok {
		return name
	}
	return "unknown"
}

// ParseToolID resolves a model-supplied tool name. Some providers prefix
// names with "functions.".
func ParseToolID(name string) (ToolID, bool) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "functions.")
	for id, n := range toolNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// Env is what a tool invocation may touch besides its arguments.
type Env struct {
	SessionID string
	Artifacts *artifact.Cache
}

// Tool defines a capability the agent can execute. Execute never returns a
// Go error; failures are carried in Result.Err.
type Tool interface {
	llm.Tool
	ID() ToolID
	Execute(ctx context.Context, env Env, args map[string]any) Result
}

// Registry acts as a central inventory for all tools available to the Agent.
type Registry struct {
	mu    sync.RWMutex    // Protects concurrent access to the tools map
	tools map[ToolID]Tool // Internal map of tool id to implementation
}

// NewRegistry creates a new tool registry
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[ToolID]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry, replacing any tool with the same id
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.ID()] = tool
}

// Get retrieves a tool by id
func (r *Registry) Get(id ToolID) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// Lookup resolves a model-supplied name to a registered tool
func (r *Registry) Lookup(name string) (Tool, bool) {
	id, ok := ParseToolID(name)
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// All returns all registered tools ordered by id
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// Schemas returns the tool set in the form the chat model clients accept
func (r *Registry) Schemas() []llm.Tool {
	all := r.All()
	out := make([]llm.Tool, len(all))
	for i, t := range all {
		out[i] = t
	}
	return out
}
