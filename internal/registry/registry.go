// Package registry binds the ten coordination-tool operations and the
// host-provided tool stubs into a single role-dependent tool surface handed
// to each spawned agent.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/logging"
)

// Property describes a single tool parameter (JSON Schema subset).
type Property struct {
	Type        string
	Description string
	Enum        []any
	Items       *Property
}

// ParameterSchema describes a tool's call signature.
type ParameterSchema struct {
	Type       string
	Properties map[string]Property
	Required   []string
}

// Handler executes a tool call and returns the uniform ToolResult envelope.
// A nil Handler marks a host-provided tool: its contract is registered here
// but the embedding environment executes it.
type Handler func(args map[string]any) coordination.ToolResult

// Definition is one entry in the registry: its LLM-facing schema plus the
// handler that executes it, if any.
type Definition struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	Roles       []domain.AgentRole // empty means visible to every role
	Handler     Handler
}

func (d Definition) visibleTo(role domain.AgentRole) bool {
	if len(d.Roles) == 0 {
		return true
	}
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Registry is a role-filtered view over every registered Definition.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	logger      logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(l) }
}

// New returns a Registry with the ten coordination tools bound to tools and
// the host-tool stubs registered without handlers.
func New(tools *coordination.Tools, opts ...Option) *Registry {
	r := &Registry{definitions: make(map[string]Definition), logger: logging.Nop}
	for _, opt := range opts {
		opt(r)
	}
	r.registerCoordinationTools(tools)
	r.registerHostToolStubs()
	return r
}

func (r *Registry) register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Name]; exists {
		r.logger.Warn("registry: tool %s registered more than once, overwriting", def.Name)
	}
	r.definitions[def.Name] = def
}

// Get returns the Definition for name and whether it was found.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[name]
	return d, ok
}

// ForRole returns every Definition visible to role, sorted by name.
func (r *Registry) ForRole(role domain.AgentRole) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		if d.visibleTo(role) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke looks up name and, if it carries a Handler, calls it with args. A
// registered tool without a Handler (a host tool stub) fails with a message
// naming it as externally implemented, rather than panicking on a nil call.
func (r *Registry) Invoke(name string, args map[string]any) coordination.ToolResult {
	def, ok := r.Get(name)
	if !ok {
		return coordination.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", name)}
	}
	if def.Handler == nil {
		return coordination.ToolResult{Success: false, Error: fmt.Sprintf("tool %q has no in-module implementation; host must handle it", name)}
	}
	return def.Handler(args)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (r *Registry) registerCoordinationTools(t *coordination.Tools) {
	r.register(Definition{
		Name: "listAgents", Description: "List every agent in a workspace.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"workspaceId": {Type: "string", Description: "Workspace to list agents for."},
		}, Required: []string{"workspaceId"}},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.ListAgents(stringArg(a, "workspaceId"))
		},
	})

	r.register(Definition{
		Name: "readAgentConversation", Description: "Read an agent's conversation, optionally filtered.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"agentId":          {Type: "string"},
			"lastN":            {Type: "integer"},
			"startTurn":        {Type: "integer"},
			"endTurn":          {Type: "integer"},
			"includeToolCalls": {Type: "boolean"},
		}, Required: []string{"agentId"}},
		Handler: func(a map[string]any) coordination.ToolResult {
			filter := coordination.ReadConversationFilter{
				LastN: intArg(a, "lastN"), StartTurn: intArg(a, "startTurn"),
				EndTurn: intArg(a, "endTurn"), IncludeToolCalls: boolArg(a, "includeToolCalls"),
			}
			return t.ReadAgentConversation(stringArg(a, "agentId"), filter)
		},
	})

	r.register(Definition{
		Name: "createAgent", Description: "Create a new agent under a role and parent.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"name": {Type: "string"}, "role": {Type: "string", Enum: []any{"Coordinator", "Implementor", "Verifier"}},
			"workspaceId": {Type: "string"}, "parentId": {Type: "string"}, "modelTier": {Type: "string"},
		}, Required: []string{"name", "role", "workspaceId"}},
		Roles: []domain.AgentRole{domain.RoleCoordinator},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.CreateAgent(stringArg(a, "name"), domain.AgentRole(stringArg(a, "role")),
				stringArg(a, "workspaceId"), stringArg(a, "parentId"), domain.ModelTier(stringArg(a, "modelTier")))
		},
	})

	r.register(Definition{
		Name: "delegate", Description: "Assign a task to an agent, marking it InProgress/Active.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"agentId": {Type: "string"}, "taskId": {Type: "string"}, "callerAgentId": {Type: "string"},
		}, Required: []string{"agentId", "taskId", "callerAgentId"}},
		Roles: []domain.AgentRole{domain.RoleCoordinator},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.Delegate(stringArg(a, "agentId"), stringArg(a, "taskId"), stringArg(a, "callerAgentId"))
		},
	})

	r.register(Definition{
		Name: "messageAgent", Description: "Append a tagged message to another agent's conversation.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"fromAgentId": {Type: "string"}, "toAgentId": {Type: "string"}, "message": {Type: "string"},
		}, Required: []string{"fromAgentId", "toAgentId", "message"}},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.MessageAgent(stringArg(a, "fromAgentId"), stringArg(a, "toAgentId"), stringArg(a, "message"))
		},
	})

	r.register(Definition{
		Name: "reportToParent", Description: "Report completion to the caller's parent and update task status.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"agentId": {Type: "string"}, "taskId": {Type: "string"}, "summary": {Type: "string"}, "success": {Type: "boolean"},
		}, Required: []string{"agentId", "summary", "success"}},
		Roles: []domain.AgentRole{domain.RoleImplementor, domain.RoleVerifier},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.ReportToParent(stringArg(a, "agentId"), domain.CompletionReport{
				TaskID: stringArg(a, "taskId"), Summary: stringArg(a, "summary"), Success: boolArg(a, "success"),
			})
		},
	})

	r.register(Definition{
		Name: "wakeOrCreateTaskAgent", Description: "Wake a task's existing assignee or create and delegate a new one.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"taskId": {Type: "string"}, "contextMessage": {Type: "string"}, "callerAgentId": {Type: "string"},
			"workspaceId": {Type: "string"}, "agentName": {Type: "string"}, "modelTier": {Type: "string"},
		}, Required: []string{"taskId", "contextMessage", "callerAgentId", "workspaceId"}},
		Roles: []domain.AgentRole{domain.RoleCoordinator},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.WakeOrCreateTaskAgent(stringArg(a, "taskId"), stringArg(a, "contextMessage"),
				stringArg(a, "callerAgentId"), stringArg(a, "workspaceId"), stringArg(a, "agentName"),
				domain.ModelTier(stringArg(a, "modelTier")))
		},
	})

	r.register(Definition{
		Name: "sendMessageToTaskAgent", Description: "Send a message to a task's already-assigned agent.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{
			"taskId": {Type: "string"}, "message": {Type: "string"}, "callerAgentId": {Type: "string"},
		}, Required: []string{"taskId", "message", "callerAgentId"}},
		Roles: []domain.AgentRole{domain.RoleCoordinator},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.SendMessageToTaskAgent(stringArg(a, "taskId"), stringArg(a, "message"), stringArg(a, "callerAgentId"))
		},
	})

	r.register(Definition{
		Name: "getAgentStatus", Description: "Get an agent's current status.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"agentId": {Type: "string"}}, Required: []string{"agentId"}},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.GetAgentStatus(stringArg(a, "agentId"))
		},
	})

	r.register(Definition{
		Name: "getAgentSummary", Description: "Get an agent's role, status, and conversation length.",
		Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"agentId": {Type: "string"}}, Required: []string{"agentId"}},
		Handler: func(a map[string]any) coordination.ToolResult {
			return t.GetAgentSummary(stringArg(a, "agentId"))
		},
	})
}

// registerHostToolStubs registers the host-provided tool surface with no
// Handler: the host process answers these calls, not this module.
func (r *Registry) registerHostToolStubs() {
	stubs := []Definition{
		{Name: "readFile", Description: "Read a file's contents from the host workspace.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}}, Required: []string{"path"}}},
		{Name: "writeFile", Description: "Write a file's contents in the host workspace.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}, "content": {Type: "string"}}, Required: []string{"path", "content"}}},
		{Name: "listFiles", Description: "List files under a directory in the host workspace.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}}, Required: []string{"path"}}},
		{Name: "reformatFile", Description: "Reformat a file using the host's configured formatter.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}}, Required: []string{"path"}}},
		{Name: "openFile", Description: "Open a file tab in the host editor.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}}, Required: []string{"path"}}},
		{Name: "openFiles", Description: "Open multiple file tabs in the host editor.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"paths": {Type: "array", Items: &Property{Type: "string"}}}, Required: []string{"paths"}}},
		{Name: "closeTab", Description: "Close an open tab in the host editor.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}}, Required: []string{"path"}}},
		{Name: "listOpenFiles", Description: "List currently open tabs in the host editor."},
		{Name: "openDiff", Description: "Open an accept/reject diff view in the host editor.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}, "before": {Type: "string"}, "after": {Type: "string"}}, Required: []string{"path", "before", "after"}}},
		{Name: "getDiagnostics", Description: "Get host-reported diagnostics, optionally filtered by severity.",
			Parameters: ParameterSchema{Type: "object", Properties: map[string]Property{"path": {Type: "string"}, "severity": {Type: "string"}}}},
	}
	for _, s := range stubs {
		r.register(s)
	}
}
