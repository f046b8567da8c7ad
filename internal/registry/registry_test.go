package registry

import (
	"testing"

	"github.com/arcway-dev/orchestra/internal/coordination"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/eventbus"
	"github.com/arcway-dev/orchestra/internal/store"
)

func newTestRegistry() (*Registry, *coordination.Tools) {
	agents := store.NewAgentStore()
	tasks := store.NewTaskStore()
	convs := store.NewConversationStore()
	bus := eventbus.New(16)
	tools := coordination.New(agents, tasks, convs, bus)
	return New(tools), tools
}

func TestForRoleFiltersByRegisteredRoles(t *testing.T) {
	r, _ := newTestRegistry()

	coordTools := r.ForRole(domain.RoleCoordinator)
	names := map[string]bool{}
	for _, d := range coordTools {
		names[d.Name] = true
	}
	if !names["delegate"] || !names["createAgent"] {
		t.Fatalf("expected Coordinator to see delegate/createAgent, got %v", names)
	}

	implTools := r.ForRole(domain.RoleImplementor)
	for _, d := range implTools {
		if d.Name == "delegate" {
			t.Fatalf("expected Implementor to not see delegate (Coordinator-only tool)")
		}
	}
}

func TestInvokeDispatchesToBoundHandler(t *testing.T) {
	r, _ := newTestRegistry()

	result := r.Invoke("createAgent", map[string]any{
		"name": "impl-1", "role": "Implementor", "workspaceId": "w1",
	})
	if !result.Success {
		t.Fatalf("expected createAgent to succeed, got %+v", result)
	}
	if _, ok := result.Data["agentId"]; !ok {
		t.Fatalf("expected agentId in result data, got %+v", result.Data)
	}
}

func TestInvokeUnknownToolFails(t *testing.T) {
	r, _ := newTestRegistry()
	result := r.Invoke("doesNotExist", nil)
	if result.Success {
		t.Fatalf("expected failure for unknown tool")
	}
}

func TestInvokeHostToolStubFailsWithoutPanicking(t *testing.T) {
	r, _ := newTestRegistry()
	result := r.Invoke("readFile", map[string]any{"path": "/tmp/x"})
	if result.Success {
		t.Fatalf("expected host tool stub to fail (no in-module implementation)")
	}
}

func TestListOpenFilesHasNoRequiredParameters(t *testing.T) {
	r, _ := newTestRegistry()
	def, ok := r.Get("listOpenFiles")
	if !ok {
		t.Fatalf("expected listOpenFiles to be registered")
	}
	if len(def.Parameters.Required) != 0 {
		t.Fatalf("expected no required parameters, got %v", def.Parameters.Required)
	}
	if def.Handler != nil {
		t.Fatalf("expected host tool stub to carry no handler")
	}
}
