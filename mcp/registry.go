package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/ddellecasedata/sql-mcp/server"
)

// Tool is one domain operation exposed through the protocol. Execute
// returns content blocks on success or an error for tool-level failures;
// the dispatcher rewraps the error as an isError result, never as a
// transport failure.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]Content, error)
}

// Registry is the tool catalog. Adding a tool is a registration, not a
// dispatch branch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its declared name. Registering the same
// name twice is a programming error.
func (r *Registry) Register(tool Tool) error {
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool registered under name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the catalog in registration order
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
