package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddellecasedata/sql-mcp/server"
)

type namedTool struct{ name string }

func (tl namedTool) Definition() ToolDefinition {
	return ToolDefinition{Name: tl.name, Description: "test tool", InputSchema: map[string]any{"type": "object"}}
}

func (tl namedTool) Execute(ctx context.Context, args map[string]any, auth *server.AuthContext) ([]Content, error) {
	return []Content{TextContent(tl.name)}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Len())

	require.NoError(t, r.Register(namedTool{name: "alpha"}))
	require.NoError(t, r.Register(namedTool{name: "beta"}))

	tool, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", tool.Definition().Name)

	_, ok = r.Get("gamma")
	assert.False(t, ok)

	// Catalog preserves registration order
	defs := r.List()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "beta", defs[1].Name)
}

func TestRegistry_RejectsDuplicatesAndAnonymous(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(namedTool{name: "alpha"}))
	assert.Error(t, r.Register(namedTool{name: "alpha"}))
	assert.Error(t, r.Register(namedTool{name: ""}))
	assert.Equal(t, 1, r.Len())
}
