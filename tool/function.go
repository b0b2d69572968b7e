package tool

import (
	"context"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/internal/util"
)

// funcTool adapts a plain function plus a schema into a Tool. It carries no
// mutable state after construction and is safe for concurrent use.
type funcTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error)
}

// newFuncTool builds a tool whose parameter schema is derived from the
// argument struct via reflection (json, description and enum tags).
func newFuncTool(
	name, description string,
	argsStruct any,
	fn func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error),
) Tool {
	return &funcTool{
		name:        name,
		description: description,
		parameters:  util.CreateSchema(argsStruct),
		fn:          fn,
	}
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Parameters() map[string]any { return t.parameters }

func (t *funcTool) Execute(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
	return t.fn(ctx, tc, args)
}

// argString reads an optional string argument, defaulting to "".
func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argInt reads an optional integer argument that JSON decoding delivers as
// float64, defaulting to def.
func argInt(args map[string]any, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// argBool reads an optional boolean argument, defaulting to def.
func argBool(args map[string]any, key string, def bool) bool {
	b, ok := args[key].(bool)
	if !ok {
		return def
	}
	return b
}
