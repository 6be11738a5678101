package tool

import (
	"context"
	"fmt"
)

// ClientTool is a tool with no server-side executor: invoking it is the
// executor's signal to yield ToolRequestStatus to the caller, who is
// responsible for performing the action out of band and submitting a
// ToolResult. Run is never actually called by the executor for a
// ClientTool, but is implemented to satisfy the Tool interface and to give
// a clear error if misused.
type ClientTool struct {
	Def Definition
}

// NewClientTool builds a ClientTool, defaulting Kind to KindClient.
func NewClientTool(def Definition) *ClientTool {
	def.Kind = KindClient
	return &ClientTool{Def: def}
}

func (t *ClientTool) Definition() Definition { return t.Def }

func (t *ClientTool) Run(ctx context.Context, args map[string]any) (any, error) {
	return nil, fmt.Errorf("client tool %q has no server-side executor; the executor must yield ToolRequestStatus instead of calling Run", t.Def.Name)
}
