package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (p *PushMCPServer) registerTools() {
	p.server.AddTool(getPushTokenTool(), p.handleGetPushToken)
}

func getPushTokenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_push_token",
		Description: "Return the latest FCM registration token issued for this installation.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (p *PushMCPServer) handleGetPushToken(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	latest, _ := p.snapshot()
	if latest == nil {
		return errorResult(fmt.Sprintf("no push token has been issued yet (state: %s)", p.bridge.State())), nil
	}
	return jsonResult(map[string]any{
		"token":     latest.Token,
		"event_id":  latest.ID.String(),
		"issued_at": latest.IssuedAt,
	})
}
