package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (p *PushMCPServer) registerResources() {
	p.server.AddResource(&mcp.Resource{
		URI:         statusURI,
		Name:        "Push Registration Status",
		Description: "Bridge state and the latest backend registration token",
		MIMEType:    "application/json",
	}, p.handleStatusResource)
}

func (p *PushMCPServer) handleStatusResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	latest, received := p.snapshot()

	status := map[string]any{
		"state":           p.bridge.State().String(),
		"has_token":       latest != nil && latest.Token != "",
		"events_received": received,
	}
	if latest != nil {
		status["token"] = latest.Token
		status["issued_at"] = latest.IssuedAt
	}
	return jsonResource(req.Params.URI, status)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
