package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/slush-dev/pushbridge"
)

// statusURI is the resource describing the bridge and the latest token.
const statusURI = "pushbridge://status"

// StateSource reports the bridge registration state.
type StateSource interface {
	State() pushbridge.State
}

// PushMCPServer exposes the push registration state to MCP clients. It is a
// subscriber of the registration event bus.
type PushMCPServer struct {
	server *mcp.Server
	bridge StateSource
	logger *slog.Logger

	mu       sync.RWMutex
	latest   *pushbridge.RegistrationEvent
	received int
}

// New creates a PushMCPServer.
func New(bridge StateSource, version string, logger *slog.Logger) *PushMCPServer {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "pushbridge",
		Version: version,
	}, &mcp.ServerOptions{
		SubscribeHandler:   func(context.Context, *mcp.SubscribeRequest) error { return nil },
		UnsubscribeHandler: func(context.Context, *mcp.UnsubscribeRequest) error { return nil },
	})

	p := &PushMCPServer{
		server: s,
		bridge: bridge,
		logger: logger,
	}
	p.registerResources()
	p.registerTools()
	return p
}

// Run starts the MCP server on stdio and blocks until done.
func (p *PushMCPServer) Run(ctx context.Context) error {
	return p.server.Run(ctx, &mcp.StdioTransport{})
}

// RunWithTransport starts the MCP server on a custom transport (for testing).
func (p *PushMCPServer) RunWithTransport(ctx context.Context, t mcp.Transport) error {
	_, err := p.server.Connect(ctx, t, nil)
	return err
}

// Watch records registration events until events is closed or ctx is done.
func (p *PushMCPServer) Watch(ctx context.Context, events <-chan pushbridge.RegistrationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.record(ev)
			p.logger.Debug("registration event recorded", "event_id", ev.ID)
			p.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: statusURI})
		}
	}
}

func (p *PushMCPServer) record(ev pushbridge.RegistrationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &ev
	p.received++
}

func (p *PushMCPServer) snapshot() (*pushbridge.RegistrationEvent, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return nil, p.received
	}
	ev := *p.latest
	return &ev, p.received
}

// jsonResult marshals v to JSON and returns it as a text CallToolResult.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}

// errorResult returns a CallToolResult with IsError=true.
func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
