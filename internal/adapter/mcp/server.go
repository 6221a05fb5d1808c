// Package mcp exposes the command registry as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Catalog lists the commands to publish and their parameter schemas.
type Catalog interface {
	Commands() []domain.CommandInfo
	Schema(name string) (*jsonschema.Schema, bool)
}

// Config controls the MCP server.
type Config struct {
	Name    string
	Version string
	// Tenant is the identity every tool call runs as. Stdio sessions have no
	// authentication layer, so it is fixed per process.
	Tenant domain.TenantContext
	// CommandTimeout bounds each tool call; zero means no deadline.
	CommandTimeout time.Duration
	Logger         *slog.Logger
}

// Server serves the registry over an MCP transport.
type Server struct {
	server     *mcp.Server
	dispatcher domain.Dispatcher
	cfg        Config
}

// NewServer registers one tool per catalog command.
func NewServer(catalog Catalog, dispatcher domain.Dispatcher, cfg Config) (*Server, error) {
	if cfg.Tenant.TenantID == "" {
		return nil, domain.Wrap(domain.KindConfiguration, "mcp server requires a tenant id", nil)
	}
	if cfg.Name == "" {
		cfg.Name = "rosterlink"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		server:     mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		dispatcher: dispatcher,
		cfg:        cfg,
	}

	for _, cmd := range catalog.Commands() {
		schema, ok := catalog.Schema(cmd.Name)
		if !ok {
			return nil, domain.Wrap(domain.KindConfiguration, fmt.Sprintf("command %s has no schema", cmd.Name), nil)
		}
		s.server.AddTool(&mcp.Tool{
			Name:        cmd.Name,
			Description: cmd.Description,
			InputSchema: schema,
		}, s.handler(cmd.Name))
	}
	return s, nil
}

// Run serves until the transport closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.cfg.Logger.InfoContext(ctx, "mcp server starting", "tenant_id", s.cfg.Tenant.TenantID, "role", s.cfg.Tenant.Role)
	err := s.server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

// RunStdio serves over the process's stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, err := arguments(req.Params.Arguments)
		if err != nil {
			return errorResult(domain.Envelope{
				Command:   name,
				Error:     err.Error(),
				ErrorKind: domain.KindInvalidParameters,
			})
		}

		if s.cfg.CommandTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
			defer cancel()
		}

		env := s.dispatcher.Dispatch(ctx, s.cfg.Tenant, domain.Command{Name: name, Parameters: params})
		if !env.Success {
			return errorResult(env)
		}
		return result(env, false)
	}
}

func arguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
	}
	return params, nil
}

func errorResult(env domain.Envelope) (*mcp.CallToolResult, error) {
	return result(env, true)
}

func result(env domain.Envelope, isError bool) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: isError,
	}, nil
}
