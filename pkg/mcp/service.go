package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
)

// ServiceType is the registry key for the MCP connection service.
const ServiceType = "mcp"

// Service owns the connections to the configured MCP servers. It
// implements core.Service so the runtime manages its lifecycle; Actions
// exposes every discovered tool as a runtime action.
type Service struct {
	servers    []config.MCPServerConfig
	logger     *slog.Logger
	clientOpts []ClientOption

	mu      sync.Mutex
	clients map[string]*Client
}

// ServiceOption configures the MCP service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClientOptions passes options to every server client.
func WithClientOptions(opts ...ClientOption) ServiceOption {
	return func(s *Service) { s.clientOpts = opts }
}

// NewService creates the MCP service for the configured servers.
func NewService(servers []config.MCPServerConfig, opts ...ServiceOption) *Service {
	s := &Service{
		servers: servers,
		logger:  slog.Default(),
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type implements core.Service.
func (s *Service) Type() string { return ServiceType }

// Start connects to every configured server. A server that cannot be
// reached aborts startup; partial connections are closed.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, server := range s.servers {
		client, err := s.connect(server)
		if err != nil {
			s.closeAllLocked()
			return errors.New(errors.CodePluginError, "mcp server connect failed", err).
				WithContext("server", server.Name)
		}
		s.clients[server.Name] = client
		s.logger.Info("mcp.server.connected", "server", server.Name)
	}
	return nil
}

// Stop closes every server connection.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAllLocked()
	return nil
}

// Client returns the connection for a configured server name.
func (s *Service) Client(name string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[name]
	return c, ok
}

// Actions discovers the tools on every connected server and wraps each
// one as a runtime action. Call after Start.
func (s *Service) Actions(ctx context.Context) ([]*core.Action, error) {
	s.mu.Lock()
	clients := make(map[string]*Client, len(s.clients))
	for name, c := range s.clients {
		clients[name] = c
	}
	s.mu.Unlock()

	var actions []*core.Action
	for name, client := range clients {
		tools, err := client.ListTools(ctx)
		if err != nil {
			return nil, errors.New(errors.CodePluginError, "mcp tool discovery failed", err).
				WithContext("server", name)
		}
		for _, tool := range tools {
			action, err := ToolAction(tool, client)
			if err != nil {
				s.logger.Warn("mcp.tool.skip",
					"server", name, "tool", tool.Name, "error", err)
				continue
			}
			actions = append(actions, action)
		}
		s.logger.Info("mcp.tools.discovered", "server", name, "tools", len(tools))
	}
	return actions, nil
}

func (s *Service) connect(server config.MCPServerConfig) (*Client, error) {
	if server.Command != "" {
		return NewClientWithStdio(server.Command, server.Args, s.clientOpts...)
	}
	if server.URL != "" {
		return NewClientWithHTTP(server.URL, s.clientOpts...)
	}
	return nil, errors.Newf(errors.CodeInvalidInput, "mcp server %q needs a command or url", server.Name)
}

func (s *Service) closeAllLocked() {
	for name, client := range s.clients {
		if err := client.Close(); err != nil {
			s.logger.Warn("mcp.server.close.error", "server", name, "error", err)
		}
		delete(s.clients, name)
	}
}
