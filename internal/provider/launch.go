package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dotcommander/capmux/internal/config"
)

// Dialer creates a started-but-uninitialized MCP client.
type Dialer func(ctx context.Context) (*client.Client, error)

// LaunchOptions tune how a provider configuration is turned into a client.
type LaunchOptions struct {
	// NoInheritEnv stops stdio providers from inheriting the environment.
	NoInheritEnv bool
	// Executable is the binary serving builtin providers. Defaults to the
	// running executable.
	Executable string
}

// DialerFor returns the Dialer for a provider configuration.
func DialerFor(name string, cfg config.ProviderConfig, opts LaunchOptions) (Dialer, error) {
	switch cfg.Type {
	case "", config.ProviderStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("provider %q: stdio providers need a command", name)
		}
		return stdioDialer(cfg.Command, cfg.Args, cfg.Env, opts.NoInheritEnv), nil
	case config.ProviderBuiltin:
		exe := opts.Executable
		if exe == "" {
			var err error
			exe, err = os.Executable()
			if err != nil {
				return nil, fmt.Errorf("provider %q: locate executable: %w", name, err)
			}
		}
		builtin := name
		if cfg.Command != "" {
			builtin = cfg.Command
		}
		args := append([]string{"provider", builtin}, cfg.Args...)
		return stdioDialer(exe, args, cfg.Env, opts.NoInheritEnv), nil
	case config.ProviderSSE:
		return func(context.Context) (*client.Client, error) {
			return client.NewSSEMCPClient(cfg.URL)
		}, nil
	case config.ProviderHTTP:
		return func(context.Context) (*client.Client, error) {
			return client.NewStreamableHttpClient(cfg.URL)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %q, supported types are: stdio, sse, http, builtin", cfg.Type)
	}
}

func stdioDialer(command string, args, env []string, noInherit bool) Dialer {
	return func(context.Context) (*client.Client, error) {
		procEnv := env
		if !noInherit {
			procEnv = append(os.Environ(), env...)
		}
		return client.NewStdioMCPClient(command, procEnv, args...)
	}
}

// InProcessDialer serves s from the current process.
func InProcessDialer(s *server.MCPServer) Dialer {
	return func(context.Context) (*client.Client, error) {
		return client.NewInProcessClient(s)
	}
}
