// Package provider connects to a single capability provider over MCP.
package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/errs"
)

// State is the transport state of a Handle.
type State int

// States.
const (
	Connecting State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	clientName    = "capmux"
	clientVersion = "1.0.0"
	stderrTail    = 5
)

var (
	errCallTimeout    = errors.New("call timed out")
	errConnectionLost = errors.New("connection lost")
)

// Handle is a connection to one capability provider.
type Handle struct {
	id      string
	dial    Dialer
	timeout time.Duration
	logger  *slog.Logger

	mu          sync.RWMutex
	state       State
	cli         *client.Client
	caps        mcp.ServerCapabilities
	descriptors []capability.Descriptor
	byName      map[string]capability.Descriptor
	lifetime    context.Context
	cancelLife  context.CancelFunc
	closing     bool
	closeErr    error
	stderr      []string
	onClose     []func(id string)
}

// Option configures a Handle.
type Option func(*Handle)

// WithTimeout bounds connect, discovery and every invocation.
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) { h.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) { h.logger = l }
}

// New creates a handle that connects through dial.
func New(id string, dial Dialer, opts ...Option) *Handle {
	h := &Handle{
		id:      id,
		dial:    dial,
		timeout: 15 * time.Second,
		state:   Connecting,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "provider", "provider", id)
	return h
}

// ID returns the provider id.
func (h *Handle) ID() string { return h.id }

// State returns the current transport state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// OnClose registers fn to run once the handle transitions to Closed. On a
// handle that is already Closed fn runs immediately.
func (h *Handle) OnClose(fn func(id string)) {
	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		fn(h.id)
		return
	}
	h.onClose = append(h.onClose, fn)
	h.mu.Unlock()
}

// Connect starts the provider and performs the MCP handshake.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cli != nil {
		return fmt.Errorf("provider %s: %w", h.id, errs.ErrAlreadyConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.state = Connecting
	h.closing = false
	h.closeErr = nil
	h.stderr = nil
	h.descriptors = nil
	h.byName = nil

	cli, err := h.dial(ctx)
	if err != nil {
		h.state = Closed
		return fmt.Errorf("%w: provider %s: failed to create MCP client: %w", errs.ErrConnection, h.id, err)
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		h.state = Closed
		return fmt.Errorf("%w: provider %s: failed to start MCP client: %w", errs.ErrConnection, h.id, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	res, err := cli.Initialize(ctx, req)
	if err != nil {
		_ = cli.Close()
		h.state = Closed
		return fmt.Errorf("%w: provider %s: failed to initialize MCP client: %w", errs.ErrConnection, h.id, err)
	}

	h.cli = cli
	h.caps = res.Capabilities
	h.lifetime, h.cancelLife = context.WithCancel(context.Background())
	cli.OnConnectionLost(func(err error) {
		h.lost(fmt.Errorf("%w: %w", errConnectionLost, err))
	})
	if stderr, ok := client.GetStderr(cli); ok && stderr != nil {
		go h.watchStderr(cli, stderr)
	}

	h.logger.Debug("connected", "server", res.ServerInfo.Name, "protocol", res.ProtocolVersion)
	return nil
}

// watchStderr logs the provider's stderr and treats EOF as process exit.
func (h *Handle) watchStderr(cli *client.Client, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		h.logger.Debug("stderr", "line", line)
		h.mu.Lock()
		h.stderr = append(h.stderr, line)
		if len(h.stderr) > stderrTail {
			h.stderr = h.stderr[len(h.stderr)-stderrTail:]
		}
		h.mu.Unlock()
	}

	h.mu.RLock()
	current := h.cli == cli && !h.closing
	tail := strings.Join(h.stderr, "\n")
	h.mu.RUnlock()
	if !current {
		return
	}
	if tail != "" {
		h.lost(fmt.Errorf("provider process exited: %s", tail))
		return
	}
	h.lost(errors.New("provider process exited"))
}

// Discover lists the provider's tools and prompt templates.
func (h *Handle) Discover(ctx context.Context) ([]capability.Descriptor, error) {
	cli, caps, err := h.client()
	if err != nil {
		return nil, err
	}

	callCtx, done := h.callContext(ctx)
	defer done()

	var found []capability.Descriptor
	if caps.Tools != nil || caps.Prompts == nil {
		res, err := cli.ListTools(callCtx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrDiscovery, h.fault(ctx, callCtx, "list tools", err))
		}
		for _, tool := range res.Tools {
			found = append(found, capability.FromTool(tool))
		}
	}
	if caps.Prompts != nil {
		res, err := cli.ListPrompts(callCtx, mcp.ListPromptsRequest{})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrDiscovery, h.fault(ctx, callCtx, "list prompts", err))
		}
		for _, prompt := range res.Prompts {
			found = append(found, capability.FromPrompt(prompt))
		}
	}

	byName := make(map[string]capability.Descriptor, len(found))
	for _, d := range found {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: provider %s publishes %q twice", errs.ErrDiscovery, h.id, d.Name)
		}
		byName[d.Name] = d
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cli != cli || h.state == Closed {
		return nil, h.closedErr()
	}
	h.descriptors = found
	h.byName = byName
	h.state = Ready
	h.logger.Debug("discovered", "capabilities", len(found))
	return append([]capability.Descriptor(nil), found...), nil
}

// Descriptors returns the result of the last discovery.
func (h *Handle) Descriptors() []capability.Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]capability.Descriptor(nil), h.descriptors...)
}

// Invoke calls a tool or renders a prompt template and returns its text.
func (h *Handle) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	cli, _, err := h.client()
	if err != nil {
		return "", err
	}
	h.mu.RLock()
	desc, ok := h.byName[name]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q is not published by provider %s", errs.ErrUnknownCapability, name, h.id)
	}
	if missing := desc.Missing(args); len(missing) > 0 {
		return "", fmt.Errorf("%w: %s requires %s", errs.ErrInvalidArguments, name, strings.Join(missing, ", "))
	}

	callCtx, done := h.callContext(ctx)
	defer done()

	start := time.Now()
	var text string
	switch desc.Kind {
	case capability.Prompt:
		text, err = h.getPrompt(callCtx, cli, name, args)
	default:
		text, err = h.callTool(callCtx, cli, name, args)
	}
	if err != nil {
		err = h.fault(ctx, callCtx, name, err)
		h.logger.Debug("invoke failed", "capability", name, "took", time.Since(start), "err", err)
		return "", err
	}
	h.logger.Debug("invoked", "capability", name, "took", time.Since(start))
	return text, nil
}

func (h *Handle) callTool(ctx context.Context, cli *client.Client, name string, args map[string]any) (string, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		return "", err
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", providerError{msg: text}
	}
	return text, nil
}

func (h *Handle) getPrompt(ctx context.Context, cli *client.Client, name string, args map[string]any) (string, error) {
	request := mcp.GetPromptRequest{}
	request.Params.Name = name
	request.Params.Arguments = make(map[string]string, len(args))
	for k, v := range args {
		request.Params.Arguments[k] = stringify(v)
	}
	result, err := cli.GetPrompt(ctx, request)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(result.Messages))
	for _, msg := range result.Messages {
		parts = append(parts, contentText([]mcp.Content{msg.Content}))
	}
	return strings.Join(parts, "\n"), nil
}

// Ping checks that the provider still answers.
func (h *Handle) Ping(ctx context.Context) error {
	cli, _, err := h.client()
	if err != nil {
		return err
	}
	callCtx, done := h.callContext(ctx)
	defer done()
	if err := cli.Ping(callCtx); err != nil {
		return h.fault(ctx, callCtx, "ping", err)
	}
	return nil
}

// Close releases the transport. Later calls fail with errs.ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	cli := h.cli
	if cli == nil {
		h.state = Closed
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	h.cli = nil
	h.state = Closed
	h.cancelLife()
	hooks := h.onClose
	h.mu.Unlock()

	err := cli.Close()
	h.logger.Debug("closed")
	for _, fn := range hooks {
		fn(h.id)
	}
	if err != nil {
		return fmt.Errorf("provider %s: close: %w", h.id, err)
	}
	return nil
}

// lost marks the handle Closed after a transport failure.
func (h *Handle) lost(cause error) {
	h.mu.Lock()
	if h.state == Closed || h.closing || h.cli == nil {
		h.mu.Unlock()
		return
	}
	cli := h.cli
	h.cli = nil
	h.state = Closed
	h.closeErr = cause
	h.cancelLife()
	hooks := h.onClose
	h.mu.Unlock()

	h.logger.Warn("provider lost", "err", cause)
	go func() { _ = cli.Close() }()
	for _, fn := range hooks {
		fn(h.id)
	}
}

func (h *Handle) client() (*client.Client, mcp.ServerCapabilities, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state == Closed {
		return nil, mcp.ServerCapabilities{}, h.closedErr()
	}
	if h.cli == nil {
		return nil, mcp.ServerCapabilities{}, fmt.Errorf("%w: provider %s is not connected", errs.ErrConnection, h.id)
	}
	return h.cli, h.caps, nil
}

// closedErr must be called with h.mu held.
func (h *Handle) closedErr() error {
	if h.closeErr != nil {
		return fmt.Errorf("%w: %w: provider %s: %w", errs.ErrProviderFault, errs.ErrClosed, h.id, h.closeErr)
	}
	return fmt.Errorf("provider %s: %w", h.id, errs.ErrClosed)
}

// callContext derives a bounded context that is also cancelled when the
// connection is lost.
func (h *Handle) callContext(ctx context.Context) (context.Context, func()) {
	h.mu.RLock()
	lifetime := h.lifetime
	h.mu.RUnlock()

	timeoutCtx, cancelTimeout := context.WithTimeoutCause(ctx, h.timeout, errCallTimeout)
	callCtx, cancel := context.WithCancelCause(timeoutCtx)
	stop := func() bool { return false }
	if lifetime != nil {
		stop = context.AfterFunc(lifetime, func() { cancel(errConnectionLost) })
	}
	return callCtx, func() {
		stop()
		cancel(nil)
		cancelTimeout()
	}
}

// fault classifies an error returned by the MCP client.
func (h *Handle) fault(parent, callCtx context.Context, op string, err error) error {
	var perr providerError
	switch {
	case errors.As(err, &perr):
		return fmt.Errorf("%w: %s: %s", errs.ErrProviderFault, op, perr.msg)
	case errors.Is(context.Cause(callCtx), errConnectionLost):
		h.mu.RLock()
		defer h.mu.RUnlock()
		return fmt.Errorf("%s: %w", op, h.closedErr())
	case parent.Err() != nil:
		return fmt.Errorf("%s: %w", op, parent.Err())
	case errors.Is(context.Cause(callCtx), errCallTimeout):
		return fmt.Errorf("%w: provider %s: %s: no response after %s", errs.ErrTimeout, h.id, op, h.timeout)
	}

	var terr *transport.Error
	if errors.As(err, &terr) {
		h.lost(err)
		return fmt.Errorf("%w: provider %s: %s: %w", errs.ErrProviderFault, h.id, op, err)
	}
	return fmt.Errorf("%w: provider %s: %s: %w", errs.ErrProviderFault, h.id, op, err)
}

type providerError struct{ msg string }

func (e providerError) Error() string { return e.msg }

func contentText(contents []mcp.Content) string {
	var sb strings.Builder
	for _, content := range contents {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		case *mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	return sb.String()
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		bts, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(bts)
	}
}
