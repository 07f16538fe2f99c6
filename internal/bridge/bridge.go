// Package bridge turns registered capabilities into functions a reasoning
// service can select, and dispatches its selections.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/registry"
)

// Registry is the read side of the capability registry.
type Registry interface {
	Resolve(name string) (registry.Provider, capability.Descriptor, error)
	List() iter.Seq[capability.Descriptor]
}

// Bridge validates and dispatches function calls.
type Bridge struct {
	reg     Registry
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// New creates a bridge over reg.
func New(reg Registry, opts ...Option) *Bridge {
	b := &Bridge{reg: reg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// DescribeAll returns every registered capability in registry order.
func (b *Bridge) DescribeAll() []capability.Descriptor {
	return slices.Collect(b.reg.List())
}

// Dispatch runs call and returns the function result turn. The turn is
// returned on failure too, carrying a readable error and IsError set, so
// the conversation can continue; the error tells the caller what happened.
func (b *Bridge) Dispatch(ctx context.Context, call proto.ToolCall) (proto.Message, error) {
	start := b.now()
	text, err := b.dispatch(ctx, call)
	b.metrics.observe(call.Function.Name, b.now().Sub(start), err)

	result := call
	msg := proto.Message{
		Role:     proto.RoleFunctionResult,
		Content:  text,
		Time:     b.now(),
		ToolCall: &result,
	}
	if err != nil {
		result.IsError = true
		msg.Content = "Error: " + err.Error()
		b.logger.Warn("dispatch failed", "capability", call.Function.Name, "err", err)
		return msg, err
	}
	b.logger.Debug("dispatched", "capability", call.Function.Name, "took", b.now().Sub(start))
	return msg, nil
}

func (b *Bridge) dispatch(ctx context.Context, call proto.ToolCall) (string, error) {
	name := call.Function.Name
	p, desc, err := b.reg.Resolve(name)
	if err != nil {
		return "", err
	}
	args, err := DecodeArguments(desc, call.Function.Arguments)
	if err != nil {
		return "", err
	}
	return p.Invoke(ctx, name, args)
}

// DecodeArguments parses raw JSON arguments and checks them against the
// descriptor's parameter schema.
func DecodeArguments(desc capability.Descriptor, raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrMalformedArguments, desc.Name, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: %s: trailing data after arguments", errs.ErrMalformedArguments, desc.Name)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: arguments must be a JSON object", errs.ErrMalformedArguments, desc.Name)
	}

	if missing := desc.Missing(args); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s requires %s", errs.ErrInvalidArguments, desc.Name, strings.Join(missing, ", "))
	}

	schema, err := compileSchema(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: compile parameter schema: %w", errs.ErrProviderFault, desc.Name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s: %s", errs.ErrMalformedArguments, desc.Name, leafMessage(verr))
		}
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrMalformedArguments, desc.Name, err)
	}

	for k, v := range args {
		args[k] = plain(v)
	}
	return args, nil
}

var schemaCache sync.Map

func compileSchema(desc capability.Descriptor) (*jsonschema.Schema, error) {
	bts, err := json.Marshal(desc.InputSchema())
	if err != nil {
		return nil, err
	}
	key := desc.Name + "\x00" + string(bts)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(desc.Name+".schema.json", string(bts))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// leafMessage reports the deepest validation failure, which names the
// offending property.
func leafMessage(verr *jsonschema.ValidationError) string {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	if verr.InstanceLocation == "" {
		return verr.Message
	}
	return verr.InstanceLocation + ": " + verr.Message
}

// plain converts json.Number values back to float64 or int64.
func plain(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, item := range v {
			v[k] = plain(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = plain(item)
		}
		return v
	default:
		return v
	}
}
