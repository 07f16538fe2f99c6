// Package reasoning talks to the language model that decides, turn by
// turn, whether to answer or to call a capability.
package reasoning

import (
	"context"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/proto"
)

// Request is one reasoning call: the history so far and the capabilities
// the model may select.
type Request struct {
	History      []proto.Message
	Capabilities []capability.Descriptor
}

// Reply is either plain text or one or more function selections. Text may
// accompany calls.
type Reply struct {
	Text     string
	Calls    []proto.ToolCall
	Warnings []string
}

// WantsFunction reports whether the model selected a capability.
func (r Reply) WantsFunction() bool { return len(r.Calls) > 0 }

// Service is a reasoning service.
type Service interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, req Request) (Reply, error)

// Complete implements Service.
func (f ServiceFunc) Complete(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
