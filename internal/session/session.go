// Package session drives one conversation with the reasoning service,
// dispatching the functions it selects until it answers in plain text.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/reasoning"
)

// State is where a session is in its turn-taking protocol.
type State int32

// States.
const (
	Idle State = iota
	AwaitingModel
	AwaitingFunction
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingModel:
		return "awaiting model"
	case AwaitingFunction:
		return "awaiting function"
	default:
		return "unknown"
	}
}

// DefaultMaxIterations bounds the reasoning calls made for one submission.
const DefaultMaxIterations = 8

var errModelTimeout = errors.New("model call timed out")

// Dispatcher advertises capabilities and dispatches function calls.
type Dispatcher interface {
	DescribeAll() []capability.Descriptor
	Dispatch(ctx context.Context, call proto.ToolCall) (proto.Message, error)
}

// Session owns an append-only history. Submit calls are serialized.
type Session struct {
	id       string
	reasoner reasoning.Service
	bridge   Dispatcher
	maxIter  int
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	history []proto.Message
	seq     int64
	state   atomic.Int32
}

// Option configures a Session.
type Option func(*Session)

// WithSystem seeds the history with a system turn.
func WithSystem(prompt string) Option {
	return func(s *Session) {
		if strings.TrimSpace(prompt) == "" {
			return
		}
		s.history = append(s.history, proto.Message{Role: proto.RoleSystem, Content: prompt})
	}
}

// WithHistory seeds the history with earlier turns.
func WithHistory(msgs ...proto.Message) Option {
	return func(s *Session) { s.history = append(s.history, msgs...) }
}

// WithMaxIterations sets the reasoning call bound for one submission.
func WithMaxIterations(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxIter = n
		}
	}
}

// WithRequestTimeout bounds each reasoning call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithID names the session in logs.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an idle session.
func New(reasoner reasoning.Service, bridge Dispatcher, opts ...Option) *Session {
	s := &Session{
		reasoner: reasoner,
		bridge:   bridge,
		maxIter:  DefaultMaxIterations,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session", "session", s.id)
	for i := range s.history {
		s.stamp(&s.history[i])
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current protocol state.
func (s *Session) State() State { return State(s.state.Load()) }

// History returns a copy of the committed turns.
func (s *Session) History() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Submit appends a user turn and runs the auto-invoke loop until the model
// answers. Turns are committed only when the loop ends; a cancelled or
// failed submission leaves the history as it was.
//
// When the model keeps selecting functions past the iteration bound, the
// turns so far are committed and the last partial text is returned behind
// a warning marker together with errs.ErrFunctionLoopExceeded.
func (s *Session) Submit(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setState(Idle)

	pending := []proto.Message{s.turn(proto.RoleUser, text)}
	var partial string
	for iter := 1; iter <= s.maxIter; iter++ {
		s.setState(AwaitingModel)
		reply, err := s.complete(ctx, pending)
		if err != nil {
			s.rollback(len(pending))
			return "", err
		}
		if reply.Text != "" {
			partial = reply.Text
		}
		if !reply.WantsFunction() {
			pending = append(pending, s.turn(proto.RoleAssistant, reply.Text))
			s.commit(pending)
			s.logger.Debug("answered", "iterations", iter)
			return reply.Text, nil
		}

		s.setState(AwaitingFunction)
		for _, call := range reply.Calls {
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d", s.seq+1)
			}
			msg, err := s.bridge.Dispatch(ctx, call)
			if ctx.Err() != nil {
				s.rollback(len(pending))
				return "", ctx.Err()
			}
			if err != nil {
				s.logger.Debug("function failed", "capability", call.Function.Name, "err", err)
			}
			msg.Role = proto.RoleFunctionResult
			s.stamp(&msg)
			pending = append(pending, msg)
		}
		s.logger.Debug("functions dispatched", "iteration", iter, "calls", len(reply.Calls))
	}

	s.commit(pending)
	s.logger.Warn("function loop exceeded", "max_iterations", s.maxIter)
	return loopExceededReply(partial), fmt.Errorf("%w: no answer after %d model calls", errs.ErrFunctionLoopExceeded, s.maxIter)
}

func (s *Session) complete(ctx context.Context, pending []proto.Message) (reasoning.Reply, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		callCtx, cancel = context.WithTimeoutCause(ctx, s.timeout, errModelTimeout)
	}
	defer cancel()

	reply, err := s.reasoner.Complete(callCtx, reasoning.Request{
		History:      slices.Concat(s.history, pending),
		Capabilities: s.bridge.DescribeAll(),
	})
	switch {
	case err == nil:
		return reply, nil
	case ctx.Err() != nil:
		return reasoning.Reply{}, ctx.Err()
	case errors.Is(context.Cause(callCtx), errModelTimeout):
		return reasoning.Reply{}, fmt.Errorf("%w: model did not answer within %s", errs.ErrTimeout, s.timeout)
	default:
		return reasoning.Reply{}, err
	}
}

func (s *Session) turn(role proto.Role, content string) proto.Message {
	msg := proto.Message{Role: role, Content: content}
	s.stamp(&msg)
	return msg
}

// stamp assigns the next ordering key. Pending turns take keys ahead of
// the committed history; rollback returns them.
func (s *Session) stamp(msg *proto.Message) {
	s.seq++
	msg.Seq = s.seq
	if msg.Time.IsZero() {
		msg.Time = s.now()
	}
}

func (s *Session) commit(pending []proto.Message) {
	s.history = append(s.history, pending...)
}

func (s *Session) rollback(n int) {
	s.seq -= int64(n)
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func loopExceededReply(partial string) string {
	if strings.TrimSpace(partial) == "" {
		return proto.WarningMarker + " The request needed too many function calls to finish."
	}
	return proto.WarningMarker + " " + partial
}
