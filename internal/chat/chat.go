// Package chat is the question-and-answer surface over conversation
// sessions or hosted runs. Every failure resolves to a reply string.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/runs"
	"github.com/dotcommander/capmux/internal/session"
)

// ErrUnknownThread is returned for thread ids the backend never issued.
var ErrUnknownThread = errors.New("unknown thread")

// Backend answers questions within threads.
type Backend interface {
	NewThread(ctx context.Context) (string, error)
	// Reply may return a displayable reply together with an error.
	Reply(ctx context.Context, threadID, question string) (string, error)
}

// Sessions is a Backend keeping one conversation session per thread.
// Threads idle past the TTL are dropped, and past the thread limit the
// least recently used one goes.
type Sessions struct {
	factory    func(id string) *session.Session
	ttl        time.Duration
	maxThreads int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*thread
}

type thread struct {
	sess     *session.Session
	lastUsed time.Time
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithIdleTTL drops threads unused for d. Zero keeps them forever.
func WithIdleTTL(d time.Duration) SessionsOption {
	return func(s *Sessions) { s.ttl = d }
}

// WithMaxThreads caps the number of live threads. Zero means no cap.
func WithMaxThreads(n int) SessionsOption {
	return func(s *Sessions) { s.maxThreads = n }
}

// WithSessionsClock overrides time.Now.
func WithSessionsClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) { s.now = now }
}

// NewSessions returns a Sessions backend creating sessions with factory.
func NewSessions(factory func(id string) *session.Session, opts ...SessionsOption) *Sessions {
	s := &Sessions{factory: factory, now: time.Now, sessions: map[string]*thread{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewThread implements Backend.
func (s *Sessions) NewThread(context.Context) (string, error) {
	id := uuid.NewString()
	sess := s.factory(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	if s.maxThreads > 0 && len(s.sessions) >= s.maxThreads {
		s.evictOldestLocked()
	}
	s.sessions[id] = &thread{sess: sess, lastUsed: now}
	return id, nil
}

// Reply implements Backend.
func (s *Sessions) Reply(ctx context.Context, threadID, question string) (string, error) {
	s.mu.Lock()
	now := s.now()
	s.pruneLocked(now)
	th, ok := s.sessions[threadID]
	if ok {
		th.lastUsed = now
	}
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	return th.sess.Submit(ctx, question)
}

// Len returns the number of live threads.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) pruneLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	maps.DeleteFunc(s.sessions, func(_ string, th *thread) bool {
		return now.Sub(th.lastUsed) > s.ttl
	})
}

func (s *Sessions) evictOldestLocked() {
	var oldest string
	var at time.Time
	for id, th := range s.sessions {
		if oldest == "" || th.lastUsed.Before(at) {
			oldest, at = id, th.lastUsed
		}
	}
	delete(s.sessions, oldest)
}

// Runs is a Backend routing questions through the run lifecycle manager.
type Runs struct {
	Manager *runs.Manager
}

// NewThread implements Backend.
func (r Runs) NewThread(ctx context.Context) (string, error) {
	return r.Manager.Provider().CreateThread(ctx)
}

// Reply implements Backend.
func (r Runs) Reply(ctx context.Context, threadID, question string) (string, error) {
	reply, err := r.Manager.Ask(ctx, threadID, question)
	if errors.Is(err, runs.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	return reply, err
}

// Chat answers questions over a Backend.
type Chat struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.Mutex
	thread string
}

// New returns a Chat over b.
func New(b Backend, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{backend: b, logger: logger.With("component", "chat")}
}

// Ask answers question on the chat's own thread, created on first use.
func (c *Chat) Ask(ctx context.Context, question string) string {
	c.mu.Lock()
	thread := c.thread
	c.mu.Unlock()

	reply, thread, err := c.AskThread(ctx, thread, question)
	if err != nil {
		return warning(err)
	}
	c.mu.Lock()
	c.thread = thread
	c.mu.Unlock()
	return reply
}

// AskThread answers question on threadID, creating a thread when threadID
// is empty, and returns the thread used. Errors are returned only when no
// thread could be resolved; every other failure is folded into the reply.
func (c *Chat) AskThread(ctx context.Context, threadID, question string) (string, string, error) {
	if strings.TrimSpace(question) == "" {
		return proto.WarningMarker + " Please ask a question.", threadID, nil
	}
	if threadID == "" {
		id, err := c.backend.NewThread(ctx)
		if err != nil {
			return "", "", fmt.Errorf("new thread: %w", err)
		}
		threadID = id
	}

	reply, err := c.backend.Reply(ctx, threadID, question)
	switch {
	case errors.Is(err, ErrUnknownThread):
		return "", threadID, err
	case err != nil:
		c.logger.Warn("ask failed", "thread", threadID, "kind", kindOf(err), "err", err)
		if reply == "" {
			reply = warning(err)
		}
	}
	return reply, threadID, nil
}

func warning(err error) string {
	return proto.WarningMarker + " " + errs.Reason(err)
}

func kindOf(err error) string {
	if k := errs.Kind(err); k != nil {
		return k.Error()
	}
	return "error"
}
