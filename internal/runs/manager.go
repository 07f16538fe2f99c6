package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
)

// Manager drives runs against a Provider. It holds no per-run state, so
// concurrent calls for different runs are independent.
type Manager struct {
	provider     Provider
	agentID      string
	instructions string
	sched        Scheduler
	backoff      Backoff
	maxWait      time.Duration
	logger       *slog.Logger
	metrics      *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithAgent sets the agent runs are created for.
func WithAgent(id string) Option {
	return func(m *Manager) { m.agentID = id }
}

// WithInstructions sets the extra instructions sent with every run.
func WithInstructions(s string) Option {
	return func(m *Manager) { m.instructions = s }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.sched = s }
}

// WithBackoff sets the poll cadence used by Ask.
func WithBackoff(b Backoff) Option {
	return func(m *Manager) { m.backoff = b }
}

// WithMaxWait bounds Ask's wait for a terminal status.
func WithMaxWait(d time.Duration) Option {
	return func(m *Manager) { m.maxWait = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager returns a Manager for p.
func NewManager(p Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: p,
		sched:    Timer{},
		backoff:  DefaultBackoff,
		maxWait:  2 * time.Minute,
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "runs")
	return m
}

// Provider returns the underlying run provider.
func (m *Manager) Provider() Provider { return m.provider }

// Submit posts text to the thread and creates a run for it.
func (m *Manager) Submit(ctx context.Context, threadID, text, instructions string) (RunRecord, error) {
	if err := m.provider.PostMessage(ctx, threadID, proto.RoleUser, text); err != nil {
		return RunRecord{}, fmt.Errorf("post message: %w", err)
	}
	run, err := m.provider.CreateRun(ctx, threadID, m.agentID, instructions)
	if err != nil {
		return RunRecord{}, fmt.Errorf("create run: %w", err)
	}
	m.logger.Debug("run created", "thread", threadID, "run", run.ID, "status", run.Status)
	return run, nil
}

// Poll checks the run's status once.
func (m *Manager) Poll(ctx context.Context, run RunRecord) (RunRecord, error) {
	m.metrics.poll()
	next, err := m.provider.GetRun(ctx, run.ThreadID, run.ID)
	if err != nil {
		return run, fmt.Errorf("poll run %s: %w", run.ID, err)
	}
	if next.Status != run.Status {
		m.logger.Debug("run status", "run", run.ID, "from", run.Status, "to", next.Status)
	}
	return next, nil
}

// AwaitTerminal polls every interval until the run completes or fails.
// RequiresAction keeps polling. When maxWait elapses first the last record
// is returned with errs.ErrRunTimeout. The interval only ever grows, at
// the Manager's backoff multiplier.
func (m *Manager) AwaitTerminal(ctx context.Context, run RunRecord, interval, maxWait time.Duration) (RunRecord, error) {
	if interval <= 0 {
		interval = m.backoff.Initial
	}
	start := m.sched.Now()
	for !run.Status.Terminal() {
		if err := m.sched.Wait(ctx, interval); err != nil {
			return run, err
		}
		var err error
		if run, err = m.Poll(ctx, run); err != nil {
			return run, err
		}
		if run.Status.Terminal() {
			break
		}
		if elapsed := m.sched.Now().Sub(start); elapsed >= maxWait {
			m.metrics.finish("timeout", elapsed.Seconds())
			return run, fmt.Errorf("%w: run %s still %s after %s", errs.ErrRunTimeout, run.ID, run.Status, maxWait)
		}
		interval = m.backoff.Next(interval)
	}
	m.metrics.finish(run.Status.String(), m.sched.Now().Sub(start).Seconds())
	return run, nil
}

// ExtractReply returns the text of the thread's last assistant message,
// its text items joined by newlines. Messages are ordered by creation
// time; equal times keep the provider's order.
func (m *Manager) ExtractReply(ctx context.Context, threadID string) (string, error) {
	msgs, err := m.provider.GetMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("get messages: %w", err)
	}
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for _, msg := range slices.Backward(msgs) {
		if msg.Role != proto.RoleAssistant {
			continue
		}
		return textOf(msg), nil
	}
	return NoResponse, nil
}

// Ask submits question to the thread and waits for the reply. The returned
// text is always displayable: failures resolve to a diagnostic behind
// proto.WarningMarker. A failed run is not an error; a run that outlives
// the wait bound returns errs.ErrRunTimeout alongside its diagnostic.
func (m *Manager) Ask(ctx context.Context, threadID, question string) (string, error) {
	run, err := m.Submit(ctx, threadID, question, m.instructions)
	if err != nil {
		return diagnostic("Could not start a run", err), err
	}
	run, err = m.AwaitTerminal(ctx, run, m.backoff.Initial, m.maxWait)
	switch {
	case errors.Is(err, errs.ErrRunTimeout):
		return fmt.Sprintf("%s The run did not finish within %s.", proto.WarningMarker, m.maxWait), err
	case err != nil:
		return diagnostic("Could not check on the run", err), err
	case run.Status == Failed:
		m.logger.Warn("run failed", "thread", threadID, "run", run.ID, "error", run.Error)
		return fmt.Sprintf("%s Run failed: %s", proto.WarningMarker, run.Error), nil
	}
	reply, err := m.ExtractReply(ctx, threadID)
	if err != nil {
		return diagnostic("Could not read the reply", err), err
	}
	return reply, nil
}

func diagnostic(what string, err error) string {
	return fmt.Sprintf("%s %s: %v", proto.WarningMarker, what, err)
}
