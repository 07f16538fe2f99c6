// Package runs manages asynchronous provider runs: a message is posted to a
// thread, a run is created and then polled until it reaches a terminal
// status, and the reply is read back from the thread.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/dotcommander/capmux/internal/proto"
)

// ErrNotFound is returned for unknown threads and runs.
var ErrNotFound = errors.New("not found")

// NoResponse is the reply when a thread holds no assistant message.
const NoResponse = "(no response)"

// RunStatus is the lifecycle status of a run.
type RunStatus int

// Run statuses.
const (
	Queued RunStatus = iota
	InProgress
	RequiresAction
	Completed
	Failed
)

var statusNames = [...]string{"queued", "in_progress", "requires_action", "completed", "failed"}

func (s RunStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can occur.
func (s RunStatus) Terminal() bool { return s == Completed || s == Failed }

// RunRecord is a snapshot of one run.
type RunRecord struct {
	ID       string
	ThreadID string
	AgentID  string
	Status   RunStatus
	// Error is the provider's reason for a Failed run.
	Error string
}

// ContentKind tags a message content item.
type ContentKind int

// Content kinds.
const (
	Text ContentKind = iota
	Image
)

// ContentItem is one part of a thread message.
type ContentItem struct {
	Kind ContentKind
	Text string
	// FileID references image content.
	FileID string
}

// Message is a thread message.
type Message struct {
	ID        string
	Role      proto.Role
	CreatedAt time.Time
	Content   []ContentItem
}

// Provider is a run-oriented capability provider.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID string, role proto.Role, text string) error
	CreateRun(ctx context.Context, threadID, agentID, instructions string) (RunRecord, error)
	GetRun(ctx context.Context, threadID, runID string) (RunRecord, error)
	GetMessages(ctx context.Context, threadID string) ([]Message, error)
}

// Scheduler suspends the poll loop between status checks.
type Scheduler interface {
	Now() time.Time
	// Wait blocks for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error
}

// Timer is the wall-clock Scheduler.
type Timer struct{}

// Now implements Scheduler.
func (Timer) Now() time.Time { return time.Now() }

// Wait implements Scheduler.
func (Timer) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Backoff grows the poll interval. Intervals never decrease.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff polls at a fixed half-second cadence.
var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 500 * time.Millisecond, Multiplier: 1}

// Next returns the interval following d.
func (b Backoff) Next(d time.Duration) time.Duration {
	next := d
	if b.Multiplier > 1 {
		next = time.Duration(float64(d) * b.Multiplier)
	}
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	return max(next, d)
}
