package runs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/reasoning"
	"github.com/dotcommander/capmux/internal/session"
)

// LocalConfig configures a Local run provider.
type LocalConfig struct {
	Reasoner       reasoning.Service
	Bridge         session.Dispatcher
	System         string
	MaxIterations  int
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// Now overrides time.Now for message timestamps.
	Now func() time.Time
}

// Local is an in-process run provider. Each run drives a fresh
// conversation session over the thread's messages in a goroutine.
type Local struct {
	cfg    LocalConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	threads map[string]*localThread
}

type localThread struct {
	messages []Message
	runs     map[string]*RunRecord
}

// NewLocal returns an empty Local provider.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "runs.local"),
		ctx:     ctx,
		cancel:  cancel,
		threads: map[string]*localThread{},
	}
}

// CreateThread implements Provider.
func (l *Local) CreateThread(context.Context) (string, error) {
	id := uuid.NewString()
	l.mu.Lock()
	l.threads[id] = &localThread{runs: map[string]*RunRecord{}}
	l.mu.Unlock()
	return id, nil
}

// PostMessage implements Provider.
func (l *Local) PostMessage(_ context.Context, threadID string, role proto.Role, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	th, ok := l.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	l.appendLocked(th, role, text)
	return nil
}

// CreateRun implements Provider. The run starts Queued.
func (l *Local) CreateRun(_ context.Context, threadID, agentID, instructions string) (RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	th, ok := l.threads[threadID]
	if !ok {
		return RunRecord{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	run := &RunRecord{ID: uuid.NewString(), ThreadID: threadID, AgentID: agentID, Status: Queued}
	th.runs[run.ID] = run

	l.wg.Add(1)
	go l.execute(*run, instructions)
	return *run, nil
}

// GetRun implements Provider.
func (l *Local) GetRun(_ context.Context, threadID, runID string) (RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	th, ok := l.threads[threadID]
	if !ok {
		return RunRecord{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	run, ok := th.runs[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return *run, nil
}

// GetMessages implements Provider.
func (l *Local) GetMessages(_ context.Context, threadID string) ([]Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	th, ok := l.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	out := make([]Message, len(th.messages))
	for i, msg := range th.messages {
		out[i] = msg
		out[i].Content = append([]ContentItem(nil), msg.Content...)
	}
	return out, nil
}

// Close cancels in-flight runs and waits for them.
func (l *Local) Close() error {
	l.cancel()
	l.wg.Wait()
	return nil
}

func (l *Local) execute(run RunRecord, instructions string) {
	defer l.wg.Done()

	history, prompt, ok := l.start(run)
	if !ok {
		return
	}
	sess := session.New(l.cfg.Reasoner, l.cfg.Bridge,
		session.WithSystem(joinInstructions(l.cfg.System, instructions)),
		session.WithHistory(history...),
		session.WithMaxIterations(l.cfg.MaxIterations),
		session.WithRequestTimeout(l.cfg.RequestTimeout),
		session.WithLogger(l.cfg.Logger),
		session.WithID(run.ID),
	)
	reply, err := sess.Submit(l.ctx, prompt)

	l.mu.Lock()
	defer l.mu.Unlock()
	th := l.threads[run.ThreadID]
	rec := th.runs[run.ID]
	if err != nil {
		rec.Status = Failed
		rec.Error = err.Error()
		l.logger.Debug("run failed", "run", run.ID, "err", err)
		return
	}
	l.appendLocked(th, proto.RoleAssistant, reply)
	rec.Status = Completed
}

// start moves the run to InProgress and snapshots the thread: the last
// user message becomes the prompt, earlier messages the history.
func (l *Local) start(run RunRecord) ([]proto.Message, string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	th := l.threads[run.ThreadID]
	rec := th.runs[run.ID]

	last := -1
	for i, msg := range th.messages {
		if msg.Role == proto.RoleUser {
			last = i
		}
	}
	if last < 0 {
		rec.Status = Failed
		rec.Error = "thread has no user message"
		return nil, "", false
	}
	rec.Status = InProgress

	history := make([]proto.Message, 0, last)
	for _, msg := range th.messages[:last] {
		history = append(history, proto.Message{Role: msg.Role, Content: textOf(msg), Time: msg.CreatedAt})
	}
	return history, textOf(th.messages[last]), true
}

func (l *Local) appendLocked(th *localThread, role proto.Role, text string) {
	th.messages = append(th.messages, Message{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: l.cfg.Now(),
		Content:   []ContentItem{{Kind: Text, Text: text}},
	})
}

func textOf(msg Message) string {
	var texts []string
	for _, item := range msg.Content {
		if item.Kind == Text {
			texts = append(texts, item.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func joinInstructions(system, extra string) string {
	switch {
	case strings.TrimSpace(extra) == "":
		return system
	case strings.TrimSpace(system) == "":
		return extra
	default:
		return system + "\n\n" + extra
	}
}
