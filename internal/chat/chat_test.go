package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/reasoning"
	"github.com/dotcommander/capmux/internal/runs"
	"github.com/dotcommander/capmux/internal/session"
)

func TestAsk(t *testing.T) {
	for name, tc := range map[string]struct {
		reasoner reasoning.ServiceFunc
		question string
		expect   string
	}{
		"answer": {
			reasoner: echo,
			question: "hello",
			expect:   "you said: hello",
		},
		"blank question": {
			reasoner: echo,
			question: "   ",
			expect:   proto.WarningMarker + " Please ask a question.",
		},
		"model failure": {
			reasoner: func(context.Context, reasoning.Request) (reasoning.Reply, error) {
				return reasoning.Reply{}, errs.Wrap(errors.New("503"), "The model is unavailable.")
			},
			question: "hello",
			expect:   proto.WarningMarker + " The model is unavailable.",
		},
		"loop exceeded": {
			reasoner: func(context.Context, reasoning.Request) (reasoning.Reply, error) {
				return reasoning.Reply{Text: "partial", Calls: []proto.ToolCall{{ID: "1", Function: proto.Function{Name: "x"}}}}, nil
			},
			question: "hello",
			expect:   proto.WarningMarker + " partial",
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := New(sessionsWith(tc.reasoner), nil)
			require.Equal(t, tc.expect, c.Ask(context.Background(), tc.question))
		})
	}
}

func TestAskKeepsThread(t *testing.T) {
	var lens []int
	backend := sessionsWith(reasoning.ServiceFunc(func(_ context.Context, req reasoning.Request) (reasoning.Reply, error) {
		lens = append(lens, len(req.History))
		return reasoning.Reply{Text: "ok"}, nil
	}))
	c := New(backend, nil)

	c.Ask(context.Background(), "one")
	c.Ask(context.Background(), "two")
	require.Equal(t, []int{1, 3}, lens)
	require.Equal(t, 1, backend.Len())
}

func TestAskThreadUnknown(t *testing.T) {
	c := New(sessionsWith(echo), nil)
	_, _, err := c.AskThread(context.Background(), "nope", "hello")
	require.ErrorIs(t, err, ErrUnknownThread)
	require.True(t, strings.HasPrefix(c.Ask(context.Background(), "hi"), "you said"))
}

func TestSessionsEviction(t *testing.T) {
	ctx := context.Background()

	t.Run("idle ttl", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		backend := sessionsWith(echo, WithIdleTTL(time.Minute), WithSessionsClock(func() time.Time { return now }))
		c := New(backend, nil)

		_, stale, err := c.AskThread(ctx, "", "first")
		require.NoError(t, err)
		now = now.Add(30 * time.Second)
		_, fresh, err := c.AskThread(ctx, "", "second")
		require.NoError(t, err)

		now = now.Add(45 * time.Second)
		_, _, err = c.AskThread(ctx, stale, "still there?")
		require.ErrorIs(t, err, ErrUnknownThread)
		reply, _, err := c.AskThread(ctx, fresh, "still there?")
		require.NoError(t, err)
		require.Equal(t, "you said: still there?", reply)
		require.Equal(t, 1, backend.Len())
	})

	t.Run("max threads", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		backend := sessionsWith(echo, WithMaxThreads(2), WithSessionsClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}))
		c := New(backend, nil)

		_, first, err := c.AskThread(ctx, "", "one")
		require.NoError(t, err)
		_, second, err := c.AskThread(ctx, "", "two")
		require.NoError(t, err)
		_, _, err = c.AskThread(ctx, first, "touch")
		require.NoError(t, err)

		_, _, err = c.AskThread(ctx, "", "three")
		require.NoError(t, err)
		require.Equal(t, 2, backend.Len())

		_, _, err = c.AskThread(ctx, second, "gone?")
		require.ErrorIs(t, err, ErrUnknownThread)
		_, _, err = c.AskThread(ctx, first, "kept?")
		require.NoError(t, err)
	})
}

func TestRunsBackend(t *testing.T) {
	local := runs.NewLocal(runs.LocalConfig{Reasoner: echo, Bridge: noFunctions{}})
	t.Cleanup(func() { _ = local.Close() })
	m := runs.NewManager(local, runs.WithMetrics(nil), runs.WithBackoff(runs.Backoff{Initial: time.Millisecond}))
	c := New(Runs{Manager: m}, nil)

	reply, thread, err := c.AskThread(context.Background(), "", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, thread)
	require.Equal(t, "you said: hello", reply)

	_, _, err = c.AskThread(context.Background(), "missing", "hello")
	require.ErrorIs(t, err, ErrUnknownThread)
}

func TestHandler(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>chat</h1>"), 0o600))

	c := New(sessionsWith(echo), nil)
	srv := httptest.NewServer(NewHandler(c,
		WithStaticDir(static),
		WithHealth(func() Health { return Health{Status: "ok", Providers: 2, Capabilities: 3} }),
	))
	t.Cleanup(srv.Close)

	t.Run("chat", func(t *testing.T) {
		var out askResponse
		status := post(t, srv.URL+"/api/chat", `{"question":"hello"}`, &out)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "you said: hello", out.Reply)
		require.NotEmpty(t, out.ThreadID)

		var again askResponse
		status = post(t, srv.URL+"/api/chat", `{"question":"again","threadId":"`+out.ThreadID+`"}`, &again)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, out.ThreadID, again.ThreadID)
	})

	t.Run("blank question", func(t *testing.T) {
		var out errorResponse
		require.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/chat", `{"question":"  "}`, &out))
		require.NotEmpty(t, out.Error)
	})

	t.Run("bad body", func(t *testing.T) {
		var out errorResponse
		require.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/chat", `{`, &out))
	})

	t.Run("unknown thread", func(t *testing.T) {
		var out errorResponse
		require.Equal(t, http.StatusNotFound, post(t, srv.URL+"/api/chat", `{"question":"hi","threadId":"nope"}`, &out))
	})

	t.Run("healthz", func(t *testing.T) {
		var out Health
		require.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz", &out))
		require.Equal(t, Health{Status: "ok", Providers: 2, Capabilities: 3}, out)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("static", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "<h1>chat</h1>")
	})
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(sessionsWith(echo), nil)

	addrc := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", NewHandler(c), nil, func(a net.Addr) { addrc <- a })
	}()

	addr := <-addrc
	var out Health
	require.Equal(t, http.StatusOK, get(t, "http://"+addr.String()+"/healthz", &out))
	require.Equal(t, "ok", out.Status)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestConcurrentThreads(t *testing.T) {
	c := New(sessionsWith(echo), nil)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, thread, err := c.AskThread(context.Background(), "", "hi")
			if err != nil || thread == "" || reply != "you said: hi" {
				t.Errorf("got %q %q %v", reply, thread, err)
			}
		}()
	}
	wg.Wait()
}

var echo reasoning.ServiceFunc = func(_ context.Context, req reasoning.Request) (reasoning.Reply, error) {
	return reasoning.Reply{Text: "you said: " + req.History[len(req.History)-1].Content}, nil
}

func sessionsWith(r reasoning.Service, opts ...SessionsOption) *Sessions {
	return NewSessions(func(id string) *session.Session {
		return session.New(r, noFunctions{}, session.WithID(id), session.WithMaxIterations(2))
	}, opts...)
}

type noFunctions struct{}

func (noFunctions) DescribeAll() []capability.Descriptor { return nil }

func (noFunctions) Dispatch(_ context.Context, call proto.ToolCall) (proto.Message, error) {
	return proto.Message{Role: proto.RoleFunctionResult, Content: "nothing", ToolCall: &call}, nil
}

func post(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}
