package runs

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/capmux/internal/bridge"
	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/demo"
	"github.com/dotcommander/capmux/internal/proto"
	"github.com/dotcommander/capmux/internal/provider"
	"github.com/dotcommander/capmux/internal/reasoning"
	"github.com/dotcommander/capmux/internal/registry"
)

func TestLocalAsk(t *testing.T) {
	var seen reasoning.Request
	local := NewLocal(LocalConfig{
		Reasoner: reasoning.ServiceFunc(func(_ context.Context, req reasoning.Request) (reasoning.Reply, error) {
			seen = req
			return reasoning.Reply{Text: "Hello Jane, " + req.History[len(req.History)-1].Content}, nil
		}),
		Bridge: noFunctions{},
		System: "You are helpful.",
	})
	t.Cleanup(func() { _ = local.Close() })

	m := NewManager(local, WithMetrics(nil), WithInstructions("Please address the user as Jane Doe."), WithBackoff(Backoff{Initial: time.Millisecond}))
	thread, err := local.CreateThread(context.Background())
	require.NoError(t, err)

	reply, err := m.Ask(context.Background(), thread, "what time is it?")
	require.NoError(t, err)
	require.Equal(t, "Hello Jane, what time is it?", reply)
	require.Equal(t, proto.RoleSystem, seen.History[0].Role)
	require.Contains(t, seen.History[0].Content, "You are helpful.")
	require.Contains(t, seen.History[0].Content, "Jane Doe")

	reply, err = m.Ask(context.Background(), thread, "and tomorrow?")
	require.NoError(t, err)
	require.Equal(t, "Hello Jane, and tomorrow?", reply)
	require.Equal(t, []proto.Role{
		proto.RoleSystem,
		proto.RoleUser,
		proto.RoleAssistant,
		proto.RoleUser,
	}, rolesOf(seen.History))

	msgs, err := local.GetMessages(context.Background(), thread)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
}

func TestLocalRunFails(t *testing.T) {
	local := NewLocal(LocalConfig{
		Reasoner: reasoning.ServiceFunc(func(context.Context, reasoning.Request) (reasoning.Reply, error) {
			return reasoning.Reply{}, errors.New("quota exceeded")
		}),
		Bridge: noFunctions{},
	})
	t.Cleanup(func() { _ = local.Close() })
	m := NewManager(local, WithMetrics(nil), WithBackoff(Backoff{Initial: time.Millisecond}))

	thread, err := local.CreateThread(context.Background())
	require.NoError(t, err)
	reply, err := m.Ask(context.Background(), thread, "hi")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(reply, proto.WarningMarker))
	require.Contains(t, reply, "quota exceeded")
}

func TestLocalUnknown(t *testing.T) {
	local := NewLocal(LocalConfig{Bridge: noFunctions{}})
	t.Cleanup(func() { _ = local.Close() })
	ctx := context.Background()

	require.ErrorIs(t, local.PostMessage(ctx, "nope", proto.RoleUser, "hi"), ErrNotFound)
	_, err := local.CreateRun(ctx, "nope", "", "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = local.GetMessages(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	thread, err := local.CreateThread(ctx)
	require.NoError(t, err)
	_, err = local.GetRun(ctx, thread, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRunWithoutUserMessage(t *testing.T) {
	local := NewLocal(LocalConfig{Bridge: noFunctions{}})
	t.Cleanup(func() { _ = local.Close() })
	ctx := context.Background()

	thread, err := local.CreateThread(ctx)
	require.NoError(t, err)
	run, err := local.CreateRun(ctx, thread, "", "")
	require.NoError(t, err)
	require.Equal(t, Queued, run.Status)

	m := NewManager(local, WithMetrics(nil))
	run, err = m.AwaitTerminal(ctx, run, time.Millisecond, time.Second)
	require.NoError(t, err)
	require.Equal(t, Failed, run.Status)
	require.NotEmpty(t, run.Error)
}

func TestLocalCloseCancelsRuns(t *testing.T) {
	var started atomic.Bool
	local := NewLocal(LocalConfig{
		Reasoner: reasoning.ServiceFunc(func(ctx context.Context, _ reasoning.Request) (reasoning.Reply, error) {
			started.Store(true)
			<-ctx.Done()
			return reasoning.Reply{}, ctx.Err()
		}),
		Bridge: noFunctions{},
	})
	ctx := context.Background()
	thread, err := local.CreateThread(ctx)
	require.NoError(t, err)
	require.NoError(t, local.PostMessage(ctx, thread, proto.RoleUser, "hi"))
	run, err := local.CreateRun(ctx, thread, "", "")
	require.NoError(t, err)

	require.Eventually(t, started.Load, time.Second, time.Millisecond)
	require.NoError(t, local.Close())

	run, err = local.GetRun(ctx, thread, run.ID)
	require.NoError(t, err)
	require.Equal(t, Failed, run.Status)
}

func TestLocalCitizenInquiry(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(nil)
	for _, name := range []string{demo.Classifier, demo.OfficeInfo} {
		srv, err := demo.New(name)
		require.NoError(t, err)
		h := provider.New(name, provider.InProcessDialer(srv))
		require.NoError(t, h.Connect(ctx))
		t.Cleanup(func() { _ = h.Close() })
		require.NoError(t, reg.Register(ctx, h))
	}

	local := NewLocal(LocalConfig{
		Reasoner: reasoning.ServiceFunc(func(_ context.Context, req reasoning.Request) (reasoning.Reply, error) {
			last := req.History[len(req.History)-1]
			switch {
			case last.Role == proto.RoleUser:
				return reasoning.Reply{Calls: []proto.ToolCall{{ID: "1", Function: proto.Function{
					Name:      "classify",
					Arguments: []byte(`{"text":"I need to renew my passport"}`),
				}}}}, nil
			case last.ToolCall.Function.Name == "classify":
				return reasoning.Reply{Calls: []proto.ToolCall{{ID: "2", Function: proto.Function{
					Name:      "officeInfo",
					Arguments: []byte(`{"label":"` + last.Content + `"}`),
				}}}}, nil
			default:
				return reasoning.Reply{Text: last.Content}, nil
			}
		}),
		Bridge: bridge.New(reg, bridge.WithMetrics(nil)),
	})
	t.Cleanup(func() { _ = local.Close() })
	m := NewManager(local, WithMetrics(nil), WithBackoff(Backoff{Initial: time.Millisecond}))

	thread, err := local.CreateThread(ctx)
	require.NoError(t, err)
	reply, err := m.Ask(ctx, thread, "I need to renew my passport")
	require.NoError(t, err)
	require.Equal(t, demo.Office(demo.LabelPassport), reply)
}

type noFunctions struct{}

func (noFunctions) DescribeAll() []capability.Descriptor { return nil }

func (noFunctions) Dispatch(context.Context, proto.ToolCall) (proto.Message, error) {
	return proto.Message{}, errors.New("no functions")
}

func rolesOf(msgs []proto.Message) []proto.Role {
	out := make([]proto.Role, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}
