package registry

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/demo"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/provider"
)

const helperEnv = "CAPMUX_TEST_PROVIDER"

func TestMain(m *testing.M) {
	if name := os.Getenv(helperEnv); name != "" {
		if err := demo.ServeStdio(name); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("disjoint", func(t *testing.T) {
		r := New(nil)
		require.NoError(t, r.Register(ctx, stub("a", "one", "two")))
		require.NoError(t, r.Register(ctx, stub("b", "three")))
		require.Equal(t, []string{"one", "two", "three"}, names(r))
		require.Equal(t, []string{"a", "b"}, r.Providers())
		require.Equal(t, 3, r.Len())
	})

	t.Run("collision leaves registry untouched", func(t *testing.T) {
		r := New(nil)
		require.NoError(t, r.Register(ctx, stub("a", "one", "two")))
		err := r.Register(ctx, stub("b", "zero", "two", "one"))
		require.ErrorIs(t, err, errs.ErrNameCollision)

		var collision *errs.NameCollisionError
		require.True(t, errors.As(err, &collision))
		require.Equal(t, "b", collision.Provider)
		require.Equal(t, []string{"one", "two"}, collision.Names)

		require.Equal(t, []string{"one", "two"}, names(r))
		require.Equal(t, []string{"a"}, r.Providers())
		_, _, err = r.Resolve("zero")
		require.ErrorIs(t, err, errs.ErrUnknownCapability)
	})

	t.Run("duplicate inside one provider", func(t *testing.T) {
		r := New(nil)
		err := r.Register(ctx, stub("a", "one", "one"))
		require.ErrorIs(t, err, errs.ErrNameCollision)
		require.Zero(t, r.Len())
	})

	t.Run("same provider twice", func(t *testing.T) {
		r := New(nil)
		p := stub("a", "one")
		require.NoError(t, r.Register(ctx, p))
		require.ErrorIs(t, r.Register(ctx, p), errs.ErrAlreadyConnected)
	})

	t.Run("discovery failure", func(t *testing.T) {
		r := New(nil)
		p := stub("a", "one")
		p.discoverErr = errs.ErrDiscovery
		require.ErrorIs(t, r.Register(ctx, p), errs.ErrDiscovery)
		require.Empty(t, r.Providers())
	})
}

func TestResolve(t *testing.T) {
	r := New(nil)
	a := stub("a", "one")
	require.NoError(t, r.Register(context.Background(), a))

	p, d, err := r.Resolve("one")
	require.NoError(t, err)
	require.Equal(t, "a", p.ID())
	require.Equal(t, "one", d.Name)

	owner, ok := r.Owner("one")
	require.True(t, ok)
	require.Equal(t, "a", owner)

	_, _, err = r.Resolve("two")
	require.ErrorIs(t, err, errs.ErrUnknownCapability)
}

func TestListRestartable(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(context.Background(), stub("a", "one", "two", "three")))

	seq := r.List()
	var first []string
	for d := range seq {
		first = append(first, d.Name)
		if len(first) == 2 {
			break
		}
	}
	require.Equal(t, []string{"one", "two"}, first)

	var second []string
	for d := range seq {
		second = append(second, d.Name)
	}
	require.Equal(t, []string{"one", "two", "three"}, second)
}

func TestDeregister(t *testing.T) {
	r := New(nil)
	a := stub("a", "one", "two")
	b := stub("b", "three")
	require.NoError(t, r.Register(context.Background(), a))
	require.NoError(t, r.Register(context.Background(), b))

	a.close()
	require.Equal(t, []string{"three"}, names(r))
	require.Equal(t, []string{"b"}, r.Providers())

	// the freed names can be taken by another provider
	require.NoError(t, r.Register(context.Background(), stub("c", "one")))
	require.Equal(t, []string{"three", "one"}, names(r))

	r.Deregister("missing")
	require.Equal(t, 2, r.Len())
}

func TestDeregisterLostDuringRegister(t *testing.T) {
	r := New(nil)
	lost := stub("lost", "one", "two")
	lost.loseOnce = true
	require.NoError(t, r.Register(context.Background(), lost))
	require.Zero(t, r.Len())
	require.Empty(t, r.Providers())

	_, _, err := r.Resolve("one")
	require.ErrorIs(t, err, errs.ErrUnknownCapability)
	require.NoError(t, r.Register(context.Background(), stub("other", "one")))
}

func TestConcurrentAccess(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(context.Background(), stub("base", "ping")))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p := stub(string(rune('a'+i)), string(rune('A'+i)))
			_ = r.Register(context.Background(), p)
			p.close()
		}()
		go func() {
			defer wg.Done()
			for range r.List() {
			}
			if _, _, err := r.Resolve("ping"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, []string{"ping"}, names(r))
}

func TestRealProviders(t *testing.T) {
	ctx := context.Background()
	r := New(nil)
	for _, name := range []string{demo.Classifier, demo.OfficeInfo} {
		s, err := demo.New(name)
		require.NoError(t, err)
		h := provider.New(name, provider.InProcessDialer(s))
		require.NoError(t, h.Connect(ctx))
		t.Cleanup(func() { _ = h.Close() })
		require.NoError(t, r.Register(ctx, h))
	}

	p, _, err := r.Resolve("officeInfo")
	require.NoError(t, err)
	got, err := p.Invoke(ctx, "officeInfo", map[string]any{"label": demo.LabelPublicWorks})
	require.NoError(t, err)
	require.Equal(t, demo.Office(demo.LabelPublicWorks), got)

	// a second office info provider collides on every tool
	s, err := demo.New(demo.OfficeInfo)
	require.NoError(t, err)
	dup := provider.New("officeinfo-2", provider.InProcessDialer(s))
	require.NoError(t, dup.Connect(ctx))
	t.Cleanup(func() { _ = dup.Close() })
	err = r.Register(ctx, dup)
	var collision *errs.NameCollisionError
	require.True(t, errors.As(err, &collision))
	require.Equal(t, []string{"echo", "officeInfo"}, collision.Names)
}

func TestOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ProviderTimeout = 10 * time.Second
	cfg.Providers = map[string]config.ProviderConfig{
		"classifier": {Command: exe, Args: []string{"-test.run=^$"}, Env: []string{helperEnv + "=" + demo.Classifier}},
		"officeinfo": {Command: exe, Args: []string{"-test.run=^$"}, Env: []string{helperEnv + "=" + demo.OfficeInfo}},
		"ghost":      {Command: "/nonexistent/capmux-provider"},
		"grpc":       {Type: "grpc", URL: "localhost:9000"},
		"nocommand":  {Type: config.ProviderStdio},
		"skipped":    {Command: "/nonexistent/skipped"},
	}
	cfg.ProviderDisable = []string{"skipped"}

	set, err := Open(context.Background(), &cfg, nil)
	t.Cleanup(func() { _ = set.Close() })
	require.ErrorIs(t, err, errs.ErrConnection)
	require.ErrorContains(t, err, "ghost")
	require.ErrorContains(t, err, `unsupported provider type: "grpc"`)
	require.ErrorContains(t, err, "provider nocommand")
	require.NotContains(t, err.Error(), "skipped")

	require.Equal(t, []string{"classifier", "officeinfo"}, set.Providers())
	require.Len(t, set.Handles, 2)
	owner, ok := set.Owner("classify")
	require.True(t, ok)
	require.Equal(t, "classifier", owner)

	_ = set.Close()
	require.Zero(t, set.Len())
}

func names(r *Registry) []string {
	var out []string
	for d := range r.List() {
		out = append(out, d.Name)
	}
	return out
}

type stubProvider struct {
	id          string
	descs       []capability.Descriptor
	discoverErr error
	loseOnce    bool

	mu     sync.Mutex
	hooks  []func(string)
	closed bool
}

func stub(id string, capabilities ...string) *stubProvider {
	p := &stubProvider{id: id}
	for _, name := range capabilities {
		p.descs = append(p.descs, capability.Descriptor{Name: name, Kind: capability.Tool})
	}
	return p
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) Discover(context.Context) ([]capability.Descriptor, error) {
	if p.discoverErr != nil {
		return nil, p.discoverErr
	}
	if p.loseOnce {
		p.close()
	}
	return slices.Clone(p.descs), nil
}

func (p *stubProvider) Invoke(_ context.Context, name string, _ map[string]any) (string, error) {
	return p.id + ":" + name, nil
}

func (p *stubProvider) OnClose(fn func(string)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn(p.id)
		return
	}
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

func (p *stubProvider) close() {
	p.mu.Lock()
	p.closed = true
	hooks := p.hooks
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p.id)
	}
}
