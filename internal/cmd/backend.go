package cmd

import (
	"context"
	"errors"

	"github.com/dotcommander/capmux/internal/bridge"
	"github.com/dotcommander/capmux/internal/chat"
	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/reasoning"
	"github.com/dotcommander/capmux/internal/registry"
	"github.com/dotcommander/capmux/internal/runs"
	"github.com/dotcommander/capmux/internal/session"
)

// backend is a chat.Backend together with what it holds open.
type backend struct {
	chat.Backend
	set   *registry.Set
	local *runs.Local
	// hosted threads outlive the process.
	hosted bool
}

// openBackend builds the backend selected by the configuration: hosted
// runs, local runs or plain sessions.
func (rt *runtime) openBackend(ctx context.Context) (*backend, error) {
	if err := rt.configured(); err != nil {
		return nil, err
	}
	if rt.cfg.Async && rt.cfg.Runs.Endpoint != "" {
		hosted, err := runs.HostedFromConfig(ctx, rt.cfg.Runs, rt.logger)
		if err != nil {
			return nil, err
		}
		return &backend{Backend: chat.Runs{Manager: rt.newManager(hosted)}, hosted: true}, nil
	}
	if rt.cfg.Thread != "" {
		return nil, errs.Error{
			Reason: "Threads can only be continued on a hosted agents service.",
			Err:    errs.UserErrorf("Use --async and set runs.endpoint through capmux config edit."),
		}
	}

	system, err := config.LoadSystem(ctx, rt.cfg.System)
	if err != nil {
		return nil, errs.Wrap(err, "Could not load the system message.")
	}
	reasoner, err := reasoning.FromConfig(ctx, &rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}

	set, err := registry.Open(ctx, &rt.cfg, rt.logger)
	if err != nil {
		rt.logger.Warn("continuing without some providers", "err", err)
	}
	b := &backend{set: set}
	br := bridge.New(set, bridge.WithLogger(rt.logger), bridge.WithMetrics(bridge.NewMetrics()))

	if rt.cfg.Async {
		b.local = runs.NewLocal(runs.LocalConfig{
			Reasoner:       reasoner,
			Bridge:         br,
			System:         system,
			MaxIterations:  rt.cfg.MaxIterations,
			RequestTimeout: rt.cfg.RequestTimeout,
			Logger:         rt.logger,
		})
		b.Backend = chat.Runs{Manager: rt.newManager(b.local)}
		return b, nil
	}

	b.Backend = chat.NewSessions(func(id string) *session.Session {
		return session.New(reasoner, br,
			session.WithID(id),
			session.WithSystem(system),
			session.WithMaxIterations(rt.cfg.MaxIterations),
			session.WithRequestTimeout(rt.cfg.RequestTimeout),
			session.WithLogger(rt.logger),
		)
	}, chat.WithIdleTTL(rt.cfg.ThreadIdleTTL), chat.WithMaxThreads(rt.cfg.MaxThreads))
	return b, nil
}

func (rt *runtime) newManager(p runs.Provider) *runs.Manager {
	rc := rt.cfg.Runs
	return runs.NewManager(p,
		runs.WithAgent(rc.AgentID),
		runs.WithInstructions(rc.Instructions),
		runs.WithBackoff(runs.Backoff{
			Initial:    rc.PollInterval,
			Max:        rc.MaxPollInterval,
			Multiplier: rc.PollMultiplier,
		}),
		runs.WithMaxWait(rc.MaxWait),
		runs.WithLogger(rt.logger),
	)
}

func (b *backend) health() chat.Health {
	h := chat.Health{Status: "ok"}
	if b.set != nil {
		h.Providers = len(b.set.Providers())
		h.Capabilities = b.set.Len()
	}
	return h
}

// Close stops local runs, then disconnects every provider.
func (b *backend) Close() error {
	var errList []error
	if b.local != nil {
		errList = append(errList, b.local.Close())
	}
	if b.set != nil {
		errList = append(errList, b.set.Close())
	}
	return errors.Join(errList...)
}
