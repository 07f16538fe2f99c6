package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/capmux/internal/config"
	"github.com/dotcommander/capmux/internal/errs"
	"github.com/dotcommander/capmux/internal/provider"
)

// Set is a registry together with the handles it owns.
type Set struct {
	*Registry
	Handles []*provider.Handle
}

// Close closes every handle. Closing deregisters it.
func (s *Set) Close() error {
	var errList []error
	for _, h := range s.Handles {
		if err := h.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Open connects to every enabled provider in cfg concurrently, then
// registers them in name order. Providers that cannot be set up, fail to
// connect or collide are reported in the joined error; the rest stay
// registered.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &Set{Registry: New(logger)}
	launch := provider.LaunchOptions{NoInheritEnv: cfg.ProviderNoInheritEnv}

	var names []string
	var errList []error
	for name, pcfg := range cfg.EnabledProviders() {
		dial, err := provider.DialerFor(name, pcfg, launch)
		if err != nil {
			errList = append(errList, fmt.Errorf("provider %s: %w", name, err))
			continue
		}
		names = append(names, name)
		set.Handles = append(set.Handles, provider.New(name, dial,
			provider.WithTimeout(cfg.ProviderTimeout),
			provider.WithLogger(logger),
		))
	}

	failures := make([]error, len(set.Handles))
	var wg errgroup.Group
	for i, h := range set.Handles {
		wg.Go(func() error {
			err := h.Connect(ctx)
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("timeout while connecting to %q - make sure the configuration is correct: %w", names[i], err)
			}
			failures[i] = err
			return nil
		})
	}
	_ = wg.Wait()

	var connected []*provider.Handle
	for i, h := range set.Handles {
		err := failures[i]
		if err == nil {
			err = set.Register(ctx, h)
		}
		if err != nil {
			_ = h.Close()
			errList = append(errList, fmt.Errorf("provider %s: %w", names[i], err))
			continue
		}
		connected = append(connected, h)
	}
	set.Handles = connected

	if err := errors.Join(errList...); err != nil {
		return set, errs.Wrap(err, "Could not register all providers.")
	}
	return set, nil
}
