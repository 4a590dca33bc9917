// Package app wires the registries, the account lifecycle, the Connect
// services and snapshot persistence into one server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmynk/bailago/internal/auth"
	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/config"
	"github.com/mmynk/bailago/internal/lifecycle"
	"github.com/mmynk/bailago/internal/metrics"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/registry"
	"github.com/mmynk/bailago/internal/service"
	"github.com/mmynk/bailago/internal/storage"
)

// Snapshot kinds, in restore order.
const (
	KindUsers   = "users"
	KindEvents  = "events"
	KindGroups  = "groups"
	KindInvites = "invites"
)

// Options configure New. Only Config is required.
type Options struct {
	Config *config.Config

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// Notifier defaults to logging every notification.
	Notifier notify.Dispatcher

	Logger *slog.Logger

	// Metrics may be nil to disable instrumentation.
	Metrics *metrics.Metrics

	// Store may be nil to keep everything in memory.
	Store storage.Snapshotter
}

// App is a fully wired server.
type App struct {
	Users     *registry.UserRegistry
	Events    *registry.EventRegistry
	Groups    *registry.GroupRegistry
	Invites   *registry.InviteRegistry
	Lifecycle *lifecycle.Manager
	JWT       *auth.JWTManager
	Metrics   *metrics.Metrics

	cfg      *config.Config
	notifier notify.Dispatcher
	store    storage.Snapshotter
	logger   *slog.Logger
}

// snapshottable is implemented by every registry.
type snapshottable interface {
	Snapshot() ([]storage.Record, error)
	Restore(records []storage.Record) error
}

// New builds the registries and their collaborators.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogDispatcher(logger)
	}

	deps := registry.Deps{Clock: opts.Clock, Notifier: notifier, Logger: logger}
	a := &App{
		Users:    registry.NewUserRegistry(auth.NewBcryptHasher(opts.Config.BcryptCost), auth.RandomTokens{}, deps),
		Events:   registry.NewEventRegistry(deps),
		Invites:  registry.NewInviteRegistry(deps),
		JWT:      auth.NewJWTManager(opts.Config.JWTSecret, opts.Config.JWTTTL),
		Metrics:  opts.Metrics,
		cfg:      opts.Config,
		notifier: notifier,
		store:    opts.Store,
		logger:   logger,
	}
	a.Groups = registry.NewGroupRegistry(a.Events, a.Invites, deps)

	var lm lifecycle.Metrics
	if opts.Metrics != nil {
		lm = opts.Metrics
	}
	a.Lifecycle = lifecycle.NewManager(a.Users, lm, deps)
	return a
}

// Handler returns the HTTP handler serving every Connect service and, when
// metrics are enabled, /metrics.
func (a *App) Handler() http.Handler {
	cfg := service.HandlerConfig{
		JWT:      a.JWT,
		Activity: a.Lifecycle,
		Logger:   a.logger,
	}
	if a.Metrics != nil {
		cfg.Metrics = a.Metrics
	}

	mux := http.NewServeMux()
	mux.Handle(service.NewUserServiceHandler(
		service.NewUserService(a.Users, a.Lifecycle, a.JWT, a.logger), cfg))
	mux.Handle(service.NewEventServiceHandler(
		service.NewEventService(a.Events, a.Groups, a.Users, a.notifier, a.logger), cfg))
	mux.Handle(service.NewGroupServiceHandler(
		service.NewGroupService(a.Groups, a.Invites, a.Users, a.notifier, a.logger), cfg))
	if a.Metrics != nil {
		mux.Handle("/metrics", a.Metrics.Handler())
	}
	return mux
}

func (a *App) registries() []struct {
	kind string
	reg  snapshottable
} {
	return []struct {
		kind string
		reg  snapshottable
	}{
		{KindUsers, a.Users},
		{KindEvents, a.Events},
		{KindGroups, a.Groups},
		{KindInvites, a.Invites},
	}
}

// Load restores every registry from the snapshot store. Without a store it
// does nothing.
func (a *App) Load(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	for _, r := range a.registries() {
		records, err := a.store.LoadSnapshot(ctx, r.kind)
		if err != nil {
			return err
		}
		if err := r.reg.Restore(records); err != nil {
			return fmt.Errorf("failed to restore %s: %w", r.kind, err)
		}
		a.logger.Info("Snapshot loaded", "kind", r.kind, "count", len(records))
	}
	return nil
}

// Save writes a snapshot of every registry. A failing kind does not stop
// the others; all errors are returned joined.
func (a *App) Save(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	start := time.Now()
	var errs []error
	for _, r := range a.registries() {
		records, err := r.reg.Snapshot()
		if err == nil {
			err = a.store.SaveSnapshot(ctx, r.kind, records)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to save %s: %w", r.kind, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Debug("Snapshot saved", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RunLifecycle runs the inactivity sweep every SweepInterval until ctx is
// done, saving a snapshot after each sweep that changed something.
func (a *App) RunLifecycle(ctx context.Context) {
	a.Lifecycle.Run(ctx, a.cfg.SweepInterval, func(ctx context.Context, res lifecycle.Result) {
		if res.Deactivated+res.Scheduled+res.Deleted == 0 {
			return
		}
		if err := a.Save(ctx); err != nil {
			a.logger.Error("Failed to save snapshot after sweep", "error", err)
		}
	})
}

// RunLoops runs RunLifecycle and RunSnapshots and returns once ctx is done
// and both have exited, so no periodic save is still in flight.
func (a *App) RunLoops(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.RunLifecycle(ctx)
	}()
	go func() {
		defer wg.Done()
		a.RunSnapshots(ctx)
	}()
	wg.Wait()
}

// RunSnapshots saves a snapshot every SnapshotInterval until ctx is done.
func (a *App) RunSnapshots(ctx context.Context) {
	if a.store == nil {
		return
	}
	ticker := time.NewTicker(a.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Save(ctx); err != nil {
				a.logger.Error("Failed to save snapshot", "error", err)
			}
		}
	}
}
