package main

import (
	"context"
	"fmt"

	"github.com/kimhsiao/inventra/internal/auth"
	"github.com/kimhsiao/inventra/internal/config"
	"github.com/kimhsiao/inventra/internal/connectivity"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/store"
	syncpkg "github.com/kimhsiao/inventra/internal/sync"
	"github.com/kimhsiao/inventra/internal/sync/postgres"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// app is the set of components every command works with.
type app struct {
	cfg         *config.Config
	store       *store.LocalStore
	session     *auth.Session
	monitor     *connectivity.Monitor
	coordinator *syncpkg.Coordinator

	closers []func()
}

// openApp opens the configured store and builds the coordinator around the
// configured transport.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	backend, err := store.OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: store.NewLocalStore(backend, cfg.Namespace)}
	a.closers = append(a.closers, func() {
		if err := a.store.Close(); err != nil {
			logging.Warn("Failed to close store", map[string]interface{}{"error": err.Error()})
		}
	})

	var issuer *auth.TokenIssuer
	if cfg.Sync.JWTSecret != "" {
		issuer = auth.NewTokenIssuer(cfg.Sync.JWTSecret)
	}
	a.session, err = auth.NewSession(a.store, issuer, cfg.Sync.TokenExpiry)
	if err != nil {
		a.Close()
		return nil, err
	}

	transport, err := a.newTransport(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.monitor = connectivity.NewMonitor(cfg.StartOnline)
	a.coordinator = syncpkg.NewCoordinator(a.monitor, a.store, queue.New(a.store, cfg.QueueMaxSize), transport,
		&syncpkg.Options{Timeout: cfg.Sync.Timeout})

	logging.Info("Store opened", map[string]interface{}{
		"backend":   cfg.Backend,
		"data_dir":  cfg.DataDir,
		"transport": cfg.Sync.Transport,
		"device_id": a.session.DeviceID(),
	})
	return a, nil
}

func (a *app) newTransport(ctx context.Context) (syncpkg.Transport, error) {
	switch a.cfg.Sync.Transport {
	case config.TransportSimulated:
		return syncpkg.NewSimulatedTransport(a.cfg.Sync.Latency), nil

	case config.TransportHTTP:
		return syncpkg.NewHTTPTransport(&syncpkg.HTTPConfig{
			Endpoint: a.cfg.Sync.Endpoint,
			DeviceID: a.session.DeviceID(),
		}, a.session.TokenSource()), nil

	case config.TransportPostgres:
		pg, err := postgres.New(ctx, a.cfg.Sync.PostgresDSN, a.session.DeviceID())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unknown sync transport %q", a.cfg.Sync.Transport)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
