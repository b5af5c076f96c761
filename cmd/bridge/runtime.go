// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianBridge/cmd/bridge/config"
	"github.com/AleutianAI/AleutianBridge/pkg/logging"
	"github.com/AleutianAI/AleutianBridge/services/bridge/client"
	"github.com/AleutianAI/AleutianBridge/services/bridge/gateway"
	"github.com/AleutianAI/AleutianBridge/services/bridge/hitl"
	"github.com/AleutianAI/AleutianBridge/services/bridge/projectcache"
	"github.com/AleutianAI/AleutianBridge/services/bridge/reconcile"
	"github.com/AleutianAI/AleutianBridge/services/bridge/session"
	"github.com/AleutianAI/AleutianBridge/services/bridge/storage/badger"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
	"github.com/AleutianAI/AleutianBridge/services/bridge/telemetry"
)

// buildOptions tunes runtime assembly per command.
type buildOptions struct {
	// withGateway serves the local JSON API and push hub.
	withGateway bool

	// durable opens the badger snapshot tier. One-shot commands run
	// memory-only so they never contend for the daemon's store lock.
	durable bool

	// quiet suppresses stderr logging (TUI owns the terminal).
	quiet bool
}

// runtime is one assembled bridge: connection manager, reconciliation
// pipeline, session engine, and optionally the gateway.
type runtime struct {
	cfg    config.BridgeConfig
	logger *logging.Logger

	db         *badger.DB
	manager    *client.Manager
	store      *taskgraph.Store
	cache      *projectcache.Cache
	interrupts *hitl.Handler
	engine     *session.Engine
	gw         *gateway.Server

	telemetryShutdown func(context.Context) error
}

// buildRuntime wires the component graph from config.
func buildRuntime(ctx context.Context, cfg config.BridgeConfig, opts buildOptions) (*runtime, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "bridge",
		JSON:    cfg.Logging.JSON,
		Quiet:   cfg.Logging.Quiet || opts.quiet,
	})
	slogger := logger.Slog()

	r := &runtime{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			r.close()
		}
	}()

	if cfg.Telemetry.Enabled {
		telCfg := telemetry.DefaultConfig()
		telCfg.ServiceName = "aleutian-bridge"
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		if cfg.Telemetry.Stdout {
			telCfg.TraceExporter = "stdout"
			telCfg.MetricExporter = "stdout"
		}
		shutdown, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		r.telemetryShutdown = shutdown
	}

	var persister projectcache.Persister
	if opts.durable && cfg.Cache.Dir != "" {
		dbCfg := badger.DefaultConfig()
		dbCfg.Path = cfg.Cache.Dir
		dbCfg.Logger = slogger
		db, err := badger.OpenDB(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot store: %w", err)
		}
		r.db = db

		snapshots, err := badger.NewSnapshotStore(db, badger.SnapshotStoreConfig{
			MaxSnapshotBytes: cfg.Cache.SnapshotLimitBytes,
			QuotaBytes:       cfg.Cache.QuotaBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("creating snapshot store: %w", err)
		}
		persister = snapshots
	}

	r.store = taskgraph.NewStore()
	r.cache = projectcache.New(persister, slogger)

	clientCfg := client.DefaultConfig()
	clientCfg.URL = cfg.Backend.WebsocketURL
	manager, err := client.New(clientCfg, client.NewGorillaDialer(clientCfg.DialTimeout), slogger)
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}
	r.manager = manager

	interrupts, err := hitl.NewHandler(manager, hitl.DefaultConfig(), slogger)
	if err != nil {
		return nil, fmt.Errorf("creating interrupt handler: %w", err)
	}
	r.interrupts = interrupts

	engine, err := session.New(session.Config{
		StabilizationDelay: cfg.Session.StabilizationDelay(),
		SwitchTimeout:      cfg.Session.SwitchTimeout(),
		RestoreTimeout:     cfg.Session.RestoreTimeout(),
		DebounceWindow:     cfg.Session.DebounceWindow(),
	}, session.Deps{
		Transport:  manager,
		Source:     manager,
		Reconciler: reconcile.New(r.store, r.cache, slogger),
		Cache:      r.cache,
		Store:      r.store,
		Interrupts: interrupts,
		Logger:     slogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session engine: %w", err)
	}
	r.engine = engine

	if opts.withGateway && cfg.Gateway.Enabled {
		gw, err := gateway.New(gateway.Config{
			Addr:          cfg.Gateway.Addr,
			ShutdownGrace: 5 * time.Second,
		}, engine, r.store, r.cache, interrupts, slogger)
		if err != nil {
			return nil, fmt.Errorf("creating gateway: %w", err)
		}
		engine.OnRefresh(gw.BroadcastState)
		r.gw = gw
	}

	ok = true
	return r, nil
}

// run connects and drives all long-running components until ctx ends.
func (r *runtime) run(ctx context.Context, configFile string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.engine.Run(ctx) })
	if r.gw != nil {
		g.Go(func() error { return r.gw.Run(ctx) })
	}
	if configFile != "" {
		watcher, err := config.NewWatcher(configFile, r.applyReload, r.logger.Slog())
		if err != nil {
			r.logger.Warn("config hot reload unavailable", "error", err)
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	if err := r.manager.Connect(ctx); err != nil {
		// The retry machinery owns recovery from here; a failed first
		// dial is not fatal to the daemon.
		r.logger.Warn("initial connect failed; retrying in background", "error", err)
	}

	err := g.Wait()
	r.manager.Disconnect()
	return err
}

// applyReload pushes the hot-reloadable config subset into running
// components. Everything else needs a restart.
func (r *runtime) applyReload(next config.BridgeConfig) {
	r.logger.SetLevel(logging.ParseLevel(next.Logging.Level))
	r.engine.SetDebounceWindow(next.Session.DebounceWindow())
	r.cfg.Logging.Level = next.Logging.Level
	r.cfg.Session.DebounceWindowMs = next.Session.DebounceWindowMs
}

// close releases resources in reverse dependency order. Safe on a
// partially built runtime.
func (r *runtime) close() {
	if r.engine != nil {
		r.engine.Stop()
	}
	if r.manager != nil {
		_ = r.manager.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("closing snapshot store", "error", err)
		}
	}
	if r.telemetryShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.telemetryShutdown(shutdownCtx)
	}
	if r.logger != nil {
		_ = r.logger.Close()
	}
}
