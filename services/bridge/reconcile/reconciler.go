// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reconcile routes incoming graph updates to the right
// project: caching them under their resolved owner and merging them
// into the display store only when that owner is the bound project.
//
// # Description
//
// Updates can arrive for projects other than the one on screen (a
// backend finishing old work, or the user mid-switch). The reconciler
// guarantees two things: no update is lost (everything lands in the
// project cache under its resolved id) and no update bleeds across
// projects (the store merges only updates owned by the bound project).
//
// # Thread Safety
//
// Apply is called only from the session dispatcher goroutine. The
// store and cache it touches are internally synchronized.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianBridge/services/bridge/projectcache"
	"github.com/AleutianAI/AleutianBridge/services/bridge/protocol"
	"github.com/AleutianAI/AleutianBridge/services/bridge/taskgraph"
)

// -----------------------------------------------------------------------------
// Logging Helpers
// -----------------------------------------------------------------------------

// loggerWithTrace returns a logger with trace context attached so log
// lines join up with spans in the collector.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_reconcile_updates_total",
		Help: "Graph updates processed, by routing outcome",
	}, []string{"outcome"})

	nodesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconcile_nodes_applied_total",
		Help: "Node entries merged into cache or store",
	})

	nodesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconcile_nodes_dropped_total",
		Help: "Node entries dropped by per-node validation",
	})

	regressionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconcile_status_regressions_total",
		Help: "Apparent backwards status transitions (applied anyway)",
	})

	desyncTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_reconcile_current_project_desync_total",
		Help: "Updates whose current-project hint disagreed with the local binding",
	})

	applyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bridge_reconcile_apply_duration_seconds",
		Help:    "Time to route one graph update",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"outcome"})
)

// -----------------------------------------------------------------------------
// Tracer
// -----------------------------------------------------------------------------

var reconcileTracer = otel.Tracer("bridge.reconcile")

// -----------------------------------------------------------------------------
// Reconciler
// -----------------------------------------------------------------------------

// ResolveSource records which signal identified the update's owner.
type ResolveSource string

const (
	SourcePayload    ResolveSource = "payload"
	SourceHint       ResolveSource = "hint"
	SourceBinding    ResolveSource = "binding"
	SourceUnresolved ResolveSource = "unresolved"
)

// Routing outcome labels.
const (
	outcomeMerged     = "merged"
	outcomeCachedOnly = "cached_only"
	outcomeDegraded   = "degraded"
)

// Desync reports a disagreement between the backend's embedded
// current-project hint and the local binding. The session resolves it
// by re-synchronizing the binding; the reconciler only detects it.
type Desync struct {
	LocalProjectID  string
	RemoteProjectID string
}

// Outcome summarizes how one update was routed.
type Outcome struct {
	ResolvedProjectID string
	Source            ResolveSource
	CacheWritten      bool
	MergedToStore     bool
	NodesApplied      int
	NodesDropped      int
	Regressions       []taskgraph.Regression
	Desync            *Desync
}

// Reconciler owns update routing for one session.
type Reconciler struct {
	store  *taskgraph.Store
	cache  *projectcache.Cache
	logger *slog.Logger
}

// New creates a reconciler over the session's store and cache.
func New(store *taskgraph.Store, cache *projectcache.Cache, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, cache: cache, logger: logger}
}

// resolveProject identifies the update's owner. Precedence: explicit
// payload project id, then the embedded current-project hint, then the
// local binding.
func resolveProject(update *protocol.GraphUpdate, bound string) (string, ResolveSource) {
	switch {
	case update.ProjectID != "":
		return update.ProjectID, SourcePayload
	case update.CurrentProjectID != "":
		return update.CurrentProjectID, SourceHint
	case bound != "":
		return bound, SourceBinding
	default:
		return "", SourceUnresolved
	}
}

// Apply routes one decoded graph update.
//
// The order is deliberate: the cache is written first under the
// resolved id so the data survives whatever happens to the display
// binding afterwards; the store merge happens only when the resolved
// owner is the bound project. An unresolvable update degrades to a
// direct store merge so the user still sees progress, at the cost of
// skipping the cache.
func (r *Reconciler) Apply(ctx context.Context, update *protocol.GraphUpdate, bound string) Outcome {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.Apply")
	defer span.End()
	start := time.Now()

	log := loggerWithTrace(ctx, r.logger)

	out := Outcome{NodesDropped: len(update.Dropped)}
	out.ResolvedProjectID, out.Source = resolveProject(update, bound)

	span.SetAttributes(
		attribute.String("bridge.project_id", out.ResolvedProjectID),
		attribute.String("bridge.resolve_source", string(out.Source)),
		attribute.Int("bridge.node_count", len(update.Nodes)),
		attribute.Int("bridge.dropped_count", len(update.Dropped)),
	)

	if len(update.Dropped) > 0 {
		nodesDroppedTotal.Add(float64(len(update.Dropped)))
		for _, d := range update.Dropped {
			log.Warn("dropped invalid node entry",
				"project_id", out.ResolvedProjectID,
				"node_id", d.NodeID,
				"error", d.Err)
		}
	}

	// The embedded hint names the backend's current project. If it
	// disagrees with what we display, flag it; the session rebinding
	// logic settles which side wins.
	if update.CurrentProjectID != "" && bound != "" && update.CurrentProjectID != bound {
		out.Desync = &Desync{LocalProjectID: bound, RemoteProjectID: update.CurrentProjectID}
		desyncTotal.Inc()
		log.Warn("current project disagreement",
			"local", bound, "remote", update.CurrentProjectID)
	}

	outcome := outcomeDegraded
	switch out.Source {
	case SourceUnresolved:
		out.Regressions = r.store.ApplyNodes(update.Nodes, update.OverallGoal)
		out.NodesApplied = len(update.Nodes)
		out.MergedToStore = true
		log.Warn("update without project attribution applied directly to display",
			"node_count", len(update.Nodes))
	default:
		r.writeThroughCache(ctx, out.ResolvedProjectID, update)
		out.CacheWritten = true
		out.NodesApplied = len(update.Nodes)

		if out.ResolvedProjectID == bound {
			out.Regressions = r.store.ApplyNodes(update.Nodes, update.OverallGoal)
			out.MergedToStore = true
			outcome = outcomeMerged
		} else {
			outcome = outcomeCachedOnly
			log.Debug("update cached for non-displayed project",
				"project_id", out.ResolvedProjectID, "bound", bound)
		}
	}

	if n := len(out.Regressions); n > 0 {
		regressionsTotal.Add(float64(n))
		for _, reg := range out.Regressions {
			log.Warn("status moved backwards, applying arrival order",
				"project_id", out.ResolvedProjectID,
				"node_id", reg.NodeID,
				"from", string(reg.From),
				"to", string(reg.To))
		}
	}

	nodesAppliedTotal.Add(float64(out.NodesApplied))
	updatesTotal.WithLabelValues(outcome).Inc()
	applyDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return out
}

// writeThroughCache merges the update into the project's cached
// snapshot, creating it on first sight. Cache.Put persists behind the
// write on its own best-effort terms.
func (r *Reconciler) writeThroughCache(ctx context.Context, projectID string, update *protocol.GraphUpdate) {
	snap, ok := r.cache.Get(ctx, projectID)
	if !ok {
		snap = taskgraph.NewSnapshot(projectID, update.OverallGoal, nil)
	}
	snap.Merge(update.Nodes, update.OverallGoal)
	r.cache.Put(ctx, projectID, snap)
}
