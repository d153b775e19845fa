// Package app implements the application layer for memo.
package app

import (
	"context"
	"fmt"
	"time"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/memo/internal/engine/executor"
	"go.trai.ch/memo/internal/server"
	"go.trai.ch/zerr"
)

// analyticsTimeout bounds the best-effort report at the end of a build.
const analyticsTimeout = 5 * time.Second

// App ties the config loader, the executor and the stores together for the
// CLI layer.
type App struct {
	loader    ports.ConfigLoader
	executor  *executor.Executor
	local     ports.LocalStore
	remote    ports.RemoteStore
	log       ports.Logger
	telemetry ports.Telemetry
}

// New creates a new App instance. remote may be nil when no remote cache
// is configured.
func New(loader ports.ConfigLoader, exec *executor.Executor, local ports.LocalStore, remote ports.RemoteStore, log ports.Logger, telemetry ports.Telemetry) *App {
	return &App{
		loader:    loader,
		executor:  exec,
		local:     local,
		remote:    remote,
		log:       log,
		telemetry: telemetry,
	}
}

// Build loads the build description from cwd and executes it.
func (a *App) Build(ctx context.Context, cwd string, opts executor.Options) error {
	graph, err := a.loader.Load(ctx, cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	session := domain.NewSession()
	_, execErr := a.executor.Execute(ctx, graph, session, opts)
	defer func() {
		if err := a.telemetry.Close(); err != nil {
			a.log.Warn(fmt.Sprintf("failed to close telemetry: %v", err))
		}
	}()

	summary := session.Summarize()
	a.report(summary)

	if execErr != nil {
		return zerr.Wrap(execErr, "build failed")
	}
	return nil
}

// report logs the session outcome and ships it to the remote store when
// one is configured. The upload never fails the build.
func (a *App) report(summary domain.Summary) {
	a.log.Info(fmt.Sprintf(
		"%d nodes, %d dirty, %d cached, %d remote, %d ran, %d skipped, %d failed in %s",
		summary.TotalNodes, summary.DirtyNodes, summary.CacheHits, summary.RemoteHits,
		summary.RunnerCalls, summary.SkippedNodes, summary.FailedNodes,
		summary.Duration.Round(time.Millisecond)))

	if a.remote == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), analyticsTimeout)
	defer cancel()
	if err := a.remote.ReportAnalytics(ctx, summary); err != nil {
		a.log.Warn(fmt.Sprintf("failed to report analytics: %v", err))
	}
}

// GC destroys local cache entries outside the given bounds and reports how
// many were removed. Zero bounds disable the respective limit.
func (a *App) GC(maxAge time.Duration, maxBytes int64) error {
	removed, err := a.local.GC(maxAge, maxBytes)
	if err != nil {
		return zerr.Wrap(err, "cache gc failed")
	}
	a.log.Info(fmt.Sprintf("removed %d cache entries", removed))
	return nil
}

// Serve exposes the local store over the HTTP cache contract until the
// context is cancelled.
func (a *App) Serve(ctx context.Context, addr string) error {
	return server.New(addr, a.local, a.log).Run(ctx)
}
