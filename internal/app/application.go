package app

import (
	"context"
	"log/slog"

	"busfinder.onibus.dev/internal/appconf"
	"busfinder.onibus.dev/internal/batch"
	"busfinder.onibus.dev/internal/clock"
	"busfinder.onibus.dev/internal/fetcher"
	"busfinder.onibus.dev/internal/metrics"
	"busfinder.onibus.dev/internal/routes"
	"busfinder.onibus.dev/internal/schedule"
)

// Application holds the dependencies of one busfinder run.
type Application struct {
	Config     appconf.Config
	Logger     *slog.Logger
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Calculator *schedule.Calculator
	Routes     []routes.RouteConfig
	Engine     *fetcher.Engine
	Runner     *batch.Runner
}

// Schedule expands every configured route into its upcoming dates.
func (a *Application) Schedule(ctx context.Context) []routes.ScheduledRoute {
	return routes.ScheduleAll(ctx, a.Calculator, a.Routes, a.Config.Count)
}

// Close flushes the run's metrics to the configured textfile, if any.
func (a *Application) Close() error {
	return a.Metrics.WriteTextfile(a.Config.MetricsFile)
}
