package main

import (
	"fmt"
	"io"

	"busfinder.onibus.dev/internal/app"
	"busfinder.onibus.dev/internal/appconf"
	"busfinder.onibus.dev/internal/batch"
	"busfinder.onibus.dev/internal/browser"
	"busfinder.onibus.dev/internal/clock"
	"busfinder.onibus.dev/internal/fetcher"
	"busfinder.onibus.dev/internal/logging"
	"busfinder.onibus.dev/internal/metrics"
	"busfinder.onibus.dev/internal/routes"
	"busfinder.onibus.dev/internal/schedule"
)

// BuildApplication wires every component from cfg. Logs go to logOutput.
func BuildApplication(cfg appconf.Config, logOutput io.Writer) (*app.Application, error) {
	jsonLogs := cfg.JSONLogs || cfg.Env == appconf.Production
	logger := logging.NewLogger(logOutput, cfg.Verbose, jsonLogs)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load time zone: %w", err)
	}
	clk := clock.NewEnvironmentClock(appconf.TodayEnvVar, loc)
	if clk.Pinned() {
		logger.Info("using pinned date", "envVar", appconf.TodayEnvVar, "now", clk.Now().Format(schedule.DateLayout))
	}

	registry := routes.Default()
	if err := routes.Validate(registry); err != nil {
		return nil, err
	}

	m := metrics.NewWithLogger(logger)
	launcher := browser.NewChromeLauncher(cfg.Chrome, logger)
	engine, err := fetcher.NewEngine(cfg.Fetch, launcher, logger, m)
	if err != nil {
		return nil, err
	}

	return &app.Application{
		Config:     cfg,
		Logger:     logger,
		Clock:      clk,
		Metrics:    m,
		Calculator: schedule.NewCalculator(clk, loc),
		Routes:     registry,
		Engine:     engine,
		Runner:     batch.NewRunner(engine, cfg.FetchInterval, logger, m),
	}, nil
}
