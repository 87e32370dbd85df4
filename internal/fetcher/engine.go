// Package fetcher loads a booking search page in a headless browser and
// captures the trip search API response the page requests after load.
//
// The trips are not in the initial HTML; the page fetches them from an
// internal API once it is running, so the response is intercepted off the
// network instead of scraped from the DOM.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"busfinder.onibus.dev/internal/browser"
	"busfinder.onibus.dev/internal/logging"
	"busfinder.onibus.dev/internal/metrics"
	"busfinder.onibus.dev/internal/schedule"
	"busfinder.onibus.dev/internal/trips"
)

// ErrCaptureTimeout marks a fetch where the API response never showed up.
var ErrCaptureTimeout = errors.New("timed out waiting for trip search response")

// CaptureTimeoutError names the date and route that timed out.
type CaptureTimeoutError struct {
	Date  string
	Route string
	After time.Duration
}

func (e *CaptureTimeoutError) Error() string {
	return fmt.Sprintf("no trip search response for %s on %s after %s", e.Route, e.Date, e.After)
}

func (e *CaptureTimeoutError) Unwrap() error {
	return ErrCaptureTimeout
}

// Engine performs one isolated browser fetch per call.
type Engine struct {
	config   Config
	launcher browser.Launcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewEngine validates config and returns an Engine. m may be nil.
func NewEngine(config Config, launcher browser.Launcher, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if launcher == nil {
		return nil, errors.New("fetcher: nil browser launcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:   config,
		launcher: launcher,
		logger:   logger.With(slog.String("component", "fetcher")),
		metrics:  m,
	}, nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.config
}

// Fetch loads the search page for date and returns the first captured API
// payload carrying a trips array. Every call launches its own browser and
// closes it before returning, on every path.
func (e *Engine) Fetch(ctx context.Context, date, origin, destination string) (payload *trips.Payload, err error) {
	route := origin + "→" + destination
	logger := e.logger.With(slog.String("date", date), slog.String("route", route))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.ObserveFetch(metrics.OutcomeError, time.Since(start))
			panic(r)
		}
		e.metrics.ObserveFetch(outcomeLabel(err), time.Since(start))
	}()

	if _, perr := time.Parse(schedule.DateLayout, date); perr != nil {
		return nil, fmt.Errorf("fetch %s: invalid date %q: %w", route, date, perr)
	}
	target := e.config.SearchURL(date, origin, destination)

	session, err := e.launcher.Launch(ctx)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			// Chrome dying under a cancelled context rarely reports the cause.
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		err = &launchError{err: err}
		if ctx.Err() != nil {
			logging.LogWarn(logger, "browser launch interrupted", err)
		} else {
			logging.LogError(logger, "failed to launch browser", err)
		}
		return nil, err
	}
	defer e.closeSession(session, logger)

	logging.LogOperation(logger, "fetching_departures", slog.String("url", target))
	payload, err = e.capture(ctx, session, target, date, route)
	if err != nil {
		logging.LogError(logger, "fetch failed", err)
		return nil, err
	}
	logger.Debug("captured trip search response", slog.String("api_url", payload.URL), slog.Int("bytes", len(payload.Body)))
	return payload, nil
}

// FetchTrips is Fetch for callers that only care about data: failures are
// logged by Fetch and reported as a nil payload.
func (e *Engine) FetchTrips(ctx context.Context, date, origin, destination string) *trips.Payload {
	payload, err := e.Fetch(ctx, date, origin, destination)
	if err != nil {
		return nil
	}
	return payload
}

// capture races the first matching response against navigation failure, the
// capture timer and ctx. The observer and the navigation goroutine are torn
// down whichever side wins.
func (e *Engine) capture(ctx context.Context, session browser.Session, target, date, route string) (*trips.Payload, error) {
	responses, stopObserving := session.Observe(e.config.MatchesAPI)
	defer stopObserving()

	navCtx, cancelNav := context.WithTimeout(ctx, e.config.NavigationTimeout)
	defer cancelNav()

	navDone := make(chan error, 1)
	go func() {
		navDone <- session.Navigate(navCtx, target)
	}()

	timer := time.NewTimer(e.config.CaptureTimeout)
	defer timer.Stop()

	for {
		select {
		case resp := <-responses:
			if !trips.HasTripsArray(resp.Body) {
				continue
			}
			return &trips.Payload{URL: resp.URL, Date: date, Body: resp.Body}, nil

		case err := <-navDone:
			if err != nil {
				if !errors.Is(err, browser.ErrNavigation) {
					err = fmt.Errorf("%w: %w", browser.ErrNavigation, err)
				}
				return nil, fmt.Errorf("load search page for %s on %s: %w", route, date, err)
			}
			// The document is up; the API call may still be in flight.
			navDone = nil

		case <-timer.C:
			return nil, &CaptureTimeoutError{Date: date, Route: route, After: e.config.CaptureTimeout}

		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s on %s: %w", route, date, ctx.Err())
		}
	}
}

func (e *Engine) closeSession(session browser.Session, logger *slog.Logger) {
	if err := session.Close(); err != nil {
		e.metrics.IncCloseError()
		logging.LogError(logger, "failed to close browser session", err)
	}
}

type launchError struct {
	err error
}

func (e *launchError) Error() string { return "launch browser: " + e.err.Error() }
func (e *launchError) Unwrap() error { return e.err }

func outcomeLabel(err error) string {
	var launchErr *launchError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrCaptureTimeout):
		return metrics.OutcomeCaptureTimeout
	case errors.Is(err, browser.ErrNavigation):
		return metrics.OutcomeNavigation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case errors.As(err, &launchErr):
		return metrics.OutcomeLaunch
	default:
		return metrics.OutcomeError
	}
}
