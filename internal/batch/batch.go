// Package batch runs the fetch-and-normalize steps across every date of a
// scheduled route, one date at a time, collecting a categorized outcome for
// each date instead of stopping at the first failure.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"busfinder.onibus.dev/internal/browser"
	"busfinder.onibus.dev/internal/fetcher"
	"busfinder.onibus.dev/internal/logging"
	"busfinder.onibus.dev/internal/metrics"
	"busfinder.onibus.dev/internal/routes"
	"busfinder.onibus.dev/internal/trips"
)

// ErrEmptySchedule is reported for a route that has no dates to search.
var ErrEmptySchedule = errors.New("route has no scheduled dates")

// ErrFetchPanic wraps a panic recovered from a single date's fetch.
var ErrFetchPanic = errors.New("fetch panicked")

// OutcomeKind categorizes what happened to one date.
type OutcomeKind string

const (
	KindOK               OutcomeKind = "ok"
	KindCaptureTimeout   OutcomeKind = "capture_timeout"
	KindNavigationFailed OutcomeKind = "navigation_failed"
	KindFetchFailed      OutcomeKind = "fetch_failed"
	KindMalformedPayload OutcomeKind = "malformed_payload"
)

// DateOutcome is the result for one date. Trips is non-nil for every kind;
// Err is nil only for KindOK.
type DateOutcome struct {
	Date  string
	Kind  OutcomeKind
	Trips []trips.CanonicalTrip
	Err   error
}

// Failed reports whether the fetch itself failed. A malformed payload is not
// a fetch failure.
func (o DateOutcome) Failed() bool {
	switch o.Kind {
	case KindCaptureTimeout, KindNavigationFailed, KindFetchFailed:
		return true
	default:
		return false
	}
}

// RouteReport collects the outcomes of one run, in date order.
type RouteReport struct {
	Route    routes.ScheduledRoute
	RunID    string
	Outcomes []DateOutcome
	// Err is ErrEmptySchedule when nothing was attempted.
	Err error
}

// Fetcher is the part of fetcher.Engine the runner needs.
type Fetcher interface {
	Fetch(ctx context.Context, date, origin, destination string) (*trips.Payload, error)
}

// Runner sequences fetches for a route. It is not safe for concurrent Run
// calls; dates are strictly sequential by construction.
type Runner struct {
	fetcher Fetcher
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	// OnOutcome, when set, is called after each date completes.
	OnOutcome func(DateOutcome)
}

// NewRunner returns a Runner that starts at most one fetch per interval.
// A non-positive interval disables pacing. logger and m may be nil.
func NewRunner(f Fetcher, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Runner {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher: f,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(slog.String("component", "batch")),
		metrics: m,
	}
}

// Run fetches and normalizes every date of route in order. A failure on one
// date is recorded and the run moves on to the next. Cancelling ctx stops the
// run after the current date; the dates not attempted are recorded as
// fetch_failed with the context error.
func (r *Runner) Run(ctx context.Context, route routes.ScheduledRoute) RouteReport {
	report := RouteReport{
		Route:    route,
		RunID:    uuid.NewString(),
		Outcomes: make([]DateOutcome, 0, len(route.Dates)),
	}
	logger := r.logger.With(
		slog.String("run_id", report.RunID),
		slog.String("route", route.DisplayName),
	)
	ctx = logging.WithLogger(ctx, logger)

	if len(route.Dates) == 0 {
		report.Err = fmt.Errorf("%s: %w", route.DisplayName, ErrEmptySchedule)
		logging.LogWarn(logger, "nothing to fetch", report.Err)
		return report
	}

	logging.LogOperation(logger, "batch_started", slog.Int("dates", len(route.Dates)))
	for i, date := range route.Dates {
		if err := r.limiter.Wait(ctx); err != nil {
			r.abandon(&report, route.Dates[i:], err, logger)
			break
		}

		outcome := r.runDate(ctx, route, date, logger.With(slog.String("date", date)))
		report.Outcomes = append(report.Outcomes, outcome)
		if r.OnOutcome != nil {
			r.OnOutcome(outcome)
		}
	}

	logging.LogOperation(logger, "batch_finished", slog.Int("dates", len(report.Outcomes)))
	return report
}

func (r *Runner) runDate(ctx context.Context, route routes.ScheduledRoute, date string, logger *slog.Logger) (outcome DateOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%w: %v", ErrFetchPanic, rec)
			logging.LogError(logger, "date failed", err)
			outcome = failed(date, KindFetchFailed, err)
		}
	}()

	payload, err := r.fetcher.Fetch(ctx, date, route.OriginCode, route.DestinationCode)
	if err != nil {
		logging.LogError(logger, "date failed", err)
		return failed(date, classify(err), err)
	}

	found, err := trips.Normalize(ctx, payload)
	if err != nil {
		r.metrics.IncMalformed()
		return DateOutcome{Date: date, Kind: KindMalformedPayload, Trips: found, Err: err}
	}

	r.metrics.AddTrips(len(found))
	logger.Info("date complete", slog.Int("trips", len(found)))
	return DateOutcome{Date: date, Kind: KindOK, Trips: found}
}

func (r *Runner) abandon(report *RouteReport, dates []string, err error, logger *slog.Logger) {
	logging.LogWarn(logger, "batch interrupted", err, slog.Int("skipped", len(dates)))
	for _, date := range dates {
		outcome := failed(date, KindFetchFailed, fmt.Errorf("fetch %s skipped: %w", date, err))
		report.Outcomes = append(report.Outcomes, outcome)
		if r.OnOutcome != nil {
			r.OnOutcome(outcome)
		}
	}
}

func failed(date string, kind OutcomeKind, err error) DateOutcome {
	return DateOutcome{Date: date, Kind: kind, Trips: []trips.CanonicalTrip{}, Err: err}
}

func classify(err error) OutcomeKind {
	switch {
	case errors.Is(err, fetcher.ErrCaptureTimeout):
		return KindCaptureTimeout
	case errors.Is(err, browser.ErrNavigation):
		return KindNavigationFailed
	default:
		return KindFetchFailed
	}
}
