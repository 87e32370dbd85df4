// Package routes holds the fixed table of recurring routes and expands each
// into the concrete dates to search.
package routes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"busfinder.onibus.dev/internal/logging"
	"busfinder.onibus.dev/internal/schedule"
)

// RouteConfig is one recurring trip. DisplayName ends with the weekday label
// in parentheses, e.g. "São Paulo → Rio de Janeiro (Sexta-feira)".
type RouteConfig struct {
	DisplayName     string `validate:"required"`
	OriginCode      string `validate:"required,lowercase,excludesall=/?#"`
	DestinationCode string `validate:"required,lowercase,excludesall=/?#,nefield=OriginCode"`
}

// ScheduledRoute is a route together with the dates it will be searched on.
// Dates is empty when no weekday could be determined.
type ScheduledRoute struct {
	RouteConfig
	Weekday string
	Dates   []string
}

// Name is a short "origin→destination" form used in logs and errors.
func (r RouteConfig) Name() string {
	return r.OriginCode + "→" + r.DestinationCode
}

var registry = []RouteConfig{
	{
		DisplayName:     "São Paulo → Rio de Janeiro (Sexta-feira)",
		OriginCode:      "sao-paulo-tiete-sp",
		DestinationCode: "rio-de-janeiro-novo-rio-rj",
	},
	{
		DisplayName:     "Rio de Janeiro → São Paulo (Domingo)",
		OriginCode:      "rio-de-janeiro-novo-rio-rj",
		DestinationCode: "sao-paulo-tiete-sp",
	},
	{
		DisplayName:     "Belo Horizonte → São Paulo (Quinta-feira)",
		OriginCode:      "belo-horizonte-mg",
		DestinationCode: "sao-paulo-tiete-sp",
	},
	{
		DisplayName:     "São Paulo → Curitiba (Segunda-feira)",
		OriginCode:      "sao-paulo-barra-funda-sp",
		DestinationCode: "curitiba-pr",
	},
}

// Default returns a copy of the built-in route table.
func Default() []RouteConfig {
	out := make([]RouteConfig, len(registry))
	copy(out, registry)
	return out
}

// Validate checks every route.
func Validate(routes []RouteConfig) error {
	v := validator.New()
	for i, r := range routes {
		if err := v.Struct(r); err != nil {
			return fmt.Errorf("route %d (%q): %w", i+1, r.DisplayName, err)
		}
	}
	return nil
}

// Schedule expands route into count dates. A missing or unrecognized weekday
// is logged as a warning and yields an empty date list.
func Schedule(ctx context.Context, calc *schedule.Calculator, route RouteConfig, count int) ScheduledRoute {
	logger := logging.FromContext(ctx).With(slog.String("component", "route_schedule"))
	scheduled := ScheduledRoute{RouteConfig: route, Dates: []string{}}

	weekday, ok := schedule.WeekdayFromDisplayName(route.DisplayName)
	if !ok {
		logging.LogWarn(logger, "no weekday found in route name, skipping route", nil,
			slog.String("route", route.DisplayName))
		return scheduled
	}

	dates, err := calc.NextDates(weekday, count)
	if err != nil {
		logging.LogWarn(logger, "could not compute dates for route", err,
			slog.String("route", route.DisplayName), slog.String("weekday", weekday))
		return scheduled
	}

	scheduled.Weekday = weekday
	scheduled.Dates = dates
	return scheduled
}

// ScheduleAll applies Schedule to every route, preserving order.
func ScheduleAll(ctx context.Context, calc *schedule.Calculator, routes []RouteConfig, count int) []ScheduledRoute {
	out := make([]ScheduledRoute, 0, len(routes))
	for _, r := range routes {
		out = append(out, Schedule(ctx, calc, r, count))
	}
	return out
}
