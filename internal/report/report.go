// Package report renders batch outcomes for the terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"busfinder.onibus.dev/internal/batch"
	"busfinder.onibus.dev/internal/trips"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL formats v as Brazilian reais, e.g. "R$ 1.234,50".
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}

// Write renders every outcome of r followed by a one-line summary.
func Write(w io.Writer, r batch.RouteReport) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", r.Route.DisplayName)

	if errors.Is(r.Err, batch.ErrEmptySchedule) {
		ew.printf("  Nenhuma data programada para esta rota.\n")
		return ew.err
	}

	for _, o := range r.Outcomes {
		writeOutcome(ew, o)
	}
	ew.printf("%s\n", Summary(r))
	return ew.err
}

// WriteOutcome renders one date block.
func WriteOutcome(w io.Writer, o batch.DateOutcome) error {
	ew := &errWriter{w: w}
	writeOutcome(ew, o)
	return ew.err
}

// Summary counts dates by result.
func Summary(r batch.RouteReport) string {
	var withTrips, empty, malformed, failed int
	for _, o := range r.Outcomes {
		switch {
		case o.Failed():
			failed++
		case o.Kind == batch.KindMalformedPayload:
			malformed++
		case len(o.Trips) > 0:
			withTrips++
		default:
			empty++
		}
	}
	return fmt.Sprintf("%d datas: %d com viagens, %d sem viagens, %d com dados inválidos, %d falhas",
		len(r.Outcomes), withTrips, empty, malformed, failed)
}

func writeOutcome(ew *errWriter, o batch.DateOutcome) {
	ew.printf("\n== %s ==\n", o.Date)

	switch {
	case o.Failed():
		ew.printf("  falha (%s): %v\n", o.Kind, o.Err)
		return
	case o.Kind == batch.KindMalformedPayload:
		ew.printf("  resposta inválida (%s): %v\n", o.Kind, o.Err)
		return
	case len(o.Trips) == 0:
		ew.printf("  nenhuma viagem convencional\n")
		return
	}

	for _, t := range o.Trips {
		ew.printf("  %s\n", TripLine(t))
	}
}

// TripLine is one trip: times, general price, then any discount tiers.
func TripLine(t trips.CanonicalTrip) string {
	parts := []string{
		hhmm(t.Departure, t.DepartureTime) + " → " + hhmm(t.Arrival, t.ArrivalTime),
		FormatBRL(t.Price),
	}
	for _, tier := range []trips.Optional[trips.TierInfo]{t.FreePass, t.DisadvantagedYouth, t.DisadvantagedYouthHalf} {
		if info, ok := tier.Get(); ok {
			parts = append(parts, fmt.Sprintf("%s: %s (%d disp.)", info.Label, FormatBRL(info.Price), info.Availability))
		}
	}
	return strings.Join(parts, "  |  ")
}

// hhmm shows HH:MM, or the raw timestamp when it cannot be parsed.
func hhmm(raw string, parse func() (time.Time, bool)) string {
	ts, ok := parse()
	if !ok {
		return raw
	}
	return ts.Format("15:04")
}

// Dump pretty-prints v for debugging.
func Dump(w io.Writer, v any) {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	cfg.Fdump(w, v)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
