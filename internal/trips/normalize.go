// Package trips flattens the booking site's search payload into canonical,
// tier-aware trip records.
package trips

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"busfinder.onibus.dev/internal/logging"
)

// ErrMalformedPayload marks a payload without a readable trips array.
var ErrMalformedPayload = errors.New("malformed trip payload")

// HasTripsArray reports whether body is a JSON object with a "trips" array.
func HasTripsArray(body []byte) bool {
	var p rawPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Trips == nil {
		return false
	}
	return isArray(*p.Trips)
}

// Normalize converts a captured payload into canonical trips, preserving the
// order of the source trips array. Only CONVENCIONAL trips are kept.
//
// The returned slice is never nil. When the payload is missing or unreadable
// the slice is empty, a warning is logged, and the error wraps
// ErrMalformedPayload so callers can tell "no trips" from "bad data".
func Normalize(ctx context.Context, payload *Payload) ([]CanonicalTrip, error) {
	logger := logging.FromContext(ctx).With(slog.String("component", "trip_normalizer"))
	out := []CanonicalTrip{}

	raw, err := decode(payload)
	if err != nil {
		logging.LogWarn(logger, "discarding unreadable trip payload", err)
		return out, err
	}

	for i, element := range raw.trips {
		var trip rawTrip
		if err := json.Unmarshal(element, &trip); err != nil {
			logging.LogWarn(logger, "skipping unreadable trip", err, slog.Int("index", i))
			continue
		}
		if trip.Service != ConventionalService {
			continue
		}
		out = append(out, canonicalize(raw.date, trip))
	}
	return out, nil
}

type decodedPayload struct {
	date  string
	trips []json.RawMessage
}

func decode(payload *Payload) (decodedPayload, error) {
	if payload == nil || len(bytes.TrimSpace(payload.Body)) == 0 {
		return decodedPayload{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	var p rawPayload
	if err := json.Unmarshal(payload.Body, &p); err != nil {
		return decodedPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if p.Trips == nil || !isArray(*p.Trips) {
		return decodedPayload{}, fmt.Errorf("%w: no trips array", ErrMalformedPayload)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(*p.Trips, &elements); err != nil {
		return decodedPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	date := strings.TrimSpace(p.Departs)
	if date == "" {
		date = payload.Date
	}
	return decodedPayload{date: date, trips: elements}, nil
}

func canonicalize(date string, trip rawTrip) CanonicalTrip {
	out := CanonicalTrip{
		Date:                   date,
		ServiceType:            trip.Service,
		Departure:              trip.Departure,
		Arrival:                trip.Arrival,
		Price:                  trip.Pricing.Total.value,
		FreePass:               None[TierInfo](),
		DisadvantagedYouth:     None[TierInfo](),
		DisadvantagedYouthHalf: None[TierInfo](),
	}

	if general, ok := findTier(trip.PassengerTypes, TierGeneral); ok && general.Total.valid {
		out.Price = general.Total.value
	}

	// Free pass counts only when it really costs nothing.
	if fp, ok := findTier(trip.PassengerTypes, TierFreePass); ok && fp.Total.valid && fp.Total.value == 0 {
		out.FreePass = Some(TierInfo{Price: 0, Availability: int(fp.Availability), Label: LabelFreePass})
	}

	if y, ok := findTier(trip.PassengerTypes, TierDisadvantagedYouth); ok {
		out.DisadvantagedYouth = Some(TierInfo{Price: y.Total.value, Availability: int(y.Availability), Label: LabelDisadvantagedYouth})
	}

	if y, ok := findTier(trip.PassengerTypes, TierDisadvantagedYouthHalf); ok {
		out.DisadvantagedYouthHalf = Some(TierInfo{Price: y.Total.value, Availability: int(y.Availability), Label: LabelDisadvantagedYouthHalf})
	}

	return out
}

func findTier(tiers []passengerType, kind string) (passengerType, bool) {
	for _, t := range tiers {
		if t.Type == kind {
			return t, true
		}
	}
	return passengerType{}, false
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
