package trips

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ConventionalService is the only service class the normalizer reports on.
const ConventionalService = "CONVENCIONAL"

// Passenger tier types as they appear in passenger_types[].type.
const (
	TierGeneral                = "general"
	TierFreePass               = "free_pass"
	TierDisadvantagedYouth     = "disadvantaged_youth"
	TierDisadvantagedYouthHalf = "disadvantaged_youth_half"
)

// Display labels for the discount tiers.
const (
	LabelFreePass               = "Passe Livre"
	LabelDisadvantagedYouth     = "Jovem de Baixa Renda (100%)"
	LabelDisadvantagedYouthHalf = "Jovem de Baixa Renda (50%)"
)

// Payload is a captured search API response. Body is the raw JSON exactly as
// it came off the wire; it is decoded by Normalize. Date is the YYYY-MM-DD
// date that was searched for, used when the body carries no "departs".
type Payload struct {
	URL  string
	Date string
	Body []byte
}

type rawPayload struct {
	Departs string           `json:"departs"`
	Trips   *json.RawMessage `json:"trips"`
}

type rawTrip struct {
	Service string `json:"service"`
	Pricing struct {
		Total amount `json:"total"`
	} `json:"pricing"`
	Departure      string          `json:"departure"`
	Arrival        string          `json:"arrival"`
	PassengerTypes []passengerType `json:"passenger_types"`
}

type passengerType struct {
	Type         string `json:"type"`
	Total        amount `json:"total"`
	Availability count  `json:"availability"`
}

// amount accepts both JSON numbers and numeric strings ("75.00"). valid is
// false when the value was absent or did not parse.
type amount struct {
	value float64
	valid bool
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = amount{}
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = decimalPoint(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*a = amount{}
		return nil
	}
	*a = amount{value: v, valid: true}
	return nil
}

// decimalPoint rewrites a localized number into the form ParseFloat expects.
// When both separators occur the rightmost one is the decimal mark and the
// other groups thousands ("1,234.50" and "1.234,50" are both 1234.5). A lone
// comma is a decimal mark ("75,00"); a repeated one only groups digits.
func decimalPoint(s string) string {
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// count is a seat count that tolerates floats (3.0) and numeric strings ("3")
// as well as plain integers. Fractions are truncated; anything unreadable is 0.
type count int

func (c *count) UnmarshalJSON(data []byte) error {
	var a amount
	if err := a.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = count(a.value)
	return nil
}

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsPresent reports whether a value is held.
func (o Optional[T]) IsPresent() bool {
	return o.ok
}

// TierInfo describes one discounted passenger tier of a trip.
type TierInfo struct {
	Price        float64
	Availability int
	Label        string
}

// CanonicalTrip is one conventional-service departure. Discount tiers are
// present only when the source trip lists them.
type CanonicalTrip struct {
	Date                   string
	ServiceType            string
	Departure              string
	Arrival                string
	Price                  float64
	FreePass               Optional[TierInfo]
	DisadvantagedYouth     Optional[TierInfo]
	DisadvantagedYouthHalf Optional[TierInfo]
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// DepartureTime parses Departure. ok is false for unrecognized formats.
func (t CanonicalTrip) DepartureTime() (time.Time, bool) {
	return parseTimestamp(t.Departure)
}

// ArrivalTime parses Arrival. ok is false for unrecognized formats.
func (t CanonicalTrip) ArrivalTime() (time.Time, bool) {
	return parseTimestamp(t.Arrival)
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
