// Package schedule turns the weekday a route runs on into concrete future
// travel dates.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"busfinder.onibus.dev/internal/clock"
)

// DateLayout is the calendar form used in search URLs and reports.
const DateLayout = "2006-01-02"

var (
	ErrUnknownWeekday = errors.New("unknown weekday")
	ErrNegativeCount  = errors.New("date count must not be negative")
)

// labels is indexed by time.Weekday, so Sunday is ordinal 0.
var labels = [7]string{
	"Domingo",
	"Segunda-feira",
	"Terça-feira",
	"Quarta-feira",
	"Quinta-feira",
	"Sexta-feira",
	"Sábado",
}

var trailingParenthetical = regexp.MustCompile(`\(([^()]*)\)\s*$`)

// Labels returns the seven recognized weekday labels, Sunday first.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}

// Label returns the label for d.
func Label(d time.Weekday) string {
	return labels[d]
}

// ParseWeekday maps an exact label to its weekday.
func ParseWeekday(label string) (time.Weekday, error) {
	for i, l := range labels {
		if l == label {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, label)
}

// WeekdayFromDisplayName extracts the trailing parenthesized weekday label of
// a route name such as "São Paulo → Curitiba (Sexta-feira)". ok is false when
// there is no trailing parenthetical or it is not a recognized label.
func WeekdayFromDisplayName(name string) (label string, ok bool) {
	m := trailingParenthetical.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	token := strings.TrimSpace(m[1])
	if _, err := ParseWeekday(token); err != nil {
		return "", false
	}
	return token, true
}

// Calculator produces recurring dates relative to its clock.
type Calculator struct {
	clock    clock.Clock
	location *time.Location
}

// NewCalculator returns a Calculator that reads "today" from c in loc.
// A nil loc means UTC.
func NewCalculator(c clock.Clock, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{clock: c, location: loc}
}

// NextDates returns count dates (YYYY-MM-DD) falling on weekday, seven days
// apart, the first on or after today. When today is that weekday the first
// date is today.
func (c *Calculator) NextDates(weekday string, count int) ([]string, error) {
	target, err := ParseWeekday(weekday)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCount, count)
	}

	days := c.NextDays(target, count)
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = d.Format(DateLayout)
	}
	return dates, nil
}

// NextDays is NextDates for a parsed weekday, returning midnight in the
// calculator's location.
func (c *Calculator) NextDays(target time.Weekday, count int) []time.Time {
	if count < 0 {
		count = 0
	}
	now := c.clock.Now().In(c.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location)
	offset := (int(target) - int(today.Weekday()) + 7) % 7

	days := make([]time.Time, count)
	for i := range days {
		days[i] = today.AddDate(0, 0, offset+7*i)
	}
	return days
}
