// Package clock abstracts the source of "now" so the recurrence calculator
// can be driven by a fixed date in tests and in reproducible runs.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock is a settable, goroutine-safe Clock for tests.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock returns a MockClock frozen at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the frozen time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// EnvironmentClock pins "now" to the value of an environment variable when it
// is set, and otherwise reads the system clock. The variable accepts RFC3339
// or a bare YYYY-MM-DD date interpreted in location. It is read and parsed
// once, on first use.
type EnvironmentClock struct {
	envVar   string
	location *time.Location
	lookup   func(string) string

	once   sync.Once
	pinned time.Time
	ok     bool
}

// NewEnvironmentClock returns a clock pinned by envVar.
func NewEnvironmentClock(envVar string, location *time.Location) *EnvironmentClock {
	return &EnvironmentClock{envVar: envVar, location: location, lookup: os.Getenv}
}

// Now returns the pinned time, or time.Now() when the variable is empty or invalid.
func (e *EnvironmentClock) Now() time.Time {
	e.resolve()
	if e.ok {
		return e.pinned
	}
	return time.Now()
}

// Pinned reports whether the environment variable overrides the system clock.
func (e *EnvironmentClock) Pinned() bool {
	e.resolve()
	return e.ok
}

// resolve reads the variable once. An invalid value is reported a single time.
func (e *EnvironmentClock) resolve() {
	e.once.Do(func() {
		raw := strings.TrimSpace(e.lookup(e.envVar))
		if raw == "" {
			return
		}
		t, err := e.parse(raw)
		if err != nil {
			slog.Warn("ignoring pinned clock value, using system time",
				slog.String("envVar", e.envVar), slog.String("value", raw), slog.String("error", err.Error()))
			return
		}
		e.pinned, e.ok = t, true
	})
}

func (e *EnvironmentClock) parse(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if e.location == nil {
		return time.Time{}, errors.New("no location configured for a date without offset")
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, e.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339 or YYYY-MM-DD", s)
}
