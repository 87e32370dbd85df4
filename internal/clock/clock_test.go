package clock

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	result := RealClock{}.Now()
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(48 * time.Hour)
	assert.Equal(t, time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC), c.Now())

	c.Advance(-time.Hour)
	assert.Equal(t, time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC), c.Now())

	later := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	c := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = c.Now()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Advance(time.Second)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, time.Date(2025, 1, 1, 0, 16, 40, 0, time.UTC), c.Now())
}

func TestEnvironmentClock(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)

	tests := []struct {
		name     string
		value    string
		location *time.Location
		expected time.Time
		pinned   bool
	}{
		{
			name:     "RFC3339",
			value:    "2025-01-07T10:30:00Z",
			location: saoPaulo,
			expected: time.Date(2025, 1, 7, 10, 30, 0, 0, time.UTC),
			pinned:   true,
		},
		{
			name:     "date only uses location",
			value:    "2025-01-07",
			location: saoPaulo,
			expected: time.Date(2025, 1, 7, 0, 0, 0, 0, saoPaulo),
			pinned:   true,
		},
		{
			name:     "date with surrounding whitespace",
			value:    " 2025-01-07\n",
			location: saoPaulo,
			expected: time.Date(2025, 1, 7, 0, 0, 0, 0, saoPaulo),
			pinned:   true,
		},
		{
			name:     "date only without location falls back",
			value:    "2025-01-07",
			location: nil,
			pinned:   false,
		},
		{
			name:     "garbage falls back",
			value:    "next tuesday",
			location: saoPaulo,
			pinned:   false,
		},
		{
			name:     "unset falls back",
			value:    "",
			location: saoPaulo,
			pinned:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BUSFINDER_TEST_TODAY", tt.value)
			c := NewEnvironmentClock("BUSFINDER_TEST_TODAY", tt.location)

			assert.Equal(t, tt.pinned, c.Pinned())
			if tt.pinned {
				assert.True(t, tt.expected.Equal(c.Now()), "expected %v, got %v", tt.expected, c.Now())
				return
			}
			before := time.Now()
			result := c.Now()
			after := time.Now()
			assert.False(t, result.Before(before))
			assert.False(t, result.After(after))
		})
	}
}

func TestEnvironmentClock_ParsesOnce(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	lookups := 0
	c := &EnvironmentClock{
		envVar:   "BUSFINDER_TEST_TODAY",
		location: time.UTC,
		lookup: func(string) string {
			lookups++
			return "next tuesday"
		},
	}

	for i := 0; i < 5; i++ {
		before := time.Now()
		assert.False(t, c.Now().Before(before))
	}
	assert.False(t, c.Pinned())

	assert.Equal(t, 1, lookups)
	assert.Equal(t, 1, strings.Count(logs.String(), "ignoring pinned clock value"))
	assert.Contains(t, logs.String(), "value=\"next tuesday\"")
}

func TestEnvironmentClock_PinnedValueIsStable(t *testing.T) {
	value := "2025-01-07"
	c := &EnvironmentClock{
		envVar:   "BUSFINDER_TEST_TODAY",
		location: time.UTC,
		lookup:   func(string) string { return value },
	}

	first := c.Now()
	value = "2030-12-31"

	assert.True(t, c.Pinned())
	assert.Equal(t, first, c.Now())
	assert.True(t, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC).Equal(first), "got %v", first)
}
