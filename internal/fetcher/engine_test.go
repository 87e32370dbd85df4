package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busfinder.onibus.dev/internal/browser"
	"busfinder.onibus.dev/internal/metrics"
)

const apiURL = "https://api.passagens.example.com.br/api/v2/search?type=bus&from=a&to=b"

type fakeSession struct {
	mu sync.Mutex

	// responses are emitted, through the registered matcher, once Navigate runs.
	responses   []browser.Response
	navErr      error
	blockNav    bool
	panicOnObs  bool
	closeErr    error
	closed      int
	stopped     int
	navigatedTo string
	match       func(string) bool
	ch          chan browser.Response
}

func (s *fakeSession) Observe(match func(string) bool) (<-chan browser.Response, func()) {
	if s.panicOnObs {
		panic("observer exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = match
	s.ch = make(chan browser.Response, len(s.responses)+1)
	return s.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped++
	}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navigatedTo = url
	for _, r := range s.responses {
		if s.match(r.URL) {
			s.ch <- r
		}
	}
	navErr, block := s.navErr, s.blockNav
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return navErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *fakeSession) counts() (closed, stopped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.stopped
}

type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches int
}

func (l *fakeLauncher) Launch(context.Context) (browser.Session, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NavigationTimeout = 200 * time.Millisecond
	cfg.CaptureTimeout = 100 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, launcher browser.Launcher) (*Engine, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	e, err := NewEngine(cfg, launcher, nil, m)
	require.NoError(t, err)
	return e, m
}

func fetchCount(m *metrics.Metrics, outcome string) float64 {
	return testutil.ToFloat64(m.FetchesTotal.WithLabelValues(outcome))
}

func TestFetch_CapturesFirstMatchingPayload(t *testing.T) {
	session := &fakeSession{responses: []browser.Response{
		{URL: "https://passagens.example.com.br/static/app.js", Body: []byte("console.log(1)")},
		{URL: "https://api.passagens.example.com.br/api/v2/search?type=train", Body: []byte(`{"trips": []}`)},
		{URL: apiURL, Body: []byte(`<html>not json</html>`)},
		{URL: apiURL, Body: []byte(`{"results": []}`)},
		{URL: apiURL, Body: []byte(`{"departs": "2025-01-02", "trips": [{"service": "CONVENCIONAL"}]}`)},
		{URL: apiURL, Body: []byte(`{"departs": "2025-01-02", "trips": []}`)},
	}}
	launcher := &fakeLauncher{session: session}
	e, m := newTestEngine(t, testConfig(), launcher)

	payload, err := e.Fetch(context.Background(), "2025-01-02", "sao-paulo-sp", "rio-de-janeiro-rj")

	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, apiURL, payload.URL)
	assert.Equal(t, "2025-01-02", payload.Date)
	assert.JSONEq(t, `{"departs": "2025-01-02", "trips": [{"service": "CONVENCIONAL"}]}`, string(payload.Body))
	assert.Equal(t,
		"https://passagens.example.com.br/search/sao-paulo-sp/rio-de-janeiro-rj/2025-01-02/p/1/departures?lang=pt-BR",
		session.navigatedTo)

	closed, stopped := session.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, launcher.launches)
	assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeOK))
}

func TestFetch_NavigationFailure(t *testing.T) {
	dnsErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	session := &fakeSession{navErr: dnsErr}
	e, m := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	payload, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	assert.Nil(t, payload)
	assert.ErrorIs(t, err, browser.ErrNavigation)
	assert.ErrorIs(t, err, dnsErr)
	assert.False(t, errors.Is(err, ErrCaptureTimeout))
	assert.Contains(t, err.Error(), "2025-01-02")

	closed, stopped := session.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeNavigation))
}

func TestFetch_NavigationTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationTimeout = 20 * time.Millisecond
	cfg.CaptureTimeout = time.Second
	session := &fakeSession{blockNav: true}
	e, _ := newTestEngine(t, cfg, &fakeLauncher{session: session})

	_, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	assert.ErrorIs(t, err, browser.ErrNavigation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_CaptureTimeout(t *testing.T) {
	session := &fakeSession{responses: []browser.Response{
		{URL: apiURL, Body: []byte(`{"error": "rate limited"}`)},
	}}
	e, m := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	start := time.Now()
	payload, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	assert.Nil(t, payload)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	var timeoutErr *CaptureTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "2025-01-02", timeoutErr.Date)
	assert.Equal(t, "a→b", timeoutErr.Route)
	assert.Contains(t, err.Error(), "a→b")
	assert.Contains(t, err.Error(), "2025-01-02")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	closed, stopped := session.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeCaptureTimeout))
}

func TestFetch_ContextCanceled(t *testing.T) {
	cfg := testConfig()
	cfg.CaptureTimeout = time.Second
	session := &fakeSession{}
	e, m := newTestEngine(t, cfg, &fakeLauncher{session: session})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Fetch(ctx, "2025-01-02", "a", "b")

	assert.Error(t, err)
	closed, _ := session.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, float64(1),
		fetchCount(m, metrics.OutcomeCanceled)+fetchCount(m, metrics.OutcomeNavigation))
}

func TestFetch_LaunchFailure(t *testing.T) {
	launchErr := errors.New("chrome not found")
	e, m := newTestEngine(t, testConfig(), &fakeLauncher{err: launchErr})

	payload, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	assert.Nil(t, payload)
	assert.ErrorIs(t, err, launchErr)
	assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeLaunch))
}

func TestFetch_LaunchInterruptedCountsAsCanceled(t *testing.T) {
	t.Run("launcher reports cancellation", func(t *testing.T) {
		e, m := newTestEngine(t, testConfig(), &fakeLauncher{err: fmt.Errorf("start chrome: %w", context.Canceled)})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Fetch(ctx, "2025-01-02", "a", "b")

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeCanceled))
		assert.Equal(t, float64(0), fetchCount(m, metrics.OutcomeLaunch))
	})

	t.Run("launcher hides the cause", func(t *testing.T) {
		chromeErr := errors.New("websocket url timeout reached")
		e, m := newTestEngine(t, testConfig(), &fakeLauncher{err: chromeErr})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Fetch(ctx, "2025-01-02", "a", "b")

		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, chromeErr)
		assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeCanceled))
		assert.Equal(t, float64(0), fetchCount(m, metrics.OutcomeLaunch))
	})
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, metrics.OutcomeOK},
		{"capture timeout", &CaptureTimeoutError{Date: "2025-01-02", Route: "a→b"}, metrics.OutcomeCaptureTimeout},
		{"navigation deadline", fmt.Errorf("%w: %w", browser.ErrNavigation, context.DeadlineExceeded), metrics.OutcomeNavigation},
		{"launch canceled", &launchError{err: context.Canceled}, metrics.OutcomeCanceled},
		{"launch failed", &launchError{err: errors.New("chrome not found")}, metrics.OutcomeLaunch},
		{"canceled", context.Canceled, metrics.OutcomeCanceled},
		{"other", errors.New("boom"), metrics.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, outcomeLabel(tt.err))
		})
	}
}

func TestFetch_InvalidDateDoesNotLaunch(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}
	e, _ := newTestEngine(t, testConfig(), launcher)

	_, err := e.Fetch(context.Background(), "02/01/2025", "a", "b")

	assert.Error(t, err)
	assert.Equal(t, 0, launcher.launches)
}

func TestFetch_CloseErrorDoesNotMaskResult(t *testing.T) {
	session := &fakeSession{
		closeErr:  errors.New("browser already gone"),
		responses: []browser.Response{{URL: apiURL, Body: []byte(`{"trips": []}`)}},
	}
	e, m := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	payload, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	require.NoError(t, err)
	assert.NotNil(t, payload)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BrowserCloseErrors))
}

func TestFetch_CloseErrorDoesNotMaskFailure(t *testing.T) {
	navErr := errors.New("connection refused")
	session := &fakeSession{navErr: navErr, closeErr: errors.New("close failed")}
	e, _ := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	_, err := e.Fetch(context.Background(), "2025-01-02", "a", "b")

	assert.ErrorIs(t, err, navErr)
	assert.NotContains(t, err.Error(), "close failed")
}

func TestFetch_PanicStillClosesSession(t *testing.T) {
	session := &fakeSession{panicOnObs: true}
	e, m := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	assert.Panics(t, func() {
		_, _ = e.Fetch(context.Background(), "2025-01-02", "a", "b")
	})

	closed, _ := session.counts()
	assert.Equal(t, 1, closed)
	assert.Equal(t, float64(1), fetchCount(m, metrics.OutcomeError))
}

func TestFetchTrips_ReturnsNilOnFailure(t *testing.T) {
	session := &fakeSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	e, _ := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	assert.Nil(t, e.FetchTrips(context.Background(), "2025-01-02", "a", "b"))
}

func TestFetchTrips_ReturnsPayload(t *testing.T) {
	session := &fakeSession{responses: []browser.Response{{URL: apiURL, Body: []byte(`{"trips": []}`)}}}
	e, _ := newTestEngine(t, testConfig(), &fakeLauncher{session: session})

	p := e.FetchTrips(context.Background(), "2025-01-02", "a", "b")
	require.NotNil(t, p)
	assert.Equal(t, apiURL, p.URL)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewEngine(testConfig(), nil, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.CaptureTimeout = 0
	_, err = NewEngine(cfg, &fakeLauncher{}, nil, nil)
	assert.Error(t, err)

	e, err := NewEngine(testConfig(), &fakeLauncher{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, testConfig(), e.Config())
}
