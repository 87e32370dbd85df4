// Package appconf reads the command-line flags, with BUSFINDER_* environment
// variables as their defaults.
package appconf

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Timezone must resolve on hosts without a zoneinfo database

	"github.com/go-playground/validator/v10"

	"busfinder.onibus.dev/internal/browser"
	"busfinder.onibus.dev/internal/fetcher"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment maps a name to an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	default:
		return Development, fmt.Errorf("unknown environment %q", s)
	}
}

// TodayEnvVar pins the current date for reproducible runs.
const TodayEnvVar = "BUSFINDER_TODAY"

type Config struct {
	// Count is how many upcoming dates each route is searched on.
	Count int `validate:"gte=0,lte=52"`
	// RouteIndex selects a route (1-based) without prompting. 0 prompts.
	RouteIndex int `validate:"gte=0"`

	Env      Environment
	Verbose  bool
	JSONLogs bool

	Timezone      string        `validate:"required,timezone"`
	FetchInterval time.Duration `validate:"gte=0"`
	MetricsFile   string
	Dump          bool

	Fetch  fetcher.Config
	Chrome browser.ChromeOptions
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Count:         4,
		Env:           Development,
		Timezone:      "America/Sao_Paulo",
		FetchInterval: 2 * time.Second,
		Fetch:         fetcher.DefaultConfig(),
		Chrome:        browser.DefaultChromeOptions(),
	}
}

// Load parses args. getenv supplies the defaults; pass os.Getenv in main.
// Usage and flag errors are written to output.
func Load(args []string, getenv func(string) string, output io.Writer) (Config, error) {
	def := Default()
	env := envReader{getenv: getenv}

	cfg := Config{}
	var envName string

	fs := flag.NewFlagSet("busfinder", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.IntVar(&cfg.Count, "count", env.getEnvInt("BUSFINDER_COUNT", def.Count), "number of upcoming dates per route")
	fs.IntVar(&cfg.RouteIndex, "route", env.getEnvInt("BUSFINDER_ROUTE", 0), "route number to search without prompting (0 prompts)")
	fs.StringVar(&envName, "env", env.getEnv("BUSFINDER_ENV", def.Env.String()), "environment: development, test or production")
	fs.BoolVar(&cfg.Verbose, "verbose", env.getEnvBool("BUSFINDER_VERBOSE", false), "enable debug logging")
	fs.BoolVar(&cfg.JSONLogs, "json-logs", env.getEnvBool("BUSFINDER_JSON_LOGS", false), "write logs as JSON")
	fs.StringVar(&cfg.Timezone, "timezone", env.getEnv("BUSFINDER_TIMEZONE", def.Timezone), "time zone used to decide what today is")
	fs.DurationVar(&cfg.FetchInterval, "fetch-interval", env.getEnvDuration("BUSFINDER_FETCH_INTERVAL", def.FetchInterval), "minimum time between fetches")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", env.getEnv("BUSFINDER_METRICS_FILE", ""), "write Prometheus metrics to this file at exit")
	fs.BoolVar(&cfg.Dump, "dump", env.getEnvBool("BUSFINDER_DUMP", false), "print raw outcomes after the report")

	fs.StringVar(&cfg.Fetch.BookingBaseURL, "booking-url", env.getEnv("BUSFINDER_BOOKING_URL", def.Fetch.BookingBaseURL), "booking site base URL")
	fs.StringVar(&cfg.Fetch.APIPrefix, "api-prefix", env.getEnv("BUSFINDER_API_PREFIX", def.Fetch.APIPrefix), "search API URL prefix to intercept")
	fs.StringVar(&cfg.Fetch.PassengerTypeCode, "passenger-type", env.getEnv("BUSFINDER_PASSENGER_TYPE", def.Fetch.PassengerTypeCode), "passenger type code in the search URL")
	fs.StringVar(&cfg.Fetch.Locale, "locale", env.getEnv("BUSFINDER_LOCALE", def.Fetch.Locale), "search page language")
	fs.DurationVar(&cfg.Fetch.NavigationTimeout, "navigation-timeout", env.getEnvDuration("BUSFINDER_NAVIGATION_TIMEOUT", def.Fetch.NavigationTimeout), "page navigation timeout")
	fs.DurationVar(&cfg.Fetch.CaptureTimeout, "capture-timeout", env.getEnvDuration("BUSFINDER_CAPTURE_TIMEOUT", def.Fetch.CaptureTimeout), "time to wait for the search API response")
	cfg.Fetch.APIQueryKey = def.Fetch.APIQueryKey
	cfg.Fetch.APIQueryValue = def.Fetch.APIQueryValue

	cfg.Chrome = def.Chrome
	fs.StringVar(&cfg.Chrome.ExecPath, "chrome-path", env.getEnv("BUSFINDER_CHROME_PATH", ""), "Chrome or Chromium binary (default: search PATH)")
	fs.BoolVar(&cfg.Chrome.Headless, "headless", env.getEnvBool("BUSFINDER_HEADLESS", def.Chrome.Headless), "run the browser headless")
	fs.BoolVar(&cfg.Chrome.NoSandbox, "no-sandbox", env.getEnvBool("BUSFINDER_NO_SANDBOX", def.Chrome.NoSandbox), "disable the Chrome sandbox (containers)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	var err error
	if cfg.Env, err = ParseEnvironment(envName); err != nil {
		return Config{}, err
	}
	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole configuration, nested fetcher and browser
// settings included.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// envReader reads typed defaults. The first unparseable value is kept in err
// so a typo in the environment is reported instead of silently ignored.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) getEnv(key, def string) string {
	if r.getenv == nil {
		return def
	}
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) getEnvInt(key string, def int) int {
	v := r.getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) getEnvBool(key string, def bool) bool {
	v := r.getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *envReader) getEnvDuration(key string, def time.Duration) time.Duration {
	v := r.getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s=%q: %w", key, value, err)
	}
}
