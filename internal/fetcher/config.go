package fetcher

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds everything the engine needs to know about the booking site.
type Config struct {
	// BookingBaseURL is the scheme and host of the search pages.
	BookingBaseURL string `validate:"required,url"`
	// APIPrefix is the scheme, host and path of the internal search API.
	APIPrefix string `validate:"required,url"`
	// APIQueryKey and APIQueryValue form the bus-type discriminator (type=bus).
	APIQueryKey   string `validate:"required"`
	APIQueryValue string `validate:"required"`

	PassengerTypeCode string `validate:"required"`
	Locale            string `validate:"required"`

	NavigationTimeout time.Duration `validate:"gt=0"`
	CaptureTimeout    time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the deployment's fixed settings.
func DefaultConfig() Config {
	return Config{
		BookingBaseURL:    "https://passagens.example.com.br",
		APIPrefix:         "https://api.passagens.example.com.br/api/v2/search",
		APIQueryKey:       "type",
		APIQueryValue:     "bus",
		PassengerTypeCode: "1",
		Locale:            "pt-BR",
		NavigationTimeout: 40 * time.Second,
		CaptureTimeout:    45 * time.Second,
	}
}

// Validate reports missing or invalid fields.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid fetcher config: %w", err)
	}
	return nil
}

// SearchURL builds the departures page for one date and origin/destination pair.
func (c Config) SearchURL(date, origin, destination string) string {
	base := strings.TrimRight(c.BookingBaseURL, "/")
	path := "/search/" + url.PathEscape(origin) +
		"/" + url.PathEscape(destination) +
		"/" + url.PathEscape(date) +
		"/p/" + url.PathEscape(c.PassengerTypeCode) +
		"/departures"
	return base + path + "?lang=" + url.QueryEscape(c.Locale)
}

// MatchesAPI reports whether rawURL is the bus search API call.
func (c Config) MatchesAPI(rawURL string) bool {
	if !strings.HasPrefix(rawURL, c.APIPrefix) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, v := range u.Query()[c.APIQueryKey] {
		if v == c.APIQueryValue {
			return true
		}
	}
	return false
}
