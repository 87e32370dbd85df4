package fetcher

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 40*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 45*time.Second, cfg.CaptureTimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing booking url", func(c *Config) { c.BookingBaseURL = "" }},
		{"booking url not a url", func(c *Config) { c.BookingBaseURL = "passagens" }},
		{"missing api prefix", func(c *Config) { c.APIPrefix = "" }},
		{"missing passenger code", func(c *Config) { c.PassengerTypeCode = "" }},
		{"missing locale", func(c *Config) { c.Locale = "" }},
		{"zero navigation timeout", func(c *Config) { c.NavigationTimeout = 0 }},
		{"negative capture timeout", func(c *Config) { c.CaptureTimeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSearchURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BookingBaseURL = "https://passagens.example.com.br/"

	got := cfg.SearchURL("2025-01-09", "belo-horizonte-mg", "sao-paulo-tiete-sp")
	assert.Equal(t,
		"https://passagens.example.com.br/search/belo-horizonte-mg/sao-paulo-tiete-sp/2025-01-09/p/1/departures?lang=pt-BR",
		got)
}

func TestSearchURL_EscapesSegments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Locale = "pt BR"

	got := cfg.SearchURL("2025-01-09", "são paulo", "rio/rj")

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/search/são paulo/rio/rj/2025-01-09/p/1/departures", u.Path)
	assert.Contains(t, got, "/s%C3%A3o%20paulo/rio%2Frj/")
	assert.Equal(t, "pt BR", u.Query().Get("lang"))
}

func TestMatchesAPI(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		url   string
		match bool
	}{
		{"https://api.passagens.example.com.br/api/v2/search?type=bus", true},
		{"https://api.passagens.example.com.br/api/v2/search?from=a&type=bus&to=b", true},
		{"https://api.passagens.example.com.br/api/v2/search?type=train", false},
		{"https://api.passagens.example.com.br/api/v2/search", false},
		{"https://api.passagens.example.com.br/api/v1/search?type=bus", false},
		{"https://cdn.passagens.example.com.br/api/v2/search?type=bus", false},
		{"https://passagens.example.com.br/search/a/b/2025-01-02/p/1/departures?lang=pt-BR", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.match, cfg.MatchesAPI(tt.url))
		})
	}
}
