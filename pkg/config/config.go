// Package config handles application configuration from environment variables
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication
	APIPassword string

	// Proxy settings
	GlobalProxies   []string
	TransportRoutes []TransportRoute
	UTLSDomains     []string

	// Logging
	LogLevel string
	LogJSON  bool

	// Fetching
	UserAgent       string
	FetchTimeout    time.Duration
	ManifestTimeout time.Duration
	ProbeTimeout    time.Duration
	ProbeCacheTTL   time.Duration
	HostRateLimit   float64
	HostRateBurst   int

	// Embed resolution
	MaxEmbedDepth       int
	LandingMirrors      []string
	SplitAudioTracks    bool
	Concurrency         int
	MaxEmbeds           int
	TargetResults       int
	SimilarityThreshold float64

	// FlareSolverr settings (for Cloudflare bypass)
	FlareSolverrURL     string
	FlareSolverrTimeout time.Duration
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

// DefaultUserAgent is sent when USER_AGENT is unset.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var defaults = map[string]any{
	"PORT":                 7860,
	"READ_TIMEOUT":         "30s",
	"WRITE_TIMEOUT":        "120s",
	"IDLE_TIMEOUT":         "60s",
	"LOG_LEVEL":            "info",
	"LOG_JSON":             false,
	"USER_AGENT":           DefaultUserAgent,
	"UTLS_DOMAINS":         "",
	"FETCH_TIMEOUT":        "10s",
	"MANIFEST_TIMEOUT":     "5s",
	"PROBE_TIMEOUT":        "5s",
	"PROBE_CACHE_TTL":      "30s",
	"HOST_RATE_LIMIT":      0.0,
	"HOST_RATE_BURST":      2,
	"MAX_EMBED_DEPTH":      2,
	"LANDING_MIRRORS":      "",
	"SPLIT_AUDIO_TRACKS":   false,
	"CONCURRENCY":          5,
	"MAX_EMBEDS":           5,
	"TARGET_RESULTS":       10,
	"SIMILARITY_THRESHOLD": 0.4,
	"FLARESOLVERR_URL":     "",
	"FLARESOLVERR_TIMEOUT": "60s",
}

// Load reads configuration from the environment with sensible defaults.
// When CONFIG_FILE is set, values from that file are used below the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	return FromViper(v), nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	port := v.GetInt("PORT")
	baseURL := v.GetString("BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", port)
	}

	cfg := &Config{
		Port:                port,
		BaseURL:             baseURL,
		ReadTimeout:         duration(v, "READ_TIMEOUT"),
		WriteTimeout:        duration(v, "WRITE_TIMEOUT"),
		IdleTimeout:         duration(v, "IDLE_TIMEOUT"),
		APIPassword:         v.GetString("API_PASSWORD"),
		GlobalProxies:       stringSlice(v, "GLOBAL_PROXIES"),
		UTLSDomains:         stringSlice(v, "UTLS_DOMAINS"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogJSON:             v.GetBool("LOG_JSON"),
		UserAgent:           v.GetString("USER_AGENT"),
		FetchTimeout:        duration(v, "FETCH_TIMEOUT"),
		ManifestTimeout:     duration(v, "MANIFEST_TIMEOUT"),
		ProbeTimeout:        duration(v, "PROBE_TIMEOUT"),
		ProbeCacheTTL:       duration(v, "PROBE_CACHE_TTL"),
		HostRateLimit:       v.GetFloat64("HOST_RATE_LIMIT"),
		HostRateBurst:       v.GetInt("HOST_RATE_BURST"),
		MaxEmbedDepth:       v.GetInt("MAX_EMBED_DEPTH"),
		LandingMirrors:      stringSlice(v, "LANDING_MIRRORS"),
		SplitAudioTracks:    v.GetBool("SPLIT_AUDIO_TRACKS"),
		Concurrency:         v.GetInt("CONCURRENCY"),
		MaxEmbeds:           v.GetInt("MAX_EMBEDS"),
		TargetResults:       v.GetInt("TARGET_RESULTS"),
		SimilarityThreshold: v.GetFloat64("SIMILARITY_THRESHOLD"),
		FlareSolverrURL:     v.GetString("FLARESOLVERR_URL"),
		FlareSolverrTimeout: duration(v, "FLARESOLVERR_TIMEOUT"),
	}

	cfg.TransportRoutes = parseTransportRoutes(v.GetString("TRANSPORT_ROUTES"))

	// Legacy single proxy support
	if globalProxy := v.GetString("GLOBAL_PROXY"); globalProxy != "" && len(cfg.GlobalProxies) == 0 {
		cfg.GlobalProxies = []string{globalProxy}
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxEmbedDepth < 0 {
		cfg.MaxEmbedDepth = 0
	}

	return cfg
}

// parseTransportRoutes parses the TRANSPORT_ROUTES value.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	for _, part := range strings.Split(s, "}, {") {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

// duration accepts plain seconds ("10") or a Go duration ("1m30s").
func duration(v *viper.Viper, key string) time.Duration {
	val := strings.TrimSpace(v.GetString(key))
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if def, ok := defaults[key].(string); ok {
		d, _ := time.ParseDuration(def)
		return d
	}
	return 0
}

func stringSlice(v *viper.Viper, key string) []string {
	var out []string
	for _, p := range strings.Split(v.GetString(key), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
