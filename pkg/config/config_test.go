package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7860, cfg.Port)
	assert.Equal(t, "http://localhost:7860", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5*time.Second, cfg.ManifestTimeout)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 2, cfg.MaxEmbedDepth)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 5, cfg.MaxEmbeds)
	assert.Equal(t, 10, cfg.TargetResults)
	assert.InDelta(t, 0.4, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Empty(t, cfg.LandingMirrors)
	assert.False(t, cfg.SplitAudioTracks)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("FETCH_TIMEOUT", "3")
	t.Setenv("PROBE_TIMEOUT", "750ms")
	t.Setenv("LANDING_MIRRORS", "mirror-a.example, mirror-b.example")
	t.Setenv("SPLIT_AUDIO_TRACKS", "true")
	t.Setenv("CONCURRENCY", "0")
	t.Setenv("GLOBAL_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("SIMILARITY_THRESHOLD", "0.45")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, []string{"mirror-a.example", "mirror-b.example"}, cfg.LandingMirrors)
	assert.True(t, cfg.SplitAudioTracks)
	assert.Equal(t, 1, cfg.Concurrency, "concurrency is clamped to at least one worker")
	assert.Equal(t, []string{"socks5://127.0.0.1:1080"}, cfg.GlobalProxies)
	assert.InDelta(t, 0.45, cfg.SimilarityThreshold, 1e-9)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("MANIFEST_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ManifestTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MAX_EMBEDS: 8\nTARGET_RESULTS: 3\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TARGET_RESULTS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxEmbeds)
	assert.Equal(t, 4, cfg.TargetResults, "environment wins over the file")
}

func TestParseTransportRoutes(t *testing.T) {
	routes := parseTransportRoutes("{URL=cdn.example, PROXY=socks5://127.0.0.1:1080, DISABLE_SSL=true}, {URL=direct.example, DIRECT=true}")

	require.Len(t, routes, 2)
	assert.Equal(t, TransportRoute{URLPattern: "cdn.example", Proxy: "socks5://127.0.0.1:1080", DisableSSL: true}, routes[0])
	assert.Equal(t, TransportRoute{URLPattern: "direct.example", Direct: true}, routes[1])
	assert.Nil(t, parseTransportRoutes(""))
	assert.Empty(t, parseTransportRoutes("{PROXY=http://p}"))
}
