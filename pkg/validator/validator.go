// Package validator probes resolved stream URLs before they are handed out.
package validator

import (
	"context"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/types"
)

// DefaultTimeout bounds a single probe when none is configured.
const DefaultTimeout = 5 * time.Second

// Validator decides whether a URL is currently servable.
type Validator struct {
	client  interfaces.HTTPClient
	log     *logging.Logger
	timeout time.Duration
	cache   *otter.Cache[string, bool]
}

// New creates a validator. Results are remembered for cacheTTL; zero disables that.
func New(client interfaces.HTTPClient, log *logging.Logger, timeout, cacheTTL time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	v := &Validator{
		client:  client,
		log:     log.WithComponent("validator"),
		timeout: timeout,
	}
	if cacheTTL > 0 {
		v.cache = otter.Must(&otter.Options[string, bool]{
			MaximumSize:      10_000,
			ExpiryCalculator: otter.ExpiryWriting[string, bool](cacheTTL),
		})
	}
	return v
}

// IsPlayable issues a one-byte ranged GET. A 2xx (including 206) is playable;
// any other status, and any transport error or timeout, is not. It never fails.
func (v *Validator) IsPlayable(ctx context.Context, url string, headers map[string]string) bool {
	// inline playlists were built from probed variants
	if strings.HasPrefix(url, "data:") {
		return true
	}
	if v.cache != nil {
		if ok, hit := v.cache.GetIfPresent(cacheKey(url, headers)); hit {
			metrics.Probes.WithLabelValues("cached").Inc()
			return ok
		}
	}

	ok := v.probe(ctx, url, headers)
	// a cancelled caller says nothing about the link
	if v.cache != nil && ctx.Err() == nil {
		v.cache.Set(cacheKey(url, headers), ok)
	}
	if ok {
		metrics.Probes.WithLabelValues("playable").Inc()
	} else {
		metrics.Probes.WithLabelValues("dead").Inc()
	}
	return ok
}

func (v *Validator) probe(ctx context.Context, url string, headers map[string]string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := v.client.NewRequest(ctx, http.MethodGet, url, headers)
	if err != nil {
		v.log.Debug("probe request invalid", "url", url, "error", err)
		return false
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Debug("probe failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	v.log.Debug("probe finished", "url", url, "status", resp.StatusCode, "playable", ok)
	return ok
}

// cacheKey scopes a probe result to the Referer it was made with.
func cacheKey(url string, headers map[string]string) string {
	for k, val := range headers {
		if textproto.CanonicalMIMEHeaderKey(k) == "Referer" {
			return url + "\x00" + val
		}
	}
	return url
}

// Filter keeps the streams whose URL probes playable, in input order.
func (v *Validator) Filter(ctx context.Context, streams []types.ResolvedStream) []types.ResolvedStream {
	out := make([]types.ResolvedStream, 0, len(streams))
	for _, s := range streams {
		if v.IsPlayable(ctx, s.URL, s.PlaybackHeaders()) {
			out = append(out, s)
		}
	}
	return out
}
