package hls

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
)

// Resolver fetches and parses playlists.
type Resolver struct {
	client  interfaces.PageFetcher
	log     *logging.Logger
	timeout time.Duration
}

// NewResolver creates a resolver whose fetches are bounded by timeout.
func NewResolver(client interfaces.PageFetcher, log *logging.Logger, timeout time.Duration) *Resolver {
	return &Resolver{
		client:  client,
		log:     log.WithComponent("hls"),
		timeout: timeout,
	}
}

// Resolve fetches manifestURL and expands it.
//
// Fetch failures and non-2xx responses degrade to the URL itself as one
// Unknown variant. ErrNotVideoManifest is returned for audio-only playlists
// and ErrInvalidManifestURL for input that is not an http(s) URL.
func (r *Resolver) Resolve(ctx context.Context, manifestURL string, headers map[string]string) (*Manifest, error) {
	if !IsManifestURL(manifestURL) {
		return nil, ErrInvalidManifestURL
	}

	page, err := r.client.Fetch(ctx, manifestURL, headers, r.timeout)
	if err != nil {
		r.log.Debug("manifest fetch failed", "url", manifestURL, "error", err)
		return single(manifestURL), nil
	}
	if !page.OK() {
		r.log.Debug("manifest fetch returned non-2xx", "url", manifestURL, "status", page.StatusCode)
		return single(manifestURL), nil
	}

	m, err := Parse(page.Body, manifestURL)
	if err != nil {
		if errors.Is(err, ErrNotVideoManifest) {
			r.log.Debug("skipping audio-only playlist", "url", manifestURL)
		}
		return nil, err
	}

	r.log.Debug("resolved manifest",
		"url", manifestURL,
		"master", m.IsMaster,
		"variants", len(m.Variants),
		"audio", len(m.Audio))
	return m, nil
}

// IsManifestURL reports whether s is an absolute http(s) URL.
func IsManifestURL(s string) bool {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	return govalidator.IsRequestURL(s)
}

// LooksLikeHLS reports whether a URL probably points at a playlist.
func LooksLikeHLS(u string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	return strings.Contains(lower, ".m3u8") || strings.HasSuffix(lower, ".txt") || strings.Contains(lower, "/hls/")
}
