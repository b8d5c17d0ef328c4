// Package extractors provides embed extractor implementations.
// Each extractor turns an embed page URL into a direct media URL. Hosts with a
// known page layout get their own extractor; everything else goes through
// EmbedExtractor, which applies the generic deobfuscate/pattern/rank stages.
//
// To add a new extractor:
// 1. Create a new file (e.g., myhost.go)
// 2. Implement the Extractor interface
// 3. Register it in the registry (see internal/app)
package extractors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/urlutil"
)

// ErrNoStream is returned when an embed page yields no media URL.
var ErrNoStream = errors.New("no stream found")

// DefaultFetchTimeout bounds a single embed page fetch.
const DefaultFetchTimeout = 10 * time.Second

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	client  interfaces.PageFetcher
	log     *logging.Logger
	timeout time.Duration
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(client interfaces.PageFetcher, log *logging.Logger, timeout time.Duration) *BaseExtractor {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &BaseExtractor{
		client:  client,
		log:     log,
		timeout: timeout,
	}
}

// Close releases resources.
func (b *BaseExtractor) Close() error {
	return nil
}

// FetchPage fetches an embed page and rejects non-2xx responses.
func (b *BaseExtractor) FetchPage(ctx context.Context, urlStr string, headers map[string]string) (*httpclient.Page, error) {
	page, err := b.client.Fetch(ctx, urlStr, headers, b.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	if !page.OK() {
		return nil, fmt.Errorf("failed to fetch page: status %d", page.StatusCode)
	}
	return page, nil
}

// requestHeaders merges caller headers with a Referer.
func requestHeaders(opts interfaces.ExtractOptions, referer string) map[string]string {
	headers := make(map[string]string, len(opts.Headers)+1)
	if referer != "" {
		headers["Referer"] = referer
	}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return headers
}

// refererFor returns the origin of pageURL with a trailing slash.
func refererFor(pageURL string) string {
	if o := urlutil.Origin(pageURL); o != "" {
		return o + "/"
	}
	return ""
}
