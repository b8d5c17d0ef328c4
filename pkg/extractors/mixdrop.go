package extractors

import (
	"context"
	"fmt"
	"strings"

	"github.com/grafana/regexp"

	"embed-resolver-go/pkg/deobfuscate"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

var (
	mixdropWurlRe = regexp.MustCompile(`wurl\s*=\s*"([^"]+)"`)
	mixdropSrcRe  = regexp.MustCompile(`(?:source|src)\s*[=:]\s*["']([^"']+\.(?:mp4|m3u8)[^"']*)["']`)

	mixdropDomains = []string{"mixdrp.to", "mixdrp.co", "mixdrop.to", "mixdrop.sx"}
)

const mixdropReferer = "https://mixdrop.co/"

// MixdropExtractor extracts streams from Mixdrop.
type MixdropExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewMixdropExtractor creates a new Mixdrop extractor.
func NewMixdropExtractor(client interfaces.PageFetcher, log *logging.Logger, opts EmbedOptions) *MixdropExtractor {
	return &MixdropExtractor{
		BaseExtractor: NewBaseExtractor(client, log, opts.Timeout),
		log:           log.WithComponent("mixdrop-extractor"),
	}
}

// Name returns the extractor name.
func (e *MixdropExtractor) Name() string {
	return "mixdrop"
}

// CanExtract returns true for Mixdrop URLs.
func (e *MixdropExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "mixdrop.") ||
		strings.Contains(lower, "mixdrp.")
}

// Extract resolves a Mixdrop URL to a direct stream URL.
func (e *MixdropExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	urlStr = normalizeMixdropURL(urlStr)
	e.log.Debug("extracting Mixdrop stream", "url", urlStr)

	page, err := e.FetchPage(ctx, urlStr, requestHeaders(opts, mixdropReferer))
	if err != nil {
		return nil, err
	}

	streamURL, err := mixdropStreamURL(page.Body)
	if err != nil {
		return nil, err
	}

	return &types.ExtractResult{
		MediaURL: streamURL,
		Referer:  mixdropReferer,
		Origin:   strings.TrimSuffix(mixdropReferer, "/"),
	}, nil
}

// normalizeMixdropURL maps mirror domains onto mixdrop.co and embed
// paths (/e/) onto file paths (/f/).
func normalizeMixdropURL(urlStr string) string {
	for _, d := range mixdropDomains {
		urlStr = strings.Replace(urlStr, d, "mixdrop.co", 1)
	}
	return strings.Replace(urlStr, "/e/", "/f/", 1)
}

// mixdropStreamURL finds MDCore.wurl in the page once packed scripts are expanded.
func mixdropStreamURL(html string) (string, error) {
	html = deobfuscate.Expand(html)

	for _, re := range []*regexp.Regexp{mixdropWurlRe, mixdropSrcRe} {
		if m := re.FindStringSubmatch(html); len(m) > 1 {
			u := m[1]
			if strings.HasPrefix(u, "//") {
				u = "https:" + u
			}
			return u, nil
		}
	}

	return "", fmt.Errorf("mixdrop: %w", ErrNoStream)
}

var _ interfaces.Extractor = (*MixdropExtractor)(nil)
