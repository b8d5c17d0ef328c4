package extractors

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grafana/regexp"
	"github.com/samber/lo"

	"embed-resolver-go/pkg/candidates"
	"embed-resolver-go/pkg/deobfuscate"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/types"
)

// DefaultMaxDepth is how many discovery jumps are followed from one embed.
const DefaultMaxDepth = 2

var (
	jumpRe = regexp.MustCompile(`(?i)^https?://[^"']*/(?:stream|file|d|v|e)/[^"']+$`)

	landingMarkers = []string{"Page is loading"}
	playerMarkers  = []string{"jwplayer", "sources", "eval(function(p,a,c,k,e,d)"}
)

// EmbedOptions configures the generic extractor.
type EmbedOptions struct {
	Timeout  time.Duration
	MaxDepth int
	// Mirrors are alternative hosts tried when a host serves a landing page.
	Mirrors []string
}

// EmbedExtractor is the fallback extractor for arbitrary embed hosts.
type EmbedExtractor struct {
	*BaseExtractor
	log      *logging.Logger
	maxDepth int
	mirrors  []string
}

// NewEmbedExtractor creates the generic embed extractor.
func NewEmbedExtractor(client interfaces.PageFetcher, log *logging.Logger, opts EmbedOptions) *EmbedExtractor {
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &EmbedExtractor{
		BaseExtractor: NewBaseExtractor(client, log, opts.Timeout),
		log:           log.WithComponent("embed-extractor"),
		maxDepth:      depth,
		mirrors:       opts.Mirrors,
	}
}

// Name returns the extractor name.
func (e *EmbedExtractor) Name() string {
	return "embed"
}

// CanExtract returns false as this is the fallback.
func (e *EmbedExtractor) CanExtract(url string) bool {
	return false
}

// Extract fetches the embed page, unpacks it, and returns the best media URL.
// When the page has none, anchors that look like player links are followed
// up to the configured depth.
func (e *EmbedExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	return e.extract(ctx, urlStr, requestHeaders(opts, ""), 0)
}

func (e *EmbedExtractor) extract(ctx context.Context, urlStr string, headers map[string]string, depth int) (*types.ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.log.With("url", urlStr, "depth", depth)

	page, err := e.FetchPage(ctx, urlStr, headers)
	if err != nil {
		log.Debug("embed fetch failed", "error", err)
		return nil, err
	}
	if IsLandingPage(page.Body) {
		log.Debug("landing page detected, trying mirrors")
		if mirror := e.tryMirrors(ctx, urlStr, headers); mirror != nil {
			page = mirror
		}
	}

	if best, ok := e.bestCandidate(page, log); ok {
		return &types.ExtractResult{
			MediaURL: best.URL,
			Referer:  refererFor(page.FinalURL),
			Origin:   page.Origin(),
		}, nil
	}

	if depth >= e.maxDepth {
		return nil, ErrNoStream
	}

	next := withReferer(headers, page.FinalURL)
	for _, jump := range DiscoveryJumps(page.Body, page.FinalURL) {
		log.Debug("following discovery jump", "jump", jump)
		res, err := e.extract(ctx, jump, next, depth+1)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrNoStream
}

func (e *EmbedExtractor) bestCandidate(page *httpclient.Page, log *logging.Logger) (types.MediaCandidate, bool) {
	text := deobfuscate.Expand(page.Body)

	cands := candidates.Extract(text, page.FinalURL)
	cands = append(cands, candidates.ExtractJSON(page.Body, page.FinalURL)...)
	if len(cands) == 0 {
		for _, raw := range deobfuscate.ScanBase64(text) {
			if u, ok := candidates.Clean(raw, page.FinalURL); ok {
				cands = append(cands, types.MediaCandidate{URL: u, Source: candidates.SourceBase64})
			}
		}
	}
	for _, c := range cands {
		metrics.Candidates.WithLabelValues(c.Source).Inc()
	}

	best, err := candidates.Best(cands)
	if errors.Is(err, candidates.ErrNoCandidate) {
		log.Debug("no candidates on page")
		return types.MediaCandidate{}, false
	}
	log.Debug("picked candidate", "candidate", best.URL, "source", best.Source, "of", len(cands))
	return best, true
}

// tryMirrors refetches urlStr on each mirror host and returns the first page
// that looks like a player.
func (e *EmbedExtractor) tryMirrors(ctx context.Context, urlStr string, headers map[string]string) *httpclient.Page {
	host := hostOf(urlStr)
	if host == "" {
		return nil
	}
	for _, mirror := range e.mirrors {
		if strings.Contains(host, mirror) {
			continue
		}
		mirrorURL := strings.Replace(urlStr, host, mirror, 1)
		page, err := e.FetchPage(ctx, mirrorURL, headers)
		if err != nil {
			e.log.Debug("mirror fetch failed", "mirror", mirror, "error", err)
			continue
		}
		if lo.SomeBy(playerMarkers, func(m string) bool { return strings.Contains(page.Body, m) }) {
			e.log.Debug("mirror serves player", "mirror", mirror)
			return page
		}
	}
	return nil
}

// IsLandingPage reports whether html is an interstitial "loading" page
// rather than the player.
func IsLandingPage(html string) bool {
	for _, m := range landingMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return strings.TrimSpace(doc.Find("title").First().Text()) == "Loading..."
}

// DiscoveryJumps returns anchor targets that look like player pages
// (/stream/, /file/, /d/, /v/ or /e/ paths), in document order.
func DiscoveryJumps(html, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var jumps []string
	doc.Find("a[href], link[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href != pageURL && jumpRe.MatchString(href) {
			jumps = append(jumps, href)
		}
	})
	return lo.Uniq(jumps)
}

func withReferer(headers map[string]string, referer string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["Referer"] = referer
	return out
}

func hostOf(urlStr string) string {
	rest, ok := strings.CutPrefix(urlStr, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(urlStr, "http://")
	}
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

var _ interfaces.Extractor = (*EmbedExtractor)(nil)
