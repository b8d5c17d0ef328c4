// Package services ties page fetching, embed discovery and the collector
// together for the API and the command line.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"embed-resolver-go/pkg/collector"
	"embed-resolver-go/pkg/embeds"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/match"
	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/urlutil"
)

// ErrNoTitleMatch is returned when no link on a listing page resembles the
// requested title.
var ErrNoTitleMatch = errors.New("no link matches title")

// PageQuery describes a content page resolution.
type PageQuery struct {
	URL     string
	Headers map[string]string
	// Title, when set, treats URL as a listing page and follows the link
	// whose text best matches it.
	Title   string
	Season  int
	Episode int
}

// PageResult is what a content page resolved to.
type PageResult struct {
	PageURL string                 `json:"page_url"`
	Embeds  []types.EmbedReference `json:"embeds"`
	Streams []types.ResolvedStream `json:"streams"`
}

// ResolveService runs single embeds and whole content pages.
type ResolveService struct {
	fetcher      interfaces.PageFetcher
	resolver     collector.Resolver
	collector    *collector.Collector
	log          *logging.Logger
	fetchTimeout time.Duration
	threshold    float64
}

// NewResolveService creates a resolve service.
func NewResolveService(
	fetcher interfaces.PageFetcher,
	resolver collector.Resolver,
	coll *collector.Collector,
	log *logging.Logger,
	fetchTimeout time.Duration,
	threshold float64,
) *ResolveService {
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}
	return &ResolveService{
		fetcher:      fetcher,
		resolver:     resolver,
		collector:    coll,
		log:          log.WithComponent("resolve-service"),
		fetchTimeout: fetchTimeout,
		threshold:    threshold,
	}
}

// Resolve runs one embed through the pipeline.
func (s *ResolveService) Resolve(ctx context.Context, ref types.EmbedReference) ([]types.ResolvedStream, error) {
	ref.URL = DecodeURL(ref.URL)
	s.log.Debug("resolving embed", "url", ref.URL)
	return s.resolver.Resolve(ctx, ref)
}

// ResolvePage fetches a content page, discovers its embeds, keeps those that
// match the requested episode and collects their streams.
func (s *ResolveService) ResolvePage(ctx context.Context, q PageQuery) (*PageResult, error) {
	pageURL := DecodeURL(q.URL)
	if !urlutil.IsAbsolute(pageURL) {
		return nil, fmt.Errorf("content page url %q is not absolute", q.URL)
	}

	html, finalURL, err := s.fetch(ctx, pageURL, q.Headers)
	if err != nil {
		return nil, err
	}

	if q.Title != "" {
		linkURL, err := s.followTitle(html, finalURL, q.Title)
		if err != nil {
			return nil, err
		}
		if html, finalURL, err = s.fetch(ctx, linkURL, q.Headers); err != nil {
			return nil, err
		}
	}

	refs, err := embeds.Discover(html, finalURL)
	if err != nil {
		return nil, err
	}
	s.log.Debug("embeds discovered", "page", finalURL, "count", len(refs))
	if len(q.Headers) > 0 {
		for i := range refs {
			refs[i].Headers = q.Headers
		}
	}

	streams, err := s.collector.CollectEpisode(ctx, refs, collector.Query{Season: q.Season, Episode: q.Episode})
	if err != nil {
		return nil, fmt.Errorf("collect streams: %w", err)
	}

	return &PageResult{PageURL: finalURL, Embeds: refs, Streams: streams}, nil
}

func (s *ResolveService) fetch(ctx context.Context, pageURL string, headers map[string]string) (string, string, error) {
	page, err := s.fetcher.Fetch(ctx, pageURL, headers, s.fetchTimeout)
	if err != nil {
		return "", "", fmt.Errorf("fetch content page: %w", err)
	}
	if !page.OK() {
		return "", "", fmt.Errorf("fetch content page %s: status %d", pageURL, page.StatusCode)
	}
	return page.Body, page.FinalURL, nil
}

func (s *ResolveService) followTitle(html, pageURL, title string) (string, error) {
	links, err := embeds.Links(html, pageURL)
	if err != nil {
		return "", err
	}
	texts := lo.Map(links, func(l embeds.Link, _ int) string { return l.Text })
	i := match.Best(title, texts, s.threshold)
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrNoTitleMatch, title)
	}
	s.log.Debug("title matched", "title", title, "link", links[i].Text, "url", links[i].URL)
	return links[i].URL, nil
}

// DecodeURL undoes query escaping and base64 wrapping that callers apply to
// URLs passed as parameters. Anything that does not decode to an http(s) URL
// is returned unchanged.
func DecodeURL(urlStr string) string {
	if urlStr == "" || urlutil.IsAbsolute(urlStr) {
		return urlStr
	}
	if decoded, err := url.QueryUnescape(urlStr); err == nil && urlutil.IsAbsolute(decoded) {
		return decoded
	}

	padded := urlStr
	switch len(urlStr) % 4 {
	case 2:
		padded += "=="
	case 3:
		padded += "="
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if decoded, err := enc.DecodeString(padded); err == nil {
			if s := strings.TrimSpace(string(decoded)); urlutil.IsAbsolute(s) {
				return s
			}
		}
	}
	return urlStr
}
