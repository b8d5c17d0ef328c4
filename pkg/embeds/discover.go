// Package embeds finds embed player references on a content page.
package embeds

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/grafana/regexp"
	"github.com/samber/lo"

	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/urlutil"
)

// maxLabelHops bounds the walk back through preceding siblings and parents
// when looking for an episode heading.
const maxLabelHops = 5

var (
	playerLinkRe = regexp.MustCompile(`(?i)^https?://[^"'\s]+/(?:embed|e|v)/[^"'\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	blockedHosts = []string{"google.com", "youtube.com", "facebook.com", "twitter.com"}
)

// Discover returns the embed references on a content page in document
// order: every iframe (src or data-src) followed by anchors that point at
// player paths. Each reference carries the page as its referer and, when one
// is found nearby, an episode label.
func Discover(html, pageURL string) ([]types.EmbedReference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse content page: %w", err)
	}

	var refs []types.EmbedReference
	doc.Find("iframe").Each(func(i int, s *goquery.Selection) {
		src := iframeSrc(s)
		if src == "" {
			return
		}
		u := urlutil.ResolveURL(src, pageURL)
		if !usable(u) {
			return
		}
		label := episodeLabel(s)
		if label == "" {
			label = clean(s.Closest("div").PrevFiltered("p").Text())
		}
		if label == "" {
			label = fmt.Sprintf("Stream %d", len(refs)+1)
		}
		refs = append(refs, types.EmbedReference{URL: u, Label: label, Referer: pageURL})
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		u := urlutil.ResolveURL(strings.TrimSpace(s.AttrOr("href", "")), pageURL)
		if !playerLinkRe.MatchString(u) || !usable(u) {
			return
		}
		label := clean(s.Text())
		if l := episodeLabel(s); l != "" {
			label = l
		}
		refs = append(refs, types.EmbedReference{URL: u, Label: label, Referer: pageURL})
	})

	return lo.UniqBy(refs, func(r types.EmbedReference) string { return r.URL }), nil
}

func iframeSrc(s *goquery.Selection) string {
	if src, ok := s.Attr("src"); ok && src != "" && src != "about:blank" {
		return strings.TrimSpace(src)
	}
	if src, ok := s.Attr("data-src"); ok && src != "" {
		return strings.TrimSpace(src)
	}
	return ""
}

// episodeLabel walks back from s through previous siblings, climbing to the
// parent when a level runs out, and returns the first text mentioning an episode.
func episodeLabel(s *goquery.Selection) string {
	cur := s
	for range maxLabelHops {
		prev := cur.Prev()
		if prev.Length() == 0 {
			cur = cur.Parent()
			if cur.Length() == 0 || cur.Is("body") {
				return ""
			}
			continue
		}
		// a label past another player belongs to that player
		if prev.Is("iframe") || prev.Find("iframe").Length() > 0 {
			return ""
		}
		if text := clean(prev.Text()); strings.Contains(strings.ToLower(text), "episode") {
			return text
		}
		cur = prev
	}
	return ""
}

func usable(u string) bool {
	if !urlutil.IsAbsolute(u) || strings.HasPrefix(u, "data:") {
		return false
	}
	lower := strings.ToLower(u)
	return !lo.SomeBy(blockedHosts, func(h string) bool { return strings.Contains(lower, h) })
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
