package embeds

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"embed-resolver-go/pkg/urlutil"
)

// Link is an anchor on a listing or search page.
type Link struct {
	URL  string
	Text string
}

// Links returns the distinct absolute anchors of a page with their visible
// text, falling back to the title attribute. Anchors without text are skipped.
func Links(html, pageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		u := urlutil.ResolveURL(href, pageURL)
		if !urlutil.IsAbsolute(u) {
			return
		}
		text := clean(s.Text())
		if text == "" {
			text = clean(s.AttrOr("title", ""))
		}
		if text == "" {
			return
		}
		links = append(links, Link{URL: u, Text: text})
	})

	return lo.UniqBy(links, func(l Link) string { return l.URL }), nil
}
