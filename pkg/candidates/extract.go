// Package candidates finds media URLs in embed page text and picks the best one.
package candidates

import (
	"strings"

	"github.com/grafana/regexp"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/urlutil"
)

// Pattern families, in the order they are applied.
const (
	SourceHLSKey      = "hls-key"
	SourceSources     = "sources"
	SourceM3U8        = "m3u8"
	SourceRelative    = "relative-m3u8"
	SourceMP4         = "mp4"
	SourceKeyValue    = "key-value"
	SourceTXT         = "txt"
	SourceJSON        = "json"
	SourceBase64      = "base64"
	SourceDirectMedia = "direct"
)

type pattern struct {
	source string
	re     *regexp.Regexp
}

var bank = []pattern{
	{SourceHLSKey, regexp.MustCompile(`(?i)["']hls[2-4]["']\s*:\s*["']([^"']+)["']`)},
	{SourceSources, regexp.MustCompile(`(?i)sources\s*:\s*\[\s*\{\s*["']?file["']?\s*:\s*["']([^"']+)["']`)},
	{SourceM3U8, regexp.MustCompile(`(?i)https?://[^\s"']+\.m3u8[^\s"']*`)},
	{SourceRelative, regexp.MustCompile(`(?i)["'](/[^\s"']+\.m3u8[^\s"']*)["']`)},
	{SourceMP4, regexp.MustCompile(`(?i)https?://[^\s"']+\.mp4[^\s"']*`)},
	{SourceKeyValue, regexp.MustCompile(`(?i)(?:source|file|src)["']?\s*[:=]\s*["']([^"']+\.(?:m3u8|mp4|txt)[^"']*)["']`)},
	{SourceTXT, regexp.MustCompile(`(?i)https?://[^\s"']*master\.txt[^\s"']*`)},
}

var (
	absRe      = regexp.MustCompile(`https?://[^\s"']+`)
	trailingRe = regexp.MustCompile(`[\\"')\],;]+$`)
	mediaRe    = regexp.MustCompile(`(?i)\.(?:m3u8|mp4)|master\.txt`)

	entityReplacer = strings.NewReplacer(`&amp;`, `&`, `&#038;`, `&`, `&#38;`, `&`, `\u0026`, `&`, `\/`, `/`)
)

var blockedHosts = []string{"google.com", "youtube.com"}

// Extract applies the pattern bank to text in order and returns every
// distinct candidate, first-seen order preserved. Root-relative paths are
// resolved against the origin of pageURL.
func Extract(text, pageURL string) []types.MediaCandidate {
	text = entityReplacer.Replace(text)

	var out []types.MediaCandidate
	for _, p := range bank {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if u, ok := Clean(innermost(m), pageURL); ok {
				out = append(out, types.MediaCandidate{URL: u, Source: p.source})
			}
		}
	}
	return dedupe(out)
}

// ExtractJSON walks a JSON body and returns every string value that looks
// like a media URL. Non-JSON bodies yield nothing.
func ExtractJSON(body, pageURL string) []types.MediaCandidate {
	if !gjson.Valid(body) {
		return nil
	}

	var out []types.MediaCandidate
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsObject() || v.IsArray():
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		case v.Type == gjson.String:
			s := entityReplacer.Replace(v.String())
			if !mediaRe.MatchString(s) {
				return
			}
			if u, ok := Clean(s, pageURL); ok {
				out = append(out, types.MediaCandidate{URL: u, Source: SourceJSON})
			}
		}
	}
	walk(gjson.Parse(body))
	return dedupe(out)
}

// Clean normalizes one raw match into an absolute URL. It reports false for
// matches that are too short, point at blocked hosts, or cannot be made absolute.
func Clean(raw, pageURL string) (string, bool) {
	u := strings.TrimSpace(raw)
	if abs := absRe.FindString(u); abs != "" {
		u = abs
	}
	u = trailingRe.ReplaceAllString(u, "")

	if len(u) < 5 {
		return "", false
	}
	lower := strings.ToLower(u)
	for _, h := range blockedHosts {
		if strings.Contains(lower, h) {
			return "", false
		}
	}

	if !urlutil.IsAbsolute(u) {
		if pageURL == "" && !strings.HasPrefix(u, "//") {
			return "", false
		}
		u = urlutil.ResolveURL(u, pageURL)
		if !urlutil.IsAbsolute(u) {
			return "", false
		}
	}
	return u, true
}

// innermost returns the last non-empty capture group, or the whole match.
func innermost(m []string) string {
	for i := len(m) - 1; i > 0; i-- {
		if m[i] != "" {
			return m[i]
		}
	}
	return m[0]
}

func dedupe(cands []types.MediaCandidate) []types.MediaCandidate {
	return lo.UniqBy(cands, func(c types.MediaCandidate) string { return c.URL })
}
