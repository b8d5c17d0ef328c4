// Package hls expands an HLS playlist URL into its video variants and
// alternate audio tracks.
package hls

import (
	"bufio"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
	"github.com/samber/lo"

	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/urlutil"
)

var (
	// ErrNotVideoManifest is returned for playlists that only carry audio renditions.
	ErrNotVideoManifest = errors.New("audio-only playlist")
	// ErrInvalidManifestURL is returned when Resolve is called with something that is not a URL.
	ErrInvalidManifestURL = errors.New("invalid manifest url")
)

const (
	tagHeader    = "#EXTM3U"
	tagStreamInf = "#EXT-X-STREAM-INF"
	tagMedia     = "#EXT-X-MEDIA:"
)

var (
	attrRe       = regexp.MustCompile(`([A-Z0-9-]+)=("[^"]*"|[^,]*)`)
	qualityHint  = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p|360p|240p|4k)\b`)
	heightInName = regexp.MustCompile(`(?i)(\d{3,4})p\b|^(\d{3,4})$`)

	channelLayouts = map[string]string{"1": "1.0", "2": "2.0", "6": "5.1", "8": "7.1"}
)

// Manifest is the parsed form of a playlist.
type Manifest struct {
	URL      string
	Variants []types.Variant
	Audio    []types.AudioTrack
	IsMaster bool
}

// AudioNames returns the audio track names in playlist order.
func (m *Manifest) AudioNames() []string {
	return lo.Map(m.Audio, func(a types.AudioTrack, _ int) string { return a.Name })
}

// Best returns the highest quality variant.
func (m *Manifest) Best() (types.Variant, bool) {
	if len(m.Variants) == 0 {
		return types.Variant{}, false
	}
	return m.Variants[0], true
}

// single is the degraded result: the URL itself with an unknown quality.
func single(manifestURL string) *Manifest {
	return &Manifest{
		URL:      manifestURL,
		Variants: []types.Variant{{URL: manifestURL, Quality: types.QualityUnknown}},
	}
}

// IsPlaylist reports whether content starts with the #EXTM3U header.
func IsPlaylist(content string) bool {
	content = strings.TrimPrefix(content, "\ufeff")
	return strings.HasPrefix(strings.TrimSpace(content), tagHeader)
}

// Parse interprets content fetched from manifestURL. Bodies without the
// #EXTM3U header yield the URL itself as a single Unknown variant.
func Parse(content, manifestURL string) (*Manifest, error) {
	if !IsPlaylist(content) {
		return single(manifestURL), nil
	}

	isMaster := strings.Contains(content, tagStreamInf)
	audio := parseAudio(content, manifestURL)
	if !isMaster && hasAudioRendition(content) {
		return nil, ErrNotVideoManifest
	}

	m := &Manifest{URL: manifestURL, Audio: audio, IsMaster: isMaster}
	if !isMaster {
		m.Variants = []types.Variant{{URL: manifestURL, Quality: QualityFromText(content)}}
		return m, nil
	}

	m.Variants = parseVariants(content, manifestURL)
	return m, nil
}

func parseAudio(content, manifestURL string) []types.AudioTrack {
	var tracks []types.AudioTrack
	seen := map[string]bool{}

	for _, line := range lines(content) {
		if !strings.HasPrefix(line, tagMedia) {
			continue
		}
		attrs := attributes(line[len(tagMedia):])
		if !strings.EqualFold(attrs["TYPE"], "AUDIO") || attrs["NAME"] == "" {
			continue
		}

		name := attrs["NAME"]
		if ch := attrs["CHANNELS"]; ch != "" {
			// CHANNELS may carry a coding suffix, e.g. "16/JOC"
			count, _, _ := strings.Cut(ch, "/")
			layout, ok := channelLayouts[count]
			if !ok {
				layout = ch
			}
			name += " (" + layout + ")"
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		lang := attrs["LANGUAGE"]
		if lang == "" {
			lang = "unknown"
		}
		uri := attrs["URI"]
		if uri != "" {
			uri = urlutil.ResolveURL(uri, manifestURL)
		}
		tracks = append(tracks, types.AudioTrack{Name: name, Language: lang, URI: uri})
	}
	return tracks
}

// hasAudioRendition reports an EXT-X-MEDIA audio entry, whatever its
// attribute order and even without a NAME.
func hasAudioRendition(content string) bool {
	for _, line := range lines(content) {
		if strings.HasPrefix(line, tagMedia) && strings.EqualFold(attributes(line[len(tagMedia):])["TYPE"], "AUDIO") {
			return true
		}
	}
	return false
}

func parseVariants(content, manifestURL string) []types.Variant {
	var variants []types.Variant
	seen := map[string]bool{}

	ls := lines(content)
	for i := 0; i < len(ls); i++ {
		if !strings.HasPrefix(ls[i], tagStreamInf) {
			continue
		}
		attrs := attributes(strings.TrimPrefix(ls[i], tagStreamInf+":"))
		quality := variantQuality(attrs)

		j := i + 1
		for j < len(ls) && (ls[j] == "" || strings.HasPrefix(ls[j], "#")) {
			j++
		}
		if j >= len(ls) {
			break
		}
		i = j

		u := urlutil.InheritQuery(urlutil.ResolveURL(ls[j], manifestURL), manifestURL)
		if seen[u] {
			continue
		}
		seen[u] = true
		variants = append(variants, types.Variant{URL: u, Quality: quality})
	}

	slices.SortStableFunc(variants, func(a, b types.Variant) int {
		return b.Quality.Rank() - a.Quality.Rank()
	})
	return variants
}

func variantQuality(attrs map[string]string) types.Quality {
	if res := attrs["RESOLUTION"]; res != "" {
		if _, h, ok := strings.Cut(strings.ToLower(res), "x"); ok {
			if height, err := strconv.Atoi(h); err == nil && height > 0 {
				return types.HeightToQuality(height)
			}
		}
	}
	if name := attrs["NAME"]; name != "" {
		return normalizeName(name)
	}
	return types.QualityUnknown
}

// QualityFromText returns the first quality marker (1080p, 4K, ...) found
// in s, or Unknown.
func QualityFromText(s string) types.Quality {
	if hint := qualityHint.FindString(s); hint != "" {
		return normalizeName(hint)
	}
	return types.QualityUnknown
}

// normalizeName maps a free-form rendition name onto the quality label set.
func normalizeName(name string) types.Quality {
	if strings.Contains(strings.ToUpper(name), "4K") {
		return types.Quality4K
	}
	if m := heightInName.FindStringSubmatch(strings.TrimSpace(name)); m != nil {
		h, _ := strconv.Atoi(m[1] + m[2])
		return types.HeightToQuality(h)
	}
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UHD":
		return types.Quality4K
	case "FHD", "FULL HD", "FULLHD":
		return types.Quality1080p
	case "HD":
		return types.Quality720p
	case "SD":
		return types.Quality480p
	}
	return types.QualityUnknown
}

// attributes parses an HLS attribute list. Keys are upper-cased, quotes removed.
func attributes(list string) map[string]string {
	out := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(list, -1) {
		out[strings.ToUpper(m[1])] = strings.Trim(m[2], `"`)
	}
	return out
}

func lines(content string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	return out
}
