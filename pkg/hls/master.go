package hls

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/grafov/m3u8"

	"embed-resolver-go/pkg/types"
)

// DataURIPrefix marks a playlist served inline rather than by URL.
const DataURIPrefix = "data:application/vnd.apple.mpegurl;base64,"

const audioGroup = "audio"

// BuildAudioMaster writes a master playlist over m's variants that declares
// every audio track, with only the track named target marked as default.
// The playlist is returned as a data URI so players that ignore the
// default flag in the origin's master still pick the wanted language.
func BuildAudioMaster(m *Manifest, target string) (string, error) {
	if len(m.Variants) == 0 {
		return "", fmt.Errorf("manifest %s has no variants", m.URL)
	}

	found := false
	alts := make([]*m3u8.Alternative, 0, len(m.Audio))
	for _, a := range m.Audio {
		if a.URI == "" {
			continue
		}
		isDefault := a.Name == target
		found = found || isDefault
		alt := &m3u8.Alternative{
			GroupId:    audioGroup,
			URI:        a.URI,
			Type:       "AUDIO",
			Language:   a.Language,
			Name:       a.Name,
			Default:    isDefault,
			Autoselect: "NO",
		}
		if isDefault {
			alt.Autoselect = "YES"
		}
		alts = append(alts, alt)
	}
	if !found {
		return "", fmt.Errorf("audio track %q not found in %s", target, m.URL)
	}

	p := m3u8.NewMasterPlaylist()
	for i, v := range m.Variants {
		params := m3u8.VariantParams{
			Bandwidth: bandwidthFor(v.Quality),
			Audio:     audioGroup,
		}
		if h := v.Quality.Rank(); h > 0 {
			params.Resolution = fmt.Sprintf("%dx%d", h*16/9, h)
		}
		// alternatives are written once, ahead of the first variant
		if i == 0 {
			params.Alternatives = alts
		}
		p.Append(v.URL, nil, params)
	}

	return DataURIPrefix + base64.StdEncoding.EncodeToString([]byte(p.String())), nil
}

// DecodeDataURI returns the playlist text carried by a data URI.
func DecodeDataURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, DataURIPrefix) {
		return "", false
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, DataURIPrefix))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func bandwidthFor(q types.Quality) uint32 {
	switch h := q.Rank(); {
	case h >= 2160:
		return 15000000
	case h >= 1080:
		return 5000000
	case h >= 720:
		return 2800000
	case h >= 480:
		return 1400000
	case h > 0:
		return uint32(h) * 2000
	default:
		return 800000
	}
}
