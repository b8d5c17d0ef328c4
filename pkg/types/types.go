// Package types defines core domain types used throughout the application.
package types

import (
	"strconv"
	"strings"
)

// Quality is a normalized resolution label.
type Quality string

const (
	Quality4K      Quality = "4K"
	Quality1080p   Quality = "1080p"
	Quality720p    Quality = "720p"
	Quality480p    Quality = "480p"
	QualityUnknown Quality = "Unknown"
)

// HeightToQuality maps a vertical resolution to a quality label.
// Heights below 480 keep their numeric form, e.g. "360p".
func HeightToQuality(height int) Quality {
	switch {
	case height <= 0:
		return QualityUnknown
	case height >= 2160:
		return Quality4K
	case height >= 1080:
		return Quality1080p
	case height >= 720:
		return Quality720p
	case height >= 480:
		return Quality480p
	default:
		return Quality(strconv.Itoa(height) + "p")
	}
}

// Rank orders qualities; higher is better. Unknown and unparseable labels rank 0.
func (q Quality) Rank() int {
	switch q {
	case Quality4K:
		return 2160
	case Quality1080p:
		return 1080
	case Quality720p:
		return 720
	case Quality480p:
		return 480
	}
	s := string(q)
	if !strings.HasSuffix(s, "p") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// EmbedReference is an embed-page URL discovered on a content page.
// Headers are sent with every request made for the embed.
type EmbedReference struct {
	URL     string            `json:"url"`
	Label   string            `json:"label,omitempty"`
	Referer string            `json:"referer,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MediaCandidate is a URL found in embed text that might be a playable stream.
type MediaCandidate struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// AudioTrack is an alternate audio rendition declared by a master playlist.
type AudioTrack struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	URI      string `json:"uri,omitempty"`
}

// Variant is one video rendition of a master playlist.
type Variant struct {
	URL     string  `json:"url"`
	Quality Quality `json:"quality"`
}

// ResolvedStream is the final output of the pipeline.
type ResolvedStream struct {
	URL              string            `json:"url"`
	Quality          Quality           `json:"quality"`
	AudioTracks      []string          `json:"audio_tracks"`
	IsMasterPlaylist bool              `json:"is_master_playlist"`
	Referer          string            `json:"referer,omitempty"`
	Origin           string            `json:"origin,omitempty"`
	Label            string            `json:"label,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
}

// PlaybackHeaders returns the headers a player must send to fetch the stream.
func (s ResolvedStream) PlaybackHeaders() map[string]string {
	h := make(map[string]string, len(s.Headers)+2)
	for k, v := range s.Headers {
		h[k] = v
	}
	if s.Referer != "" {
		h["Referer"] = s.Referer
	}
	if s.Origin != "" {
		h["Origin"] = s.Origin
	}
	return h
}

// ExtractResult contains the result of embed extraction.
type ExtractResult struct {
	MediaURL string            `json:"media_url"`
	Referer  string            `json:"referer,omitempty"`
	Origin   string            `json:"origin,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Label    string            `json:"label,omitempty"`
}
