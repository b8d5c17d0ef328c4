// Package pipeline runs one embed reference through extraction, manifest
// expansion and link validation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"embed-resolver-go/pkg/hls"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/metrics"
	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/urlutil"
)

// ManifestResolver expands a playlist URL. *hls.Resolver satisfies it.
type ManifestResolver interface {
	Resolve(ctx context.Context, manifestURL string, headers map[string]string) (*hls.Manifest, error)
}

// ExtractorSource picks the extractor for an embed URL.
// *registry.ExtractorRegistry satisfies it.
type ExtractorSource interface {
	Get(url string) interfaces.Extractor
}

// Options tunes stream construction.
type Options struct {
	// SplitAudioTracks emits one inline master per audio track, each with
	// that track as the default, instead of a single shared master.
	SplitAudioTracks bool
	// Headers are sent with every request made for an embed.
	Headers map[string]string
}

// Pipeline resolves embed references into validated streams.
type Pipeline struct {
	extractors ExtractorSource
	manifests  ManifestResolver
	validator  interfaces.LinkValidator
	log        *logging.Logger
	opts       Options
}

// New creates a pipeline.
func New(extractors ExtractorSource, manifests ManifestResolver, validator interfaces.LinkValidator, log *logging.Logger, opts Options) *Pipeline {
	return &Pipeline{
		extractors: extractors,
		manifests:  manifests,
		validator:  validator,
		log:        log.WithComponent("pipeline"),
		opts:       opts,
	}
}

// Resolve runs ref through every stage once. An embed that yields nothing
// playable returns nil, nil. Errors are reserved for misuse, such as a
// reference without a URL or an extractor producing something that is not a URL.
func (p *Pipeline) Resolve(ctx context.Context, ref types.EmbedReference) ([]types.ResolvedStream, error) {
	if ref.URL == "" || !urlutil.IsAbsolute(ref.URL) {
		return nil, fmt.Errorf("embed reference %q: not an absolute url", ref.URL)
	}
	start := time.Now()
	log := p.log.With("embed", ref.URL)

	extractor := p.extractors.Get(ref.URL)
	if extractor == nil {
		return nil, fmt.Errorf("no extractor for %s", ref.URL)
	}

	res, err := extractor.Extract(ctx, ref.URL, interfaces.ExtractOptions{
		Headers: lo.Assign(p.opts.Headers, ref.Headers),
		Referer: ref.Referer,
	})
	if err != nil {
		log.Debug("extraction yielded nothing", "extractor", extractor.Name(), "error", err)
		metrics.Embeds.WithLabelValues("empty").Inc()
		return nil, nil
	}

	base := types.ResolvedStream{
		Referer: res.Referer,
		Origin:  res.Origin,
		Label:   ref.Label,
		Headers: res.Headers,
	}
	if base.Label == "" {
		base.Label = res.Label
	}
	if base.Referer == "" {
		base.Referer = ref.URL
	}
	if base.Origin == "" {
		base.Origin = urlutil.Origin(ref.URL)
	}

	var streams []types.ResolvedStream
	if hls.LooksLikeHLS(res.MediaURL) {
		streams, err = p.expand(ctx, res.MediaURL, base)
		if err != nil {
			metrics.Embeds.WithLabelValues("error").Inc()
			return nil, err
		}
	} else {
		s := base
		s.URL = res.MediaURL
		s.Quality = hls.QualityFromText(res.MediaURL)
		s.AudioTracks = []string{}
		streams = []types.ResolvedStream{s}
	}

	playable := make([]types.ResolvedStream, 0, len(streams))
	for _, s := range streams {
		if p.validator.IsPlayable(ctx, s.URL, s.PlaybackHeaders()) {
			playable = append(playable, s)
		} else {
			log.Debug("dropping unplayable stream", "stream", s.URL)
		}
	}

	outcome := "resolved"
	if len(playable) == 0 {
		outcome = "empty"
	}
	metrics.Embeds.WithLabelValues(outcome).Inc()
	log.Debug("embed resolved",
		"media", res.MediaURL,
		"streams", len(playable),
		"dropped", len(streams)-len(playable),
		"duration", time.Since(start))

	if len(playable) == 0 {
		return nil, nil
	}
	return playable, nil
}

// expand resolves a playlist and turns it into streams.
func (p *Pipeline) expand(ctx context.Context, manifestURL string, base types.ResolvedStream) ([]types.ResolvedStream, error) {
	m, err := p.manifests.Resolve(ctx, manifestURL, base.PlaybackHeaders())
	switch {
	case errors.Is(err, hls.ErrNotVideoManifest):
		metrics.Manifests.WithLabelValues("audio_only").Inc()
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("resolve manifest: %w", err)
	}

	kind := "media"
	if m.IsMaster {
		kind = "master"
	}
	metrics.Manifests.WithLabelValues(kind).Inc()

	return p.streams(m, base), nil
}

// streams builds output streams from a manifest:
//   - split audio mode with several tracks: one inline master per track;
//   - a master with several tracks: the master itself, best quality;
//   - otherwise one stream per variant.
func (p *Pipeline) streams(m *hls.Manifest, base types.ResolvedStream) []types.ResolvedStream {
	audio := m.AudioNames()
	best, ok := m.Best()
	if !ok {
		return nil
	}

	if m.IsMaster && len(m.Audio) > 1 {
		if p.opts.SplitAudioTracks {
			if out := p.perTrack(m, base, best.Quality); len(out) > 0 {
				return out
			}
		}
		s := base
		s.URL = m.URL
		s.Quality = best.Quality
		s.AudioTracks = audio
		s.IsMasterPlaylist = true
		return []types.ResolvedStream{s}
	}

	out := make([]types.ResolvedStream, 0, len(m.Variants))
	for _, v := range m.Variants {
		s := base
		s.URL = v.URL
		s.Quality = v.Quality
		s.AudioTracks = audio
		out = append(out, s)
	}
	return out
}

func (p *Pipeline) perTrack(m *hls.Manifest, base types.ResolvedStream, q types.Quality) []types.ResolvedStream {
	var out []types.ResolvedStream
	for _, track := range m.Audio {
		uri, err := hls.BuildAudioMaster(m, track.Name)
		if err != nil {
			p.log.Debug("skipping audio track", "track", track.Name, "error", err)
			continue
		}
		s := base
		s.URL = uri
		s.Quality = q
		// the generated master declares every track; the default comes first
		s.AudioTracks = append([]string{track.Name}, lo.Without(m.AudioNames(), track.Name)...)
		s.IsMasterPlaylist = true
		out = append(out, s)
	}
	return out
}
