package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/extractors"
	"embed-resolver-go/pkg/hls"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/interfaces"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/registry"
	"embed-resolver-go/pkg/types"
	"embed-resolver-go/pkg/validator"
)

const masterFixture = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="English",LANGUAGE="en",URI="audio/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,AUDIO="aud"
1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720,AUDIO="aud"
720/index.m3u8
`

const dualAudioFixture = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="Hindi",LANGUAGE="hi",CHANNELS="6",URI="hi.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",NAME="Tamil",LANGUAGE="ta",CHANNELS="2",URI="ta.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720,AUDIO="aud"
720.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,AUDIO="aud"
1080.m3u8
`

type fakeExtractor struct {
	res *types.ExtractResult
	err error
	got interfaces.ExtractOptions
}

func (f *fakeExtractor) Name() string                    { return "fake" }
func (f *fakeExtractor) CanExtract(string) bool          { return true }
func (f *fakeExtractor) Close() error                    { return nil }
func (f *fakeExtractor) Get(string) interfaces.Extractor { return f }
func (f *fakeExtractor) Extract(_ context.Context, _ string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	f.got = opts
	return f.res, f.err
}

type fakeManifests struct {
	body string
	err  error
}

func (f *fakeManifests) Resolve(_ context.Context, u string, _ map[string]string) (*hls.Manifest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return hls.Parse(f.body, u)
}

type fakeValidator struct {
	dead map[string]bool
}

func (f *fakeValidator) IsPlayable(_ context.Context, u string, _ map[string]string) bool {
	return !f.dead[u]
}

func newPipeline(ex *fakeExtractor, m *fakeManifests, v *fakeValidator, opts Options) *Pipeline {
	if v == nil {
		v = &fakeValidator{}
	}
	return New(ex, m, v, logging.New("error", false, nil), opts)
}

func ref(u string) types.EmbedReference {
	return types.EmbedReference{URL: u, Label: "S01E02", Referer: "https://content.example/show"}
}

func TestResolve_MasterVariants(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{
		MediaURL: "https://cdn.example/hls/master.m3u8?t=99",
		Referer:  "https://embed.example/",
		Origin:   "https://embed.example",
	}}
	p := newPipeline(ex, &fakeManifests{body: masterFixture}, nil, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/1"))
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Equal(t, "https://cdn.example/hls/1080/index.m3u8?t=99", streams[0].URL)
	assert.Equal(t, types.Quality1080p, streams[0].Quality)
	assert.Equal(t, "https://cdn.example/hls/720/index.m3u8?t=99", streams[1].URL)
	assert.Equal(t, types.Quality720p, streams[1].Quality)

	for _, s := range streams {
		assert.False(t, s.IsMasterPlaylist)
		assert.Equal(t, []string{"English"}, s.AudioTracks)
		assert.Equal(t, "https://embed.example/", s.Referer)
		assert.Equal(t, "https://embed.example", s.Origin)
		assert.Equal(t, "S01E02", s.Label)
	}
	assert.Equal(t, "https://content.example/show", ex.got.Referer)
}

func TestResolve_MultiAudioMaster(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/m/master.m3u8"}}
	p := newPipeline(ex, &fakeManifests{body: dualAudioFixture}, nil, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/2"))
	require.NoError(t, err)
	require.Len(t, streams, 1)

	s := streams[0]
	assert.Equal(t, "https://cdn.example/m/master.m3u8", s.URL)
	assert.True(t, s.IsMasterPlaylist)
	assert.Equal(t, types.Quality1080p, s.Quality)
	assert.Equal(t, []string{"Hindi (5.1)", "Tamil (2.0)"}, s.AudioTracks)
	assert.Equal(t, "https://embed.example/e/2", s.Referer)
	assert.Equal(t, "https://embed.example", s.Origin)
}

func TestResolve_SplitAudioTracks(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/m/master.m3u8"}}
	p := newPipeline(ex, &fakeManifests{body: dualAudioFixture}, nil, Options{SplitAudioTracks: true})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/3"))
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Equal(t, []string{"Hindi (5.1)", "Tamil (2.0)"}, streams[0].AudioTracks)
	assert.Equal(t, []string{"Tamil (2.0)", "Hindi (5.1)"}, streams[1].AudioTracks)

	for _, s := range streams {
		assert.True(t, s.IsMasterPlaylist)
		assert.Equal(t, types.Quality1080p, s.Quality)

		body, ok := hls.DecodeDataURI(s.URL)
		require.True(t, ok)
		pl, listType, err := m3u8.DecodeFrom(strings.NewReader(body), true)
		require.NoError(t, err)
		require.Equal(t, m3u8.MASTER, listType)

		master := pl.(*m3u8.MasterPlaylist)
		require.Len(t, master.Variants, 2)
		assert.Equal(t, "https://cdn.example/m/1080.m3u8", master.Variants[0].URI)

		defaults := []string{}
		for _, alt := range master.Variants[0].Alternatives {
			if alt.Default {
				defaults = append(defaults, alt.Name)
			}
		}
		assert.Equal(t, []string{s.AudioTracks[0]}, defaults)
	}
}

func TestResolve_AudioOnlySkipped(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/a/master.m3u8"}}
	p := newPipeline(ex, &fakeManifests{err: hls.ErrNotVideoManifest}, nil, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/4"))
	assert.NoError(t, err)
	assert.Empty(t, streams)
}

func TestResolve_ContractErrorPropagates(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/x.m3u8"}}
	p := newPipeline(ex, &fakeManifests{err: hls.ErrInvalidManifestURL}, nil, Options{})

	_, err := p.Resolve(context.Background(), ref("https://embed.example/e/5"))
	assert.ErrorIs(t, err, hls.ErrInvalidManifestURL)

	_, err = p.Resolve(context.Background(), types.EmbedReference{URL: "not a url"})
	assert.Error(t, err)
}

func TestResolve_ExtractionMissIsEmpty(t *testing.T) {
	ex := &fakeExtractor{err: fmt.Errorf("wrapped: %w", extractors.ErrNoStream)}
	p := newPipeline(ex, &fakeManifests{}, nil, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/6"))
	assert.NoError(t, err)
	assert.Nil(t, streams)
}

func TestResolve_DirectMP4(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/files/movie.720p.mp4"}}
	p := newPipeline(ex, &fakeManifests{err: errors.New("must not be called")}, nil, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/7"))
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, types.Quality720p, streams[0].Quality)
	assert.False(t, streams[0].IsMasterPlaylist)
	assert.Empty(t, streams[0].AudioTracks)
}

func TestResolve_DropsDeadVariants(t *testing.T) {
	ex := &fakeExtractor{res: &types.ExtractResult{MediaURL: "https://cdn.example/hls/master.m3u8"}}
	v := &fakeValidator{dead: map[string]bool{"https://cdn.example/hls/1080/index.m3u8": true}}
	p := newPipeline(ex, &fakeManifests{body: masterFixture}, v, Options{})

	streams, err := p.Resolve(context.Background(), ref("https://embed.example/e/8"))
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, types.Quality720p, streams[0].Quality)

	v.dead["https://cdn.example/hls/720/index.m3u8"] = true
	streams, err = p.Resolve(context.Background(), ref("https://embed.example/e/8"))
	assert.NoError(t, err)
	assert.Nil(t, streams)
}

// packedEmbed hides a jwplayer setup for mediaURL behind a packer eval.
func packedEmbed(mediaURL string) string {
	return `<html><head><title>Player</title></head><body><div id="vplayer"></div><script type="text/javascript">` +
		`eval(function(p,a,c,k,e,d){while(c--)if(k[c])p=p.replace(new RegExp('\\b'+c.toString(a)+'\\b','g'),k[c]);return p}` +
		`('3("4").1({2:"0"});',10,5,'` + mediaURL + `|setup|file|jwplayer|vplayer'.split('|'),0,{}))</script></body></html>`
}

func TestResolve_EndToEnd(t *testing.T) {
	var srvURL string
	var variantReferers []string
	mux := http.NewServeMux()
	mux.HandleFunc("/e/abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(packedEmbed(srvURL + "/master.m3u8?t=99")))
	})
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("t") != "99" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(masterFixture))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/index.m3u8") || r.URL.Query().Get("t") != "99" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		variantReferers = append(variantReferers, r.Header.Get("Referer"))
		w.WriteHeader(http.StatusPartialContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	log := logging.New("error", false, nil)
	client := httpclient.New(&config.Config{}, log)

	reg := registry.NewExtractorRegistry()
	reg.SetFallback(extractors.NewEmbedExtractor(client, log, extractors.EmbedOptions{Timeout: 2 * time.Second}))

	p := New(reg,
		hls.NewResolver(client, log, 2*time.Second),
		validator.New(client, log, 2*time.Second, 0),
		log,
		Options{})

	streams, err := p.Resolve(context.Background(), types.EmbedReference{URL: srv.URL + "/e/abc"})
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Equal(t, types.Quality1080p, streams[0].Quality)
	assert.Equal(t, srv.URL+"/1080/index.m3u8?t=99", streams[0].URL)
	assert.Equal(t, types.Quality720p, streams[1].Quality)
	assert.Equal(t, srv.URL+"/720/index.m3u8?t=99", streams[1].URL)
	for _, s := range streams {
		assert.Equal(t, srv.URL+"/", s.Referer)
	}
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/"}, variantReferers)
}
