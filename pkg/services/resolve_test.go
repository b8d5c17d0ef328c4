package services

import (
	"context"
	"encoding/base64"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embed-resolver-go/pkg/collector"
	"embed-resolver-go/pkg/httpclient"
	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

type fakeFetcher struct {
	pages map[string]string
	mu    sync.Mutex
	seen  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, u string, headers map[string]string, timeout time.Duration) (*httpclient.Page, error) {
	f.mu.Lock()
	f.seen = append(f.seen, u)
	f.mu.Unlock()
	body, ok := f.pages[u]
	if !ok {
		return &httpclient.Page{FinalURL: u, StatusCode: 404}, nil
	}
	return &httpclient.Page{Body: body, FinalURL: u, StatusCode: 200}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, ref types.EmbedReference) ([]types.ResolvedStream, error) {
	return []types.ResolvedStream{{URL: ref.URL + "/index.m3u8", Quality: types.Quality720p, Referer: ref.Referer, Label: ref.Label}}, nil
}

func newService(f *fakeFetcher) *ResolveService {
	log := logging.New("error", false, nil)
	coll := collector.New(fakeResolver{}, log, collector.Options{Concurrency: 2})
	return NewResolveService(f, fakeResolver{}, coll, log, time.Second, 0)
}

const showPage = `<html><body>
<p>Episode 1</p><iframe src="https://player.example/e/one"></iframe>
<p>Episode 2</p><iframe src="https://player.example/e/two"></iframe>
</body></html>`

func TestResolvePage_FiltersEpisode(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://site.example/show": showPage}}

	res, err := newService(f).ResolvePage(context.Background(), PageQuery{URL: "https://site.example/show", Episode: 2})
	require.NoError(t, err)

	assert.Equal(t, "https://site.example/show", res.PageURL)
	assert.Len(t, res.Embeds, 2)
	require.Len(t, res.Streams, 1)
	assert.Equal(t, "https://player.example/e/two/index.m3u8", res.Streams[0].URL)
	assert.Equal(t, "Episode 2", res.Streams[0].Label)
	assert.Equal(t, "https://site.example/show", res.Streams[0].Referer)
}

func TestResolvePage_AllEpisodes(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://site.example/show": showPage}}

	res, err := newService(f).ResolvePage(context.Background(), PageQuery{URL: "https://site.example/show"})
	require.NoError(t, err)

	urls := make([]string, 0, len(res.Streams))
	for _, s := range res.Streams {
		urls = append(urls, s.URL)
	}
	sort.Strings(urls)
	assert.Equal(t, []string{
		"https://player.example/e/one/index.m3u8",
		"https://player.example/e/two/index.m3u8",
	}, urls)
}

func TestResolvePage_FollowsTitle(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://site.example/search?q=leo": `<ul>
			<li><a href="/movie/vikram">Vikram (2022)</a></li>
			<li><a href="/movie/leo">Leo (2023) Tamil HDRip</a></li>
			<li><a href="#top">Top</a></li>
		</ul>`,
		"https://site.example/movie/leo": `<iframe src="https://player.example/e/leo"></iframe>`,
	}}

	res, err := newService(f).ResolvePage(context.Background(), PageQuery{URL: "https://site.example/search?q=leo", Title: "Leo"})
	require.NoError(t, err)

	assert.Equal(t, "https://site.example/movie/leo", res.PageURL)
	require.Len(t, res.Streams, 1)
	assert.Equal(t, "https://player.example/e/leo/index.m3u8", res.Streams[0].URL)
}

func TestResolvePage_NoTitleMatch(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://site.example/search": `<a href="/movie/vikram">Vikram (2022)</a>`,
	}}

	_, err := newService(f).ResolvePage(context.Background(), PageQuery{URL: "https://site.example/search", Title: "Jailer"})
	assert.ErrorIs(t, err, ErrNoTitleMatch)
}

func TestResolvePage_Errors(t *testing.T) {
	s := newService(&fakeFetcher{})

	_, err := s.ResolvePage(context.Background(), PageQuery{URL: "not a url"})
	assert.Error(t, err)

	_, err = s.ResolvePage(context.Background(), PageQuery{URL: "https://site.example/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDecodeURL(t *testing.T) {
	const target = "https://player.example/e/abc?x=1"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", target, target},
		{"query escaped", url.QueryEscape(target), target},
		{"base64", base64.StdEncoding.EncodeToString([]byte(target)), target},
		{"base64 unpadded", base64.RawURLEncoding.EncodeToString([]byte(target)), target},
		{"garbage", "not-a-url", "not-a-url"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeURL(tt.in))
		})
	}
}
