package candidates

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embed-resolver-go/pkg/types"
)

const pageURL = "https://embed.example/e/abc123"

func urls(cands []types.MediaCandidate) []string {
	return lo.Map(cands, func(c types.MediaCandidate, _ int) string { return c.URL })
}

func TestExtractCoversEveryFamily(t *testing.T) {
	html := `<html><script>
var links = {"hls3":"https://a.example/hls3/index.m3u8"};
jwplayer("p").setup({sources:[{file:"https://b.example/v/master.m3u8"}]});
</script>
<p>backup: https://c.example/live/stream.m3u8 end</p>
<script>var rel = '/hls/relative.m3u8';</script>
<p>download https://e.example/video.mp4 now</p>
</html>`

	got := Extract(html, pageURL)
	assert.Subset(t, urls(got), []string{
		"https://a.example/hls3/index.m3u8",
		"https://b.example/v/master.m3u8",
		"https://c.example/live/stream.m3u8",
		"https://embed.example/hls/relative.m3u8",
		"https://e.example/video.mp4",
	})
	assert.Len(t, got, 5, "duplicates across families are collapsed")

	bySource := lo.SliceToMap(got, func(c types.MediaCandidate) (string, string) { return c.URL, c.Source })
	assert.Equal(t, SourceHLSKey, bySource["https://a.example/hls3/index.m3u8"])
	assert.Equal(t, SourceSources, bySource["https://b.example/v/master.m3u8"])
	assert.Equal(t, SourceRelative, bySource["https://embed.example/hls/relative.m3u8"])
}

func TestExtractKeyValueAndTxt(t *testing.T) {
	html := `player.src = "//cdn.example/files/clip.mp4"; var x = {file: "https://m.example/hls/master.txt?e=1"};`

	got := urls(Extract(html, pageURL))
	assert.Contains(t, got, "https://cdn.example/files/clip.mp4")
	assert.Contains(t, got, "https://m.example/hls/master.txt?e=1")
}

func TestExtractDropsFalsePositives(t *testing.T) {
	html := `<iframe src="https://www.youtube.com/embed/x.mp4"></iframe>
<script>var a = "https://www.google.com/ads/x.m3u8"; var s = {file:"/a.m3u8"};</script>`

	got := urls(Extract(html, ""))
	assert.Empty(t, got, "blocked hosts are dropped and relative paths need a page URL")
}

func TestExtractUnescapes(t *testing.T) {
	html := `{"file":"https:\/\/cdn.example\/v\/index.m3u8?a=1&amp;b=2"}`
	assert.Equal(t, []string{"https://cdn.example/v/index.m3u8?a=1&b=2"}, urls(Extract(html, pageURL)))
}

func TestExtractUnquotedList(t *testing.T) {
	html := `<p>mirrors: https://c.example/v.mp4, https://d.example/w.m3u8; done</p>`
	got := urls(Extract(html, pageURL))
	assert.Contains(t, got, "https://c.example/v.mp4")
	assert.Contains(t, got, "https://d.example/w.m3u8")
	assert.NotContains(t, got, "https://c.example/v.mp4,")
}

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, Extract(`<html><body>No video here.</body></html>`, pageURL))
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"trailing punctuation", `https://cdn.example/a.m3u8")]`, "https://cdn.example/a.m3u8", true},
		{"trailing comma", "https://c.example/v.mp4,", "https://c.example/v.mp4", true},
		{"trailing semicolon", "https://c.example/v.m3u8?t=1;", "https://c.example/v.m3u8?t=1", true},
		{"trailing backslash", `https://cdn.example/a.m3u8\`, "https://cdn.example/a.m3u8", true},
		{"root relative", "/stream/x.m3u8", "https://embed.example/stream/x.m3u8", true},
		{"protocol relative", "//cdn.example/x.m3u8", "https://cdn.example/x.m3u8", true},
		{"too short", "/a", "", false},
		{"blocked", "https://youtube.com/watch.m3u8", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Clean(tt.raw, pageURL)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	body := `{"status":"ok","data":{"title":"x","streams":[{"src":"https://cdn.example/1080/index.m3u8"},{"src":"/files/v.mp4"}],"poster":"https://cdn.example/p.jpg"}}`

	got := ExtractJSON(body, pageURL)
	assert.Equal(t, []string{
		"https://cdn.example/1080/index.m3u8",
		"https://embed.example/files/v.mp4",
	}, urls(got))
	assert.Equal(t, SourceJSON, got[0].Source)

	assert.Nil(t, ExtractJSON("<html></html>", pageURL))
}

func TestBestRankingDeterminism(t *testing.T) {
	cands := []types.MediaCandidate{
		{URL: "http://a/x.mp4"},
		{URL: "http://a/y.m3u8?tok=1"},
		{URL: "http://a/z.m3u8"},
	}

	best, err := Best(cands)
	require.NoError(t, err)
	assert.Equal(t, "http://a/y.m3u8?tok=1", best.URL)

	assert.Equal(t, []string{"http://a/y.m3u8?tok=1", "http://a/z.m3u8", "http://a/x.mp4"}, urls(Rank(cands)))
	assert.Equal(t, "http://a/x.mp4", cands[0].URL, "input is not reordered")
}

func TestRankTieBreaks(t *testing.T) {
	cands := []types.MediaCandidate{
		{URL: "http://a/long/path/video.mp4?t=1"},
		{URL: "http://a/v.mp4?t=1"},
		{URL: "http://a/stream.m3u8"},
		{URL: "http://b/v.mp4?t=1"},
	}

	got := urls(Rank(cands))
	assert.Equal(t, []string{
		"http://a/v.mp4?t=1",
		"http://b/v.mp4?t=1",
		"http://a/long/path/video.mp4?t=1",
		"http://a/stream.m3u8",
	}, got, "equal-length ties keep input order")
}

func TestBestEmpty(t *testing.T) {
	_, err := Best(nil)
	assert.ErrorIs(t, err, ErrNoCandidate)
}
