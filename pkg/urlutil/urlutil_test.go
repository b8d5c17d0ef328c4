package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		baseURL string
		want    string
	}{
		{
			name:    "absolute URL unchanged",
			ref:     "https://example.com/index.m3u8",
			baseURL: "https://other.com/master.m3u8",
			want:    "https://example.com/index.m3u8",
		},
		{
			name:    "relative path",
			ref:     "720/index.m3u8",
			baseURL: "https://cdn.example.com/hls/master.m3u8",
			want:    "https://cdn.example.com/hls/720/index.m3u8",
		},
		{
			name:    "dot relative path",
			ref:     "./720/index.m3u8",
			baseURL: "https://cdn.example.com/hls/master.m3u8",
			want:    "https://cdn.example.com/hls/720/index.m3u8",
		},
		{
			name:    "root relative path",
			ref:     "/stream/abc.m3u8",
			baseURL: "https://embed.example.com/e/xyz",
			want:    "https://embed.example.com/stream/abc.m3u8",
		},
		{
			name:    "protocol relative",
			ref:     "//cdn.example.com/v.mp4",
			baseURL: "https://embed.example.com/e/xyz",
			want:    "https://cdn.example.com/v.mp4",
		},
		{
			name:    "parent directory reference",
			ref:     "../audio/index.m3u8",
			baseURL: "https://cdn.example.com/stream/video/master.m3u8",
			want:    "https://cdn.example.com/stream/audio/index.m3u8",
		},
		{
			name:    "parent references stop at host",
			ref:     "../../../x.m3u8",
			baseURL: "https://cdn.example.com/a/master.m3u8",
			want:    "https://cdn.example.com/x.m3u8",
		},
		{
			name:    "preserves special characters",
			ref:     "seg(1).m3u8",
			baseURL: "https://cdn.example.com/stream(1)/master.m3u8",
			want:    "https://cdn.example.com/stream(1)/seg(1).m3u8",
		},
		{
			name:    "base with query string",
			ref:     "index.m3u8",
			baseURL: "https://cdn.example.com/hls/master.m3u8?t=99",
			want:    "https://cdn.example.com/hls/index.m3u8",
		},
		{
			name:    "base without path",
			ref:     "index.m3u8",
			baseURL: "https://cdn.example.com",
			want:    "https://cdn.example.com/index.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.ref, tt.baseURL))
		})
	}
}

func TestInheritQuery(t *testing.T) {
	assert.Equal(t, "https://c/720.m3u8?t=99", InheritQuery("https://c/720.m3u8", "https://c/master.m3u8?t=99"))
	assert.Equal(t, "https://c/720.m3u8?own=1", InheritQuery("https://c/720.m3u8?own=1", "https://c/master.m3u8?t=99"))
	assert.Equal(t, "https://c/720.m3u8", InheritQuery("https://c/720.m3u8", "https://c/master.m3u8"))
}

func TestOriginAndQuery(t *testing.T) {
	assert.Equal(t, "https://embed.example", Origin("https://embed.example/e/1?x=2"))
	assert.Equal(t, "", Origin("not a url"))
	assert.True(t, HasQuery("https://a/b.m3u8?tok=1"))
	assert.False(t, HasQuery("https://a/b.m3u8?"))
	assert.Equal(t, "tok=1", RawQuery("https://a/b.m3u8?tok=1#frag"))
	assert.Equal(t, "cdn.example", Host("https://CDN.example:8443/x"))
}
