package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embed-resolver-go/pkg/services"
	"embed-resolver-go/pkg/types"
)

func TestParseHeaderFlags(t *testing.T) {
	got, err := parseHeaderFlags([]string{"Referer=https://site.example/", "Cookie: a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Referer": "https://site.example/",
		"Cookie":  "a=b",
	}, got)

	_, err = parseHeaderFlags([]string{"novalue"})
	assert.Error(t, err)

	got, err = parseHeaderFlags(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestPrintStreams(t *testing.T) {
	streams := []types.ResolvedStream{{
		URL:         "https://cdn.example/1080/index.m3u8",
		Quality:     types.Quality1080p,
		AudioTracks: []string{"Tamil", "Hindi"},
		Label:       "Episode 1",
	}}

	var buf bytes.Buffer
	require.NoError(t, printStreams(&buf, streams, false))
	out := buf.String()
	assert.Contains(t, out, "QUALITY")
	assert.Contains(t, out, "1080p")
	assert.Contains(t, out, "Tamil,Hindi")
	assert.Contains(t, out, "https://cdn.example/1080/index.m3u8")

	buf.Reset()
	require.NoError(t, printStreams(&buf, streams, true))
	var decoded struct {
		Streams []types.ResolvedStream `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, streams, decoded.Streams)

	buf.Reset()
	require.NoError(t, printStreams(&buf, nil, false))
	assert.Equal(t, "no playable streams\n", buf.String())

	buf.Reset()
	require.NoError(t, printStreams(&buf, nil, true))
	assert.JSONEq(t, `{"streams":[]}`, buf.String())
}

func TestPrintPage(t *testing.T) {
	res := &services.PageResult{
		PageURL: "https://site.example/show",
		Embeds:  []types.EmbedReference{{URL: "https://player.example/e/one", Label: "Episode 1"}},
	}

	var buf bytes.Buffer
	require.NoError(t, printPage(&buf, res, false))
	assert.Contains(t, buf.String(), "1 embeds")
	assert.Contains(t, buf.String(), "https://player.example/e/one")
	assert.Contains(t, buf.String(), "no playable streams")
}
