package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"

	"embed-resolver-go/pkg/services"
	"embed-resolver-go/pkg/types"
)

// parseHeaderFlags turns "Key=Value" or "Key: Value" pairs into a header map.
func parseHeaderFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok {
			key, value, ok = strings.Cut(v, ":")
		}
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want key=value", v)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

func printStreams(w io.Writer, streams []types.ResolvedStream, asJSON bool) error {
	if streams == nil {
		streams = []types.ResolvedStream{}
	}
	if asJSON {
		return writeJSON(w, map[string]any{"streams": streams})
	}
	if len(streams) == 0 {
		_, err := fmt.Fprintln(w, "no playable streams")
		return err
	}
	_, err := fmt.Fprintln(w, streamTable(streams))
	return err
}

func printPage(w io.Writer, res *services.PageResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}

	embeds := uitable.New()
	embeds.MaxColWidth = 100
	embeds.AddRow("EMBED", "LABEL")
	for _, e := range res.Embeds {
		embeds.AddRow(e.URL, e.Label)
	}
	if _, err := fmt.Fprintf(w, "%s\n%d embeds\n%s\n\n", res.PageURL, len(res.Embeds), embeds); err != nil {
		return err
	}
	return printStreams(w, res.Streams, false)
}

func streamTable(streams []types.ResolvedStream) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 100
	table.AddRow("QUALITY", "AUDIO", "MASTER", "LABEL", "URL")
	for _, s := range streams {
		table.AddRow(s.Quality, strings.Join(s.AudioTracks, ","), s.IsMasterPlaylist, s.Label, s.URL)
	}
	return table
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
