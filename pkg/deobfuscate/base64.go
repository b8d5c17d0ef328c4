package deobfuscate

import (
	"encoding/base64"
	"strings"

	"github.com/grafana/regexp"
	"github.com/samber/lo"
	"mvdan.cc/xurls/v2"
)

var (
	blobRe   = regexp.MustCompile(`[A-Za-z0-9+/]{24,}={0,2}`)
	strictRe = xurls.Strict()
)

// ScanBase64 decodes every base64-looking blob in text and returns the URLs
// found in blobs that decode to a playlist reference or an http address.
func ScanBase64(text string) []string {
	var urls []string
	for _, blob := range blobRe.FindAllString(text, -1) {
		decoded, ok := decodeLenient(blob)
		if !ok {
			continue
		}
		if !strings.Contains(decoded, ".m3u8") && !strings.HasPrefix(decoded, "http") {
			continue
		}

		found := strictRe.FindAllString(decoded, -1)
		if len(found) == 0 && strings.HasPrefix(decoded, "http") {
			found = []string{strings.TrimSpace(decoded)}
		}
		urls = append(urls, found...)
	}
	return lo.Uniq(urls)
}

func decodeLenient(blob string) (string, bool) {
	raw := strings.TrimRight(blob, "=")
	b, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil {
		// drop a dangling sextet, which padding-free encoders sometimes emit
		if len(raw)%4 == 1 {
			b, err = base64.RawStdEncoding.DecodeString(raw[:len(raw)-1])
		}
		if err != nil {
			return "", false
		}
	}
	return string(b), true
}
