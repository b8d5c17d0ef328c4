package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"embed-resolver-go/pkg/flaresolverr"
	"embed-resolver-go/pkg/urlutil"
)

// MaxBodySize caps how much of a page or manifest is read.
const MaxBodySize = 8 << 20

// Page is a fetched and decoded response body.
type Page struct {
	Body       string
	FinalURL   string
	StatusCode int
	Header     http.Header
	// Cookie holds name=value pairs set by the response, ready for a Cookie header.
	Cookie string
}

// OK reports a 2xx status.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Origin returns scheme://host of the URL the page was finally served from,
// which differs from the requested one after a domain redirect.
func (p *Page) Origin() string {
	return urlutil.Origin(p.FinalURL)
}

// Fetch GETs urlStr with browser headers, decodes the body and returns it.
// A non-2xx status is not an error; callers inspect Page.StatusCode.
// timeout bounds the whole exchange; zero leaves only ctx in charge.
func (c *Client) Fetch(ctx context.Context, urlStr string, headers map[string]string, timeout time.Duration) (*Page, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.applyHeaders(req, headers)

	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	body, err := DecodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", urlStr, err)
	}

	finalURL := urlStr
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	page := &Page{
		Body:       string(body),
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Cookie:     cookieHeader(resp.Cookies()),
	}

	if c.solver.IsConfigured() && flaresolverr.IsChallenge(page.StatusCode, resp.Header.Get("Server"), page.Body) {
		c.log.Debug("challenge detected, retrying through flaresolverr", "url", urlStr)
		sol, err := c.solver.Solve(ctx, urlStr, nil)
		if err != nil {
			c.log.Debug("flaresolverr failed", "url", urlStr, "error", err)
			return page, nil
		}
		page = &Page{
			Body:       sol.Body,
			FinalURL:   firstNonEmpty(sol.URL, page.FinalURL),
			StatusCode: sol.Status,
			Header:     http.Header{},
			Cookie:     sol.CookieHeader(),
		}
	}

	return page, nil
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// applyHeaders sets browser defaults first so caller headers win.
func (c *Client) applyHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
}

// NewRequest builds a request carrying the client's browser defaults.
func (c *Client) NewRequest(ctx context.Context, method, urlStr string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req, headers)
	req.Header.Del("Accept-Encoding")
	return req, nil
}

// DecodeBody reads r, undoing the given Content-Encoding. Unknown encodings
// are passed through. At most MaxBodySize decoded bytes are returned.
func DecodeBody(r io.Reader, encoding string) ([]byte, error) {
	var dec io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		dec = gz
	case "deflate":
		// some servers send raw deflate, others zlib-wrapped
		raw, err := io.ReadAll(io.LimitReader(r, MaxBodySize))
		if err != nil {
			return nil, err
		}
		return inflate(raw)
	case "br":
		dec = brotli.NewReader(r)
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		dec = zr
	default:
		dec = r
	}
	return io.ReadAll(io.LimitReader(dec, MaxBodySize))
}

func inflate(raw []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		defer zr.Close()
		if out, err := io.ReadAll(io.LimitReader(zr, MaxBodySize)); err == nil {
			return out, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(io.LimitReader(fr, MaxBodySize))
}
