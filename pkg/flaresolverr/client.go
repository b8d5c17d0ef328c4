// Package flaresolverr provides a client for the FlareSolverr API, used to
// fetch embed pages that sit behind a Cloudflare challenge.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"embed-resolver-go/pkg/logging"
)

// Cookie represents a cookie from a FlareSolverr solution.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Solution is the page FlareSolverr obtained after passing the challenge.
type Solution struct {
	URL       string
	Status    int
	Body      string
	Cookies   []Cookie
	UserAgent string
}

// CookieHeader renders the solution cookies as a Cookie header value.
func (s *Solution) CookieHeader() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

type request struct {
	Cmd        string   `json:"cmd"`
	URL        string   `json:"url"`
	MaxTimeout int      `json:"maxTimeout"`
	Cookies    []Cookie `json:"cookies,omitempty"`
}

// Client is a FlareSolverr API client.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a new FlareSolverr client. An empty baseURL yields a
// client that reports itself as unconfigured.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + 10*time.Second,
		},
		log: log.WithComponent("flaresolverr"),
	}
}

// IsConfigured returns true if a FlareSolverr endpoint was given.
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Solve fetches targetURL through FlareSolverr.
func (c *Client) Solve(ctx context.Context, targetURL string, cookies []Cookie) (*Solution, error) {
	c.log.Debug("solving challenge", "url", targetURL)

	body, err := json.Marshal(request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
		Cookies:    cookies,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flaresolverr returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("flaresolverr returned invalid json")
	}

	doc := gjson.ParseBytes(raw)
	if status := doc.Get("status").String(); status != "ok" {
		return nil, fmt.Errorf("flaresolverr error: %s", doc.Get("message").String())
	}

	sol := &Solution{
		URL:       doc.Get("solution.url").String(),
		Status:    int(doc.Get("solution.status").Int()),
		Body:      doc.Get("solution.response").String(),
		UserAgent: doc.Get("solution.userAgent").String(),
	}
	doc.Get("solution.cookies").ForEach(func(_, v gjson.Result) bool {
		sol.Cookies = append(sol.Cookies, Cookie{
			Name:   v.Get("name").String(),
			Value:  v.Get("value").String(),
			Domain: v.Get("domain").String(),
			Path:   v.Get("path").String(),
		})
		return true
	})

	c.log.Debug("challenge solved",
		"url", targetURL,
		"status", sol.Status,
		"cookies", len(sol.Cookies),
		"response_length", len(sol.Body))

	return sol, nil
}

var challengeMarkers = []string{
	"cf-browser-verification",
	"cf_chl_opt",
	"challenge-platform",
	"<title>Just a moment...</title>",
	"Attention Required! | Cloudflare",
}

// IsChallenge reports whether a response looks like a Cloudflare challenge page.
func IsChallenge(status int, server, body string) bool {
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false
	}
	if strings.EqualFold(server, "cloudflare") {
		return true
	}
	for _, m := range challengeMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}
