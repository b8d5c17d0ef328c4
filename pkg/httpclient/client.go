// Package httpclient provides the HTTP client used for every embed, manifest
// and probe request, with proxy routing and browser-like TLS where needed.
package httpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"embed-resolver-go/pkg/config"
	"embed-resolver-go/pkg/flaresolverr"
	"embed-resolver-go/pkg/logging"
)

// Client wraps http.Client with proxy routing and connection pooling.
type Client struct {
	defaultClient *http.Client
	utlsClient    *http.Client // browser-like TLS fingerprint for Cloudflare-fronted hosts
	proxyClients  *xsync.MapOf[string, *http.Client]
	limiters      *xsync.MapOf[string, *rate.Limiter]
	routes        []config.TransportRoute
	globalProxies []string
	utlsDomains   []string
	userAgent     string
	hostRate      rate.Limit
	hostBurst     int
	solver        *flaresolverr.Client
	log           *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithSolver enables the FlareSolverr fallback for challenged pages.
func WithSolver(s *flaresolverr.Client) Option {
	return func(c *Client) { c.solver = s }
}

func dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
}

// ipv4DialContext forces IPv4-only connections.
func ipv4DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "tcp" {
		network = "tcp4"
	}
	return dialer().DialContext(ctx, network, addr)
}

// New creates a new HTTP client with the given configuration.
func New(cfg *config.Config, log *logging.Logger, opts ...Option) *Client {
	c := &Client{
		proxyClients:  xsync.NewMapOf[string, *http.Client](),
		limiters:      xsync.NewMapOf[string, *rate.Limiter](),
		routes:        cfg.TransportRoutes,
		globalProxies: cfg.GlobalProxies,
		utlsDomains:   cfg.UTLSDomains,
		userAgent:     cfg.UserAgent,
		hostRate:      rate.Limit(cfg.HostRateLimit),
		hostBurst:     max(cfg.HostRateBurst, 1),
		log:           log.WithComponent("httpclient"),
	}
	if c.userAgent == "" {
		c.userAgent = config.DefaultUserAgent
	}

	c.defaultClient = &http.Client{
		Transport: &http.Transport{
			DialContext:           ipv4DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}
	c.utlsClient = &http.Client{
		Transport: newUTLSRoundTripper(),
		Timeout:   30 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the configured browser user agent.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// utlsRoundTripper implements http.RoundTripper with utls and HTTP/2 support.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper() *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer:      dialer(),
		h2Transport: &http2.Transport{},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "443")
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp4", addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: req.URL.Hostname()}, utls.HelloChrome_120)
	if err := uconn.HandshakeContext(req.Context()); err != nil {
		conn.Close()
		return nil, err
	}

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(uconn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}

	return t.doHTTP1Request(uconn, req)
}

func (t *utlsRoundTripper) doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{resp.Body, conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	c.ReadCloser.Close()
	return c.conn.Close()
}

// needsUTLS returns true if the URL's host is configured for browser-like TLS.
func (c *Client) needsUTLS(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, domain := range c.utlsDomains {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}

// Do executes an HTTP request, routing through proxies as configured and
// waiting on the per-host rate limit when one is set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.wait(req.Context(), req.URL.Hostname()); err != nil {
		return nil, err
	}
	return c.clientFor(req.URL.String()).Do(req)
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.hostRate <= 0 || host == "" {
		return nil
	}
	lim, _ := c.limiters.LoadOrCompute(strings.ToLower(host), func() *rate.Limiter {
		return rate.NewLimiter(c.hostRate, c.hostBurst)
	})
	return lim.Wait(ctx)
}

// clientFor returns the appropriate HTTP client based on URL routing rules.
func (c *Client) clientFor(targetURL string) *http.Client {
	if c.needsUTLS(targetURL) {
		c.log.Debug("using utls client", "url", targetURL)
		return c.utlsClient
	}

	for _, route := range c.routes {
		if !strings.Contains(targetURL, route.URLPattern) {
			continue
		}
		c.log.Debug("matched transport route", "url", targetURL, "pattern", route.URLPattern, "proxy", route.Proxy, "direct", route.Direct)

		switch {
		case route.Direct && route.DisableSSL:
			return c.proxyClient("", true)
		case route.Direct:
			return c.defaultClient
		case route.Proxy != "":
			return c.proxyClient(route.Proxy, route.DisableSSL)
		case route.DisableSSL:
			return c.proxyClient("", true)
		}
	}

	if len(c.globalProxies) > 0 {
		return c.proxyClient(c.globalProxies[0], false)
	}

	return c.defaultClient
}

// proxyClient returns a cached client for the given proxy, creating it once.
func (c *Client) proxyClient(proxyURL string, disableSSL bool) *http.Client {
	key := proxyURL
	if disableSSL {
		key += ":insecure"
	}
	client, _ := c.proxyClients.LoadOrCompute(key, func() *http.Client {
		c.log.Debug("created proxy client", "proxy", proxyURL, "disable_ssl", disableSSL)
		return c.newProxyClient(proxyURL, disableSSL)
	})
	return client
}

func (c *Client) newProxyClient(proxyURL string, disableSSL bool) *http.Client {
	transport := &http.Transport{
		DialContext:           ipv4DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if disableSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			c.log.Error("failed to parse proxy URL", "url", proxyURL, "error", err)
			return c.defaultClient
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			d, err := proxy.FromURL(parsed, proxy.Direct)
			if err != nil {
				c.log.Error("failed to create SOCKS5 dialer", "error", err)
				return c.defaultClient
			}
			if cd, ok := d.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return d.Dial(network, addr)
				}
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		default:
			c.log.Warn("unsupported proxy scheme", "scheme", parsed.Scheme)
			return c.defaultClient
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// FilteredHeaders returns headers with hop-by-hop and identifying entries removed.
func FilteredHeaders(headers http.Header) http.Header {
	blocked := map[string]bool{
		"x-forwarded-for": true,
		"x-real-ip":       true,
		"forwarded":       true,
		"via":             true,
		"host":            true,
		"connection":      true,
		"accept-encoding": true,
	}

	filtered := make(http.Header)
	for key, values := range headers {
		if !blocked[strings.ToLower(key)] {
			filtered[key] = values
		}
	}
	return filtered
}

// ParseHeaderParams extracts headers from query parameters with the h_ prefix,
// converting underscores to hyphens (h_User_Agent -> User-Agent).
func ParseHeaderParams(query url.Values) map[string]string {
	headers := make(map[string]string)
	for key, values := range query {
		if strings.HasPrefix(key, "h_") && len(values) > 0 {
			headers[strings.ReplaceAll(key[2:], "_", "-")] = values[0]
		}
	}
	return headers
}
