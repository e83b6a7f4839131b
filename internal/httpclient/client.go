// Package httpclient provides the outbound HTTP client used for the AI image
// service and for the upload CLI talking to a recipebox server.
//
// Every request URL is checked against an allowed scheme list and redirects
// are capped. Private-address blocking is optional: the AI service normally
// runs on localhost, while a client pointed at an arbitrary URL from config
// may want it on.
package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/recipebox/recipebox/errors"
)

// Options customizes a Client.
type Options struct {
	AllowedSchemes []string // default: http, https
	MaxRedirects   int      // default: 10
	BlockPrivateIP bool
}

// Client wraps http.Client with URL validation.
type Client struct {
	*http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
}

// New creates a Client with the given overall request timeout.
func New(timeout time.Duration, opts Options) *Client {
	c := &Client{
		Client:         &http.Client{Timeout: timeout},
		allowedSchemes: opts.AllowedSchemes,
		blockPrivateIP: opts.BlockPrivateIP,
		maxRedirects:   opts.MaxRedirects,
	}
	if len(c.allowedSchemes) == 0 {
		c.allowedSchemes = []string{"http", "https"}
	}
	if c.maxRedirects <= 0 {
		c.maxRedirects = 10
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateIP {
		c.Transport = guardedTransport()
	}
	return c
}

// Wrap turns an existing http.Client into a Client without private-address
// blocking. Tests use it with httptest servers.
func Wrap(hc *http.Client) *Client {
	return &Client{
		Client:         hc,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}
}

func guardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, errors.Newf("private IP address blocked: %s", ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ValidateURL parses and checks a URL string.
func (c *Client) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(c.allowedSchemes, scheme) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	if u.User != nil {
		return errors.New("URL must not carry credentials")
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("URL missing hostname")
	}
	if c.blockPrivateIP {
		if isLocalhost(host) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", host)
		}
	}
	return nil
}

// Do validates the request URL and executes it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}
	return c.Client.Do(req)
}

// DecodeJSON reads resp.Body (up to limit bytes) into v and closes it.
func DecodeJSON(resp *http.Response, limit int64, v interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.WithDetailf(
			errors.Wrapf(err, "decode response (HTTP %d)", resp.StatusCode),
			"body: %.200s", body,
		)
	}
	return nil
}

var privateBlocks = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
	mustCIDR("0.0.0.0/8"),
	mustCIDR("224.0.0.0/4"),
	mustCIDR("240.0.0.0/4"),
	mustCIDR("fc00::/7"),
	mustCIDR("fec0::/10"),
	mustCIDR("2001:db8::/32"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
