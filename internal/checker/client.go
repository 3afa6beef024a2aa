package checker

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

// DialFunc dials a network address. The SSRF-guarded dialer satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ClientOptions configures the scanning HTTP client.
type ClientOptions struct {
	Dial      DialFunc
	Timeout   time.Duration
	UserAgent string
}

// userAgentTransport stamps every outgoing request, including redirect hops,
// with the scanner's User-Agent.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// NewHTTPClient returns a client that follows redirects. Proxies are disabled
// so every connection goes through Dial.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.RequestTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = constants.UserAgent
	}
	dial := opts.Dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         dial,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: opts.Timeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
	}

	return &http.Client{
		Transport: &userAgentTransport{base: transport, userAgent: opts.UserAgent},
		Timeout:   opts.Timeout,
	}
}

// withoutRedirects returns a shallow copy of c that hands 3xx responses back
// to the caller.
func withoutRedirects(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cp
}
