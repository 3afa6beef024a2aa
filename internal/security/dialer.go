package security

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// Dialer connects only to addresses the guard has approved. The scanned host is
// pinned to the addresses verified before the crawl so it is never re-resolved;
// any other host (a redirect target, for instance) is verified on first use.
type Dialer struct {
	guard *Guard
	dial  func(ctx context.Context, network, address string) (net.Conn, error)

	mu     sync.Mutex
	pinned map[string][]net.IP
}

// NewDialer pins host to ips, which must come from VerifyPublicOnly.
func (g *Guard) NewDialer(host string, ips []net.IP) *Dialer {
	dial := g.dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}
	d := &Dialer{
		guard:  g,
		dial:   dial,
		pinned: make(map[string][]net.IP),
	}
	if host != "" && len(ips) > 0 {
		d.pinned[normalizeHost(host)] = append([]net.IP(nil), ips...)
	}
	return d
}

// DialContext matches the signature used by http.Transport and tls.Dialer.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	ips, err := d.addressesFor(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := d.dial(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses to dial")
	}
	return nil, lastErr
}

func (d *Dialer) addressesFor(ctx context.Context, host string) ([]net.IP, error) {
	key := normalizeHost(host)

	d.mu.Lock()
	ips, ok := d.pinned[key]
	d.mu.Unlock()
	if ok {
		return ips, nil
	}

	ips, err := d.guard.VerifyPublicOnly(ctx, host)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.pinned[key] = ips
	d.mu.Unlock()
	return ips, nil
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.Trim(host, "[]")), ".")
}
