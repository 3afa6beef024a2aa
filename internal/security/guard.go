// Package security implements the pre-flight SSRF guard that every scan passes
// through before the first outbound request.
package security

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// Resolver is the subset of *net.Resolver the guard needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// blockedPrefixes covers non-public ranges not already handled by netip's
// IsPrivate/IsLoopback/IsLinkLocal*/IsMulticast helpers.
var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",          // "this" network
	"100.64.0.0/10",      // carrier-grade NAT
	"192.0.0.0/24",       // IETF protocol assignments
	"192.0.2.0/24",       // TEST-NET-1
	"198.18.0.0/15",      // benchmarking
	"198.51.100.0/24",    // TEST-NET-2
	"203.0.113.0/24",     // TEST-NET-3
	"240.0.0.0/4",        // reserved
	"255.255.255.255/32", // broadcast
	"::/128",
	"100::/64",      // discard-only
	"2001::/32",     // Teredo
	"2001:db8::/32", // documentation
	"fec0::/10",     // deprecated site-local
)

var (
	nat64Prefix = netip.MustParsePrefix("64:ff9b::/96")
	sixToFour   = netip.MustParsePrefix("2002::/16")
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// Guard verifies that a hostname resolves only to public addresses.
type Guard struct {
	resolver Resolver
	timeout  time.Duration
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
}

// Option customizes a Guard.
type Option func(*Guard)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) Option {
	return func(g *Guard) {
		if r != nil {
			g.resolver = r
		}
	}
}

// WithTimeout bounds each resolution.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithDialFunc replaces the function dialers use to connect to an approved
// ip:port.
func WithDialFunc(dial func(ctx context.Context, network, address string) (net.Conn, error)) Option {
	return func(g *Guard) {
		if dial != nil {
			g.dial = dial
		}
	}
}

// NewGuard returns a guard backed by the pure-Go resolver.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		resolver: &net.Resolver{PreferGo: true},
		timeout:  constants.DNSTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VerifyPublicOnly resolves host and fails if any address is non-public.
// On success the complete address set is returned for the audit trail.
func (g *Guard) VerifyPublicOnly(ctx context.Context, host string) ([]net.IP, error) {
	host = strings.TrimSuffix(strings.Trim(strings.TrimSpace(host), "[]"), ".")
	if host == "" {
		return nil, &sharedErrors.DNSResolutionError{Host: host, Err: errors.New("empty hostname")}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsPublic(addr) {
			return nil, &sharedErrors.PrivateAddressError{Host: host, Address: addr.String()}
		}
		return []net.IP{net.IP(addr.AsSlice())}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	addrs, err := g.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		return nil, &sharedErrors.DNSResolutionError{Host: host, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &sharedErrors.DNSResolutionError{Host: host}
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || !IsPublic(addr) {
			return nil, &sharedErrors.PrivateAddressError{Host: host, Address: a.IP.String()}
		}
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// IsPublic reports whether addr is globally routable unicast space.
func IsPublic(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.WithZone("").Unmap()

	if addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}

	// Translation prefixes are only as public as the IPv4 address they embed.
	if nat64Prefix.Contains(addr) {
		b := addr.As16()
		return IsPublic(netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}))
	}
	if sixToFour.Contains(addr) {
		b := addr.As16()
		return IsPublic(netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]}))
	}
	return true
}

// FormatIPs renders resolved addresses for persistence.
func FormatIPs(ips []net.IP) []string {
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	return out
}
