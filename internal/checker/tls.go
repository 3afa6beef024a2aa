package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// versionSSL30 is the legacy SSL 3.0 protocol version (0x0300), defined
// locally to avoid the deprecated tls.VersionSSL30 symbol.
const versionSSL30 uint16 = 0x0300

// Weak cipher suites
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:                "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            "TLS_RSA_WITH_AES_128_CBC_SHA",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            "TLS_RSA_WITH_AES_256_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:        "TLS_ECDHE_ECDSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:          "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
}

// AEAD suites for TLS 1.2 and every TLS 1.3 suite
var strongCipherSuites = map[uint16]string{
	tls.TLS_AES_128_GCM_SHA256:                  "TLS_AES_128_GCM_SHA256",
	tls.TLS_AES_256_GCM_SHA384:                  "TLS_AES_256_GCM_SHA384",
	tls.TLS_CHACHA20_POLY1305_SHA256:            "TLS_CHACHA20_POLY1305_SHA256",
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
}

// TLS check names
const (
	checkHandshake = "handshake"
	checkProtocol  = "protocol"
	checkCipher    = "cipher"
	checkExpiry    = "expiry"
	checkHostname  = "hostname"
	checkChain     = "chain"
)

// TLSScanner grades the TLS configuration of a target with one handshake.
type TLSScanner struct {
	dial    DialFunc
	timeout time.Duration
	roots   *x509.CertPool
	now     func() time.Time
	logger  *zap.Logger
}

// TLSOption configures a TLSScanner.
type TLSOption func(*TLSScanner)

// WithRootCAs verifies chains against pool instead of the system roots.
func WithRootCAs(pool *x509.CertPool) TLSOption {
	return func(s *TLSScanner) { s.roots = pool }
}

// WithClock overrides the time used for expiry checks.
func WithClock(now func() time.Time) TLSOption {
	return func(s *TLSScanner) { s.now = now }
}

// WithTLSTimeout bounds the dial and handshake.
func WithTLSTimeout(d time.Duration) TLSOption {
	return func(s *TLSScanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewTLSScanner creates a scanner that connects through dial.
func NewTLSScanner(dial DialFunc, logger *zap.Logger, opts ...TLSOption) *TLSScanner {
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TLSScanner{
		dial:    dial,
		timeout: constants.TLSDialTimeout,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan connects to the target's TLS port (the URL port for https, 443
// otherwise). A failed handshake is reported as a failed check; only an
// invalid URL or a cancelled context returns an error.
func (s *TLSScanner) Scan(ctx context.Context, rawURL string) (*scan.TLSReport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid url %q", sharedErrors.ErrInvalidURL, rawURL)
	}
	host := u.Hostname()
	port := "443"
	if u.Scheme == "https" && u.Port() != "" {
		port = u.Port()
	}

	report := &scan.TLSReport{
		Host:      host,
		Port:      port,
		Checks:    []scan.TLSCheck{},
		Findings:  []string{},
		Timestamp: s.now().UTC(),
	}

	state, err := s.handshake(ctx, host, port)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Info("tls handshake failed", zap.String("host", host), zap.Error(err))
		addCheck(report, checkHandshake, scan.CheckFail, err.Error(), "TLS handshake failed: "+err.Error())
		return report, nil
	}

	s.analyze(report, state, host)
	return report, nil
}

func (s *TLSScanner) handshake(ctx context.Context, host, port string) (*tls.ConnectionState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.dial(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	defer raw.Close()

	// Verification is done by analyze so that an invalid certificate is
	// reported instead of aborting the handshake.
	conn := tls.Client(raw, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, //nolint:gosec // certificate is verified manually below
		MinVersion:         tls.VersionTLS10,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	state := conn.ConnectionState()
	return &state, nil
}

func (s *TLSScanner) analyze(report *scan.TLSReport, state *tls.ConnectionState, host string) {
	now := s.now()
	report.Protocol = tlsVersionString(state.Version)
	report.CipherSuite = cipherSuiteString(state.CipherSuite)

	switch {
	case state.Version < tls.VersionTLS12:
		addCheck(report, checkProtocol, scan.CheckFail, report.Protocol, "Deprecated TLS protocol: "+report.Protocol)
	case state.Version == tls.VersionTLS12:
		addCheck(report, checkProtocol, scan.CheckPass, "TLS 1.2 (TLS 1.3 preferred)", "")
	default:
		addCheck(report, checkProtocol, scan.CheckPass, report.Protocol, "")
	}

	if name, weak := weakCipherSuites[state.CipherSuite]; weak {
		addCheck(report, checkCipher, scan.CheckFail, name, "Weak cipher suite: "+name)
	} else if _, strong := strongCipherSuites[state.CipherSuite]; strong {
		addCheck(report, checkCipher, scan.CheckPass, report.CipherSuite, "")
	} else {
		addCheck(report, checkCipher, scan.CheckWarn, report.CipherSuite+" is not an AEAD suite", "")
	}

	if len(state.PeerCertificates) == 0 {
		addCheck(report, checkChain, scan.CheckFail, "no certificate presented", "Untrusted certificate chain: no certificate presented")
		return
	}
	leaf := state.PeerCertificates[0]
	report.Certificate = certificateInfo(leaf, now)

	days := report.Certificate.DaysRemaining
	switch {
	case now.After(leaf.NotAfter):
		addCheck(report, checkExpiry, scan.CheckFail, "expired", "Certificate expired on "+leaf.NotAfter.UTC().Format("2006-01-02"))
	case now.Before(leaf.NotBefore):
		addCheck(report, checkExpiry, scan.CheckFail, "not yet valid", "Certificate not valid before "+leaf.NotBefore.UTC().Format("2006-01-02"))
	case leaf.NotAfter.Sub(now) < constants.TLSSoonExpiryWindow:
		addCheck(report, checkExpiry, scan.CheckWarn, fmt.Sprintf("%d days remaining", days), fmt.Sprintf("Certificate expires soon: %d days remaining", days))
	default:
		addCheck(report, checkExpiry, scan.CheckPass, fmt.Sprintf("%d days remaining", days), "")
	}

	if err := leaf.VerifyHostname(host); err != nil {
		addCheck(report, checkHostname, scan.CheckFail, err.Error(), "Certificate hostname mismatch")
	} else {
		addCheck(report, checkHostname, scan.CheckPass, "matches "+host, "")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	// Expiry is graded above; verify trust at a time inside the validity window.
	at := now
	if at.After(leaf.NotAfter) {
		at = leaf.NotAfter
	}
	if at.Before(leaf.NotBefore) {
		at = leaf.NotBefore
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         s.roots,
		Intermediates: intermediates,
		CurrentTime:   at,
	})
	if err != nil {
		addCheck(report, checkChain, scan.CheckFail, err.Error(), "Untrusted certificate chain: "+err.Error())
	} else {
		addCheck(report, checkChain, scan.CheckPass, "trusted", "")
	}
}

func addCheck(report *scan.TLSReport, name string, status scan.CheckStatus, detail, finding string) {
	report.Checks = append(report.Checks, scan.TLSCheck{Name: name, Status: status, Detail: detail})
	if finding != "" {
		report.Findings = append(report.Findings, finding)
	}
}

func certificateInfo(cert *x509.Certificate, now time.Time) *scan.CertificateInfo {
	return &scan.CertificateInfo{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		NotBefore:     cert.NotBefore.UTC(),
		NotAfter:      cert.NotAfter.UTC(),
		DaysRemaining: int(cert.NotAfter.Sub(now).Hours() / 24),
		DNSNames:      append([]string{}, cert.DNSNames...),
		SelfSigned:    cert.Subject.String() == cert.Issuer.String(),
	}
}

func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

func cipherSuiteString(suite uint16) string {
	if name, ok := strongCipherSuites[suite]; ok {
		return name
	}
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" && !strings.HasPrefix(name, "0x") {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
