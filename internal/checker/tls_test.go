package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

func dialListener(addr string) DialFunc {
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}
}

func trustPool(server *httptest.Server) *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(server.Certificate())
	return pool
}

func checkStatus(report *scan.TLSReport, name string) scan.CheckStatus {
	for _, c := range report.Checks {
		if c.Name == name {
			return c.Status
		}
	}
	return ""
}

func TestTLSScanHealthyServer(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := NewTLSScanner(dialListener(server.Listener.Addr().String()), zaptest.NewLogger(t), WithRootCAs(trustPool(server)))
	report, err := s.Scan(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if report.Protocol != "TLS 1.3" {
		t.Errorf("expected TLS 1.3, got %s", report.Protocol)
	}
	if len(report.Findings) != 0 {
		t.Errorf("expected no findings, got %v", report.Findings)
	}
	for _, name := range []string{checkProtocol, checkCipher, checkExpiry, checkHostname, checkChain} {
		if got := checkStatus(report, name); got != scan.CheckPass {
			t.Errorf("check %s = %q, want pass", name, got)
		}
	}
	if report.Certificate == nil || report.Certificate.DaysRemaining <= 0 {
		t.Errorf("unexpected certificate info %+v", report.Certificate)
	}
}

func TestTLSScanCertificateProblems(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	cert := server.Certificate()
	_, port, _ := net.SplitHostPort(server.Listener.Addr().String())
	dial := dialListener(server.Listener.Addr().String())

	tests := []struct {
		name    string
		url     string
		opts    []TLSOption
		finding string
	}{
		{
			name:    "untrusted chain",
			url:     server.URL,
			finding: "Untrusted certificate chain: ",
		},
		{
			name:    "hostname mismatch",
			url:     fmt.Sprintf("https://mismatch.test:%s/", port),
			opts:    []TLSOption{WithRootCAs(trustPool(server))},
			finding: "Certificate hostname mismatch",
		},
		{
			name:    "expired",
			url:     server.URL,
			opts:    []TLSOption{WithRootCAs(trustPool(server)), WithClock(func() time.Time { return cert.NotAfter.Add(48 * time.Hour) })},
			finding: "Certificate expired on " + cert.NotAfter.UTC().Format("2006-01-02"),
		},
		{
			name:    "expires soon",
			url:     server.URL,
			opts:    []TLSOption{WithRootCAs(trustPool(server)), WithClock(func() time.Time { return cert.NotAfter.Add(-5 * 24 * time.Hour) })},
			finding: "Certificate expires soon: 5 days remaining",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := NewTLSScanner(dial, zaptest.NewLogger(t), tt.opts...).Scan(context.Background(), tt.url)
			if err != nil {
				t.Fatalf("Scan returned error: %v", err)
			}
			for _, f := range report.Findings {
				if strings.HasPrefix(f, tt.finding) {
					return
				}
			}
			t.Fatalf("expected finding %q, got %v", tt.finding, report.Findings)
		})
	}
}

func TestTLSScanDeprecatedProtocol(t *testing.T) {
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.TLS = &tls.Config{MinVersion: tls.VersionTLS10, MaxVersion: tls.VersionTLS11}
	server.StartTLS()
	defer server.Close()

	s := NewTLSScanner(dialListener(server.Listener.Addr().String()), zaptest.NewLogger(t), WithRootCAs(trustPool(server)))
	report, err := s.Scan(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if checkStatus(report, checkProtocol) != scan.CheckFail {
		t.Fatalf("expected protocol failure, got %+v", report.Checks)
	}
	if len(report.Findings) == 0 || report.Findings[0] != "Deprecated TLS protocol: TLS 1.1" {
		t.Fatalf("unexpected findings %v", report.Findings)
	}
}

func TestTLSScanHandshakeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := NewTLSScanner(dialListener(server.Listener.Addr().String()), zaptest.NewLogger(t), WithTLSTimeout(time.Second))
	report, err := s.Scan(context.Background(), "https://plain.test/")
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if checkStatus(report, checkHandshake) != scan.CheckFail {
		t.Fatalf("expected handshake failure, got %+v", report.Checks)
	}
	if len(report.Findings) != 1 || !strings.HasPrefix(report.Findings[0], "TLS handshake failed: ") {
		t.Fatalf("unexpected findings %v", report.Findings)
	}
}

func TestTLSScanDefaultsToPort443ForHTTP(t *testing.T) {
	var dialed string
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = addr
		return nil, fmt.Errorf("refused")
	}
	report, err := NewTLSScanner(dial, nil).Scan(context.Background(), "http://site.test:8080/")
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if dialed != "site.test:443" || report.Port != "443" {
		t.Fatalf("expected dial to site.test:443, got %s", dialed)
	}
}
