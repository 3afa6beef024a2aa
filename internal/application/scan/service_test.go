package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	fsstore "github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/memory"
	"github.com/khanhnv2901/seca-scanner/internal/security"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

type stubResolver map[string][]string

func (r stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	raw, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(raw))
	for _, ip := range raw {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

type fixture struct {
	service    *Service
	jobs       *memory.JobStore
	targets    *memory.TargetStore
	reportsDir string
}

// newFixture wires the service to in-memory stores. Connections to approved
// addresses are redirected to backend when it is non-empty.
func newFixture(t *testing.T, backend string) *fixture {
	t.Helper()
	reportsDir := t.TempDir()
	reports, err := fsstore.NewReportStore(reportsDir)
	if err != nil {
		t.Fatalf("NewReportStore: %v", err)
	}

	guardOpts := []security.Option{security.WithResolver(stubResolver{
		"public.example":   {"93.184.216.34"},
		"internal.example": {"93.184.216.34", "10.0.0.5"},
	})}
	if backend != "" {
		guardOpts = append(guardOpts, security.WithDialFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, backend)
		}))
	}

	cfg := DefaultConfig()
	cfg.Crawl.RequestTimeout = 2 * time.Second
	cfg.Crawl.CORSTimeout = time.Second
	cfg.TLSTimeout = time.Second
	cfg.IdleInterval = 50 * time.Millisecond

	jobs := memory.NewJobStore()
	targets := memory.NewTargetStore()
	svc := NewService(jobs, targets, reports, security.NewGuard(guardOpts...),
		WithConfig(cfg), WithLogger(zaptest.NewLogger(t)))
	return &fixture{service: svc, jobs: jobs, targets: targets, reportsDir: reportsDir}
}

func TestCreateScanValidation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"missing requester", Request{URL: "https://public.example"}, sharedErrors.CodeValidation},
		{"neither url nor target", Request{RequestedBy: "cli:a"}, sharedErrors.CodeValidation},
		{"both url and target", Request{URL: "https://public.example", TargetID: "t", RequestedBy: "cli:a"}, sharedErrors.CodeValidation},
		{"bad scheme", Request{URL: "ftp://public.example", RequestedBy: "cli:a"}, sharedErrors.CodeValidation},
		{"bad scan type", Request{URL: "https://public.example", ScanType: "ports", RequestedBy: "cli:a"}, sharedErrors.CodeInvalidScanType},
		{"unknown target", Request{TargetID: "missing", RequestedBy: "cli:a"}, sharedErrors.CodeTargetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateScan(ctx, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := sharedErrors.Code(err); got != tt.code {
				t.Fatalf("Code(%v) = %s, want %s", err, got, tt.code)
			}
		})
	}
}

func TestCreateScanAdmitsOneJob(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []string
		limited  []*sharedErrors.RateLimitedError
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j, err := f.service.CreateScan(ctx, Request{
				URL:         fmt.Sprintf("https://public.example/%d", i),
				RequestedBy: "cli:tester",
			})
			mu.Lock()
			defer mu.Unlock()
			var rl *sharedErrors.RateLimitedError
			switch {
			case err == nil:
				admitted = append(admitted, j.ID())
			case errors.As(err, &rl):
				limited = append(limited, rl)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(admitted) != 1 || len(limited) != 9 {
		t.Fatalf("expected 1 admitted and 9 rate limited, got %d and %d", len(admitted), len(limited))
	}
	for _, rl := range limited {
		if rl.RunningJobID != admitted[0] {
			t.Errorf("rate limit names %s, want %s", rl.RunningJobID, admitted[0])
		}
	}
}

func TestCreateScanReusesTarget(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	first, err := f.service.CreateScan(ctx, Request{URL: "https://Public.example", RequestedBy: "cli:a"})
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if err := first.Fail(sharedErrors.CodeScanExecution, "done"); err != nil {
		t.Fatal(err)
	}
	if err := f.jobs.Update(ctx, first, job.StatusQueued); err != nil {
		t.Fatal(err)
	}

	second, err := f.service.CreateScan(ctx, Request{TargetID: first.TargetID(), ScanType: "tls", RequestedBy: "cli:a"})
	if err != nil {
		t.Fatalf("CreateScan by target: %v", err)
	}
	if second.TargetID() != first.TargetID() || second.ScanType() != "tls" {
		t.Fatalf("unexpected second job %s/%s", second.TargetID(), second.ScanType())
	}
	if first.ScanType() != "all" {
		t.Errorf("expected default scan type all, got %s", first.ScanType())
	}
}

func TestExecuteBlocksPrivateAddresses(t *testing.T) {
	tests := []struct {
		url  string
		code string
	}{
		{"https://internal.example", sharedErrors.CodePrivateAddress},
		{"http://127.0.0.1:8080/", sharedErrors.CodePrivateAddress},
		{"https://missing.example", sharedErrors.CodeDNSResolution},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			f := newFixture(t, "")
			ctx := context.Background()

			j, err := f.service.CreateScan(ctx, Request{URL: tt.url, RequestedBy: "api:test"})
			if err != nil {
				t.Fatalf("CreateScan: %v", err)
			}
			if err := f.service.Execute(ctx, j.ID()); err != nil {
				t.Fatalf("Execute: %v", err)
			}

			got, _ := f.jobs.FindByID(ctx, j.ID())
			if got.Status() != job.StatusFailed || got.ErrorCode() != tt.code {
				t.Fatalf("expected FAILED/%s, got %s/%s", tt.code, got.Status(), got.ErrorCode())
			}
			if !got.IPsRecorded() || len(got.ResolvedIPs()) != 0 {
				t.Errorf("expected empty recorded addresses, got %v", got.ResolvedIPs())
			}
			if !got.StartedAt().IsZero() {
				t.Error("blocked job must never start")
			}
			if _, err := os.Stat(filepath.Join(f.reportsDir, j.ID())); !os.IsNotExist(err) {
				t.Error("blocked job must not write a report")
			}
		})
	}
}

func TestExecuteMissingTargetRecordsAddresses(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	j, _ := job.NewJob("ghost-target", "all", "api:test")
	if err := f.jobs.CreateIfIdle(ctx, j); err != nil {
		t.Fatalf("CreateIfIdle: %v", err)
	}
	if err := f.service.Execute(ctx, j.ID()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := f.jobs.FindByID(ctx, j.ID())
	if got.Status() != job.StatusFailed || got.ErrorCode() != sharedErrors.CodeTargetNotFound {
		t.Fatalf("expected FAILED/%s, got %s/%s", sharedErrors.CodeTargetNotFound, got.Status(), got.ErrorCode())
	}
	if !got.IPsRecorded() || len(got.ResolvedIPs()) != 0 {
		t.Errorf("expected empty recorded addresses, got recorded=%v %v", got.IPsRecorded(), got.ResolvedIPs())
	}
}

func siteHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta name="generator" content="WordPress 6.4"></head>`+
			`<body><a href="/about">About</a><a href="https://other.example/x">ext</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/">home</a></body></html>`)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		mux.ServeHTTP(w, r)
	})
}

func TestExecuteEndToEnd(t *testing.T) {
	server := httptest.NewServer(siteHandler())
	defer server.Close()
	_, port, _ := net.SplitHostPort(server.Listener.Addr().String())

	f := newFixture(t, server.Listener.Addr().String())
	ctx := context.Background()

	j, err := f.service.CreateScan(ctx, Request{
		URL:         "http://public.example:" + port + "/",
		ScanType:    "http",
		RequestedBy: "cli:tester",
	})
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if err := f.service.Execute(ctx, j.ID()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, _ := f.jobs.FindByID(ctx, j.ID())
	if got.Status() != job.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%s: %s)", got.Status(), got.ErrorCode(), got.ErrorMessage())
	}
	if ips := got.ResolvedIPs(); len(ips) != 1 || ips[0] != "93.184.216.34" {
		t.Errorf("unexpected resolved addresses %v", ips)
	}

	var summary Summary
	if err := json.Unmarshal(got.Summary(), &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.PagesScanned != 2 {
		t.Errorf("expected 2 pages, got %d", summary.PagesScanned)
	}
	if summary.Good != 1 || summary.Missing != 5 {
		t.Errorf("unexpected grades %+v", summary)
	}

	r, err := f.service.Report(ctx, j.ID())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if r.Scans.HTTP == nil || r.Scans.TLS != nil {
		t.Fatalf("expected only the HTTP scan, got %+v", r.ScanTypes)
	}
	foundWP := false
	for _, tech := range r.DetectedTechnologies {
		if tech.Name == "WordPress" {
			foundWP = true
		}
	}
	if !foundWP {
		t.Errorf("expected WordPress detection, got %+v", r.DetectedTechnologies)
	}

	html, err := os.ReadFile(filepath.Join(f.reportsDir, j.ID(), HTMLArtifact))
	if err != nil {
		t.Fatalf("expected HTML report: %v", err)
	}
	if !strings.Contains(string(html), "public.example") {
		t.Error("HTML report does not mention the target")
	}

	if err := f.service.Execute(ctx, j.ID()); !errors.Is(err, sharedErrors.ErrInvalidTransition) {
		t.Errorf("expected re-execution to be rejected, got %v", err)
	}
}

func TestExecuteTLSHandshakeFailureIsRecorded(t *testing.T) {
	server := httptest.NewServer(siteHandler())
	defer server.Close()

	f := newFixture(t, server.Listener.Addr().String())
	ctx := context.Background()

	j, err := f.service.CreateScan(ctx, Request{URL: "https://public.example", ScanType: "tls", RequestedBy: "cli:tester"})
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}
	if err := f.service.Execute(ctx, j.ID()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, _ := f.jobs.FindByID(ctx, j.ID())
	if got.Status() != job.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%s)", got.Status(), got.ErrorMessage())
	}
	r, _ := f.service.Report(ctx, j.ID())
	if r.Scans.TLS == nil || len(r.Scans.TLS.Findings) == 0 {
		t.Fatalf("expected a TLS finding for the failed handshake, got %+v", r.Scans.TLS)
	}
}

func TestReconcileInterrupted(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	j, _ := f.service.CreateScan(ctx, Request{URL: "https://public.example", RequestedBy: "cli:a"})
	_ = j.RecordResolvedIPs([]string{"93.184.216.34"})
	_ = j.Start()
	if err := f.jobs.Update(ctx, j, job.StatusQueued); err != nil {
		t.Fatal(err)
	}

	n, err := f.service.ReconcileInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReconcileInterrupted = %d, %v", n, err)
	}
	got, _ := f.jobs.FindByID(ctx, j.ID())
	if got.Status() != job.StatusFailed || got.ErrorCode() != sharedErrors.CodeScanInterrupted {
		t.Fatalf("expected FAILED/%s, got %s/%s", sharedErrors.CodeScanInterrupted, got.Status(), got.ErrorCode())
	}
}

func TestRunProcessesQueuedJobs(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()

	j, err := f.service.CreateScan(ctx, Request{URL: "https://internal.example", RequestedBy: "cli:a"})
	if err != nil {
		t.Fatalf("CreateScan: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := f.jobs.FindByID(ctx, j.ID())
		if got.Status().IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker did not finish the job")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
