// Package scan drives the job lifecycle: admission, pre-flight SSRF checks,
// execution of the requested scan types and report persistence.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/checker"
	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	"github.com/khanhnv2901/seca-scanner/internal/report"
	"github.com/khanhnv2901/seca-scanner/internal/security"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// HTMLArtifact is the rendered report stored next to report.json.
const HTMLArtifact = "report.html"

// Config tunes scan execution.
type Config struct {
	Crawl        checker.CrawlOptions
	UserAgent    string
	TLSTimeout   time.Duration
	IdleInterval time.Duration
}

// DefaultConfig returns the standard execution settings.
func DefaultConfig() Config {
	return Config{
		Crawl:        checker.DefaultCrawlOptions(),
		UserAgent:    constants.UserAgent,
		TLSTimeout:   constants.TLSDialTimeout,
		IdleInterval: constants.WorkerIdleInterval,
	}
}

// Request asks for a scan of a URL or of an existing target.
type Request struct {
	URL         string `json:"url,omitempty"`
	TargetID    string `json:"targetId,omitempty"`
	Description string `json:"description,omitempty"`
	ScanType    string `json:"scanType,omitempty"`
	RequestedBy string `json:"requestedBy"`
}

// Summary is the compact result stored on a succeeded job.
type Summary struct {
	ScanTypes        []scan.Type `json:"scanTypes"`
	PagesScanned     int         `json:"pagesScanned"`
	IssuesFound      int         `json:"issuesFound"`
	Good             int         `json:"good"`
	Weak             int         `json:"weak"`
	Missing          int         `json:"missing"`
	TLSProtocol      string      `json:"tlsProtocol,omitempty"`
	CriticalFindings []string    `json:"criticalFindings"`
}

// Service owns every job state transition.
type Service struct {
	jobs       job.Repository
	targets    target.Repository
	reports    domainReport.Repository
	guard      *security.Guard
	processor  *report.Processor
	cfg        Config
	tlsOptions []checker.TLSOption
	logger     *zap.Logger
	wake       chan struct{}
}

// Option customizes a Service.
type Option func(*Service)

// WithConfig replaces the execution settings.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTLSOptions passes options to every TLS scanner the service creates.
func WithTLSOptions(opts ...checker.TLSOption) Option {
	return func(s *Service) { s.tlsOptions = append(s.tlsOptions, opts...) }
}

// WithProcessor sets the processor used to render HTML reports.
func WithProcessor(p *report.Processor) Option {
	return func(s *Service) {
		if p != nil {
			s.processor = p
		}
	}
}

func NewService(
	jobs job.Repository,
	targets target.Repository,
	reports domainReport.Repository,
	guard *security.Guard,
	opts ...Option,
) *Service {
	s := &Service{
		jobs:      jobs,
		targets:   targets,
		reports:   reports,
		guard:     guard,
		processor: report.NewProcessor(nil),
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.IdleInterval <= 0 {
		s.cfg.IdleInterval = constants.WorkerIdleInterval
	}
	return s
}

// CreateScan validates the request and admits a queued job. At most one job
// is active at a time; a second request gets *errors.RateLimitedError.
func (s *Service) CreateScan(ctx context.Context, req Request) (*job.Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.TargetID = strings.TrimSpace(req.TargetID)
	req.RequestedBy = strings.TrimSpace(req.RequestedBy)

	if req.RequestedBy == "" {
		return nil, &sharedErrors.ValidationError{Field: "requestedBy", Message: "is required"}
	}
	if (req.URL == "") == (req.TargetID == "") {
		return nil, &sharedErrors.ValidationError{Field: "url", Message: "exactly one of url or targetId is required"}
	}

	scanType, err := scan.ParseType(req.ScanType)
	if err != nil {
		return nil, err
	}

	var targetID string
	if req.URL != "" {
		t, err := target.NewTarget(req.URL, req.Description)
		if err != nil {
			return nil, err
		}
		stored, err := s.targets.Upsert(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to save target: %w", err)
		}
		targetID = stored.ID()
	} else {
		t, err := s.targets.FindByID(ctx, req.TargetID)
		if err != nil {
			return nil, err
		}
		targetID = t.ID()
	}

	j, err := job.NewJob(targetID, string(scanType), req.RequestedBy)
	if err != nil {
		return nil, &sharedErrors.ValidationError{Message: err.Error()}
	}
	if err := s.jobs.CreateIfIdle(ctx, j); err != nil {
		return nil, err
	}

	s.logger.Info("scan queued",
		zap.String("job_id", j.ID()),
		zap.String("target_id", targetID),
		zap.String("scan_type", string(scanType)),
		zap.String("requested_by", req.RequestedBy))
	s.Wake()
	return j, nil
}

// Wake signals the worker that a job may be waiting.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes queued jobs one at a time until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.IdleInterval)
	defer ticker.Stop()

	for {
		if err := s.processNext(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("worker iteration failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Service) processNext(ctx context.Context) error {
	active, err := s.jobs.FindActive(ctx)
	if errors.Is(err, sharedErrors.ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if active.Status() != job.StatusQueued {
		return nil
	}
	return s.Execute(ctx, active.ID())
}

// Execute runs a queued job to completion. Scan failures end in a FAILED
// job and a nil error; only store failures are returned.
func (s *Service) Execute(ctx context.Context, jobID string) error {
	j, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status() != job.StatusQueued {
		return fmt.Errorf("%w: job %s is %s", sharedErrors.ErrInvalidTransition, jobID, j.Status())
	}
	logger := s.logger.With(zap.String("job_id", jobID))

	t, err := s.targets.FindByID(ctx, j.TargetID())
	if err != nil {
		return s.failPreflight(ctx, j, err, logger)
	}
	u, err := url.Parse(t.BaseURL())
	if err != nil {
		return s.failPreflight(ctx, j, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidURL, err), logger)
	}
	logger = logger.With(zap.String("target", t.BaseURL()))

	ips, guardErr := s.guard.VerifyPublicOnly(ctx, u.Hostname())
	if guardErr != nil {
		return s.failPreflight(ctx, j, guardErr, logger)
	}
	if err := j.RecordResolvedIPs(security.FormatIPs(ips)); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, j, job.StatusQueued); err != nil {
		return err
	}

	if err := j.Start(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, j, job.StatusQueued); err != nil {
		return err
	}
	logger.Info("scan started", zap.Strings("resolved_ips", j.ResolvedIPs()))

	unified, err := s.runScans(ctx, j, t, u.Hostname(), ips, logger)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", sharedErrors.ErrScanInterrupted, err)
		}
		return s.fail(context.WithoutCancel(ctx), j, job.StatusRunning, err, logger)
	}

	summary, err := json.Marshal(summarize(unified))
	if err != nil {
		return s.fail(ctx, j, job.StatusRunning, fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err), logger)
	}
	if err := j.Succeed(summary); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, j, job.StatusRunning); err != nil {
		return err
	}
	logger.Info("scan succeeded", zap.Int("critical_findings", len(unified.CriticalFindings)))
	return nil
}

func (s *Service) runScans(ctx context.Context, j *job.Job, t *target.Target, host string, ips []net.IP, logger *zap.Logger) (*domainReport.UnifiedReport, error) {
	scanType, err := scan.ParseType(j.ScanType())
	if err != nil {
		return nil, err
	}

	dialer := s.guard.NewDialer(host, ips)
	in := report.Input{JobID: j.ID(), TargetURL: t.BaseURL()}

	for _, st := range scanType.Expand() {
		switch st {
		case scan.TypeHTTP:
			client := checker.NewHTTPClient(checker.ClientOptions{
				Dial:      dialer.DialContext,
				Timeout:   s.cfg.Crawl.RequestTimeout,
				UserAgent: s.cfg.UserAgent,
			})
			crawler := checker.NewCrawler(client, s.cfg.Crawl, logger)
			httpReport, err := crawler.Crawl(ctx, t.BaseURL())
			if err != nil {
				return nil, err
			}
			in.HTTP = httpReport
		case scan.TypeTLS:
			opts := append([]checker.TLSOption{checker.WithTLSTimeout(s.cfg.TLSTimeout)}, s.tlsOptions...)
			tlsReport, err := checker.NewTLSScanner(dialer.DialContext, logger, opts...).Scan(ctx, t.BaseURL())
			if err != nil {
				return nil, err
			}
			in.TLS = tlsReport
		}
	}

	unified := report.Assemble(in)
	if err := s.reports.Write(ctx, unified); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	html, err := report.RenderHTML(s.processor.Process(unified))
	if err == nil {
		err = s.reports.WriteArtifact(ctx, j.ID(), HTMLArtifact, html)
	}
	if err != nil {
		logger.Error("failed to write HTML report", zap.Error(err))
	}
	return unified, nil
}

// fail records a terminal failure. The failure itself is the job's outcome,
// so only a store error is returned.
func (s *Service) fail(ctx context.Context, j *job.Job, from job.Status, cause error, logger *zap.Logger) error {
	code := sharedErrors.Code(cause)
	if err := j.Fail(code, cause.Error()); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, j, from); err != nil {
		return err
	}
	logger.Warn("scan failed", zap.String("error_code", code), zap.Error(cause))
	return nil
}

// failPreflight fails a QUEUED job that never reached a public address. The
// job still records an empty address set.
func (s *Service) failPreflight(ctx context.Context, j *job.Job, cause error, logger *zap.Logger) error {
	if err := j.RecordResolvedIPs([]string{}); err != nil {
		return err
	}
	return s.fail(ctx, j, job.StatusQueued, cause, logger)
}

// ReconcileInterrupted fails jobs left RUNNING by a previous process.
func (s *Service) ReconcileInterrupted(ctx context.Context) (int, error) {
	running, err := s.jobs.List(ctx, job.ListFilter{
		Statuses: []job.Status{job.StatusRunning},
		Limit:    constants.RecoveryBatchSize,
	})
	if err != nil {
		return 0, err
	}
	reconciled := 0
	for _, j := range running {
		if err := j.Fail(sharedErrors.CodeScanInterrupted, sharedErrors.ErrScanInterrupted.Error()); err != nil {
			return reconciled, err
		}
		if err := s.jobs.Update(ctx, j, job.StatusRunning); err != nil {
			if errors.Is(err, sharedErrors.ErrInvalidTransition) {
				continue
			}
			return reconciled, err
		}
		reconciled++
		s.logger.Warn("interrupted scan marked failed", zap.String("job_id", j.ID()))
	}
	return reconciled, nil
}

func summarize(r *domainReport.UnifiedReport) Summary {
	out := Summary{ScanTypes: r.ScanTypes, CriticalFindings: r.CriticalFindings}
	if h := r.Summary.HTTP; h != nil {
		out.PagesScanned = h.PagesScanned
		out.IssuesFound += h.IssuesFound
		out.Good, out.Weak, out.Missing = h.Good, h.Weak, h.Missing
	}
	if t := r.Summary.TLS; t != nil {
		out.TLSProtocol = t.Protocol
		out.IssuesFound += t.IssuesFound
	}
	if len(out.CriticalFindings) > constants.MaxCriticalFindings {
		out.CriticalFindings = out.CriticalFindings[:constants.MaxCriticalFindings]
	}
	if out.CriticalFindings == nil {
		out.CriticalFindings = []string{}
	}
	return out
}
