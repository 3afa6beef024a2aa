package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// MaxPages bounds how many pages a single crawl visits.
	MaxPages = 20
	// MaxRedirects bounds the redirect chain followed for the first page.
	MaxRedirects = 10
	// RequestTimeout applies to every page fetch.
	RequestTimeout = 15 * time.Second
	// CORSProbeTimeout applies to the cross-origin canary request.
	CORSProbeTimeout = 10 * time.Second
	// TLSDialTimeout applies to the TLS handshake probe.
	TLSDialTimeout = 10 * time.Second
	// DNSTimeout bounds the pre-flight resolution of a target.
	DNSTimeout = 10 * time.Second
	// MaxBodyBytes caps how much of an HTML body is read per page.
	MaxBodyBytes = 2 * 1024 * 1024
	// UserAgent identifies scanner traffic.
	UserAgent = "SecaScanner/1.0 (Security Scanner)"
	// CORSCanaryOrigin is sent as Origin when probing CORS policy.
	CORSCanaryOrigin = "https://evil.example.com"
	// HSTSMinMaxAge is the smallest max-age graded as good (one year).
	HSTSMinMaxAge = 31536000
	// MaxCriticalFindings limits critical findings shown in notifications.
	MaxCriticalFindings = 5
	// TLSSoonExpiryWindow warns operators when a certificate expires inside this window.
	TLSSoonExpiryWindow = 14 * 24 * time.Hour
)

const (
	// RecoveryBatchSize bounds how many active jobs are resumed on startup.
	RecoveryBatchSize = 100
	// PollInterval is the delay between status checks of an observed job.
	PollInterval = 5 * time.Second
	// PollTimeout stops observing a job that never reaches a terminal state.
	PollTimeout = 10 * time.Minute
	// WorkerIdleInterval is how often the worker re-checks for queued jobs without a wake signal.
	WorkerIdleInterval = 30 * time.Second
)
