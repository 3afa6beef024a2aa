package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Job errors
	ErrJobNotFound           = errors.New("job not found")
	ErrInvalidTransition     = errors.New("invalid job status transition")
	ErrResolvedIPsAlreadySet = errors.New("resolved addresses already recorded")
	ErrRateLimited           = errors.New("another scan is already active")
	ErrEmptyTargetID         = errors.New("target ID cannot be empty")
	ErrEmptyRequester        = errors.New("requester cannot be empty")

	// Target errors
	ErrTargetNotFound = errors.New("target not found")
	ErrInvalidURL     = errors.New("invalid target URL")

	// Scan errors
	ErrInvalidScanType    = errors.New("invalid scan type")
	ErrDNSResolution      = errors.New("dns resolution failed")
	ErrPrivateAddress     = errors.New("target resolves to a non-public address")
	ErrTooManyRedirects   = errors.New("too many redirects")
	ErrScanExecution      = errors.New("scan execution failed")
	ErrScanInterrupted    = errors.New("scan interrupted by process restart")
	ErrUnknownDestination = errors.New("unknown notification destination")

	// Report errors
	ErrReportNotFound = errors.New("report not found")
	ErrReportExists   = errors.New("report already written")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrMissingRequired = errors.New("missing required field")
)

// Error codes carried on failed jobs and API error bodies.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidScanType  = "INVALID_SCAN_TYPE"
	CodeTargetNotFound   = "TARGET_NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDNSResolution    = "DNS_RESOLUTION_FAILED"
	CodePrivateAddress   = "PRIVATE_ADDRESS_BLOCKED"
	CodeTooManyRedirects = "TOO_MANY_REDIRECTS"
	CodeScanExecution    = "SCAN_EXECUTION_FAILED"
	CodeScanInterrupted  = "SCAN_INTERRUPTED"
	CodeJobNotFound      = "JOB_NOT_FOUND"
	CodeReportNotFound   = "REPORT_NOT_FOUND"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// RateLimitedError is returned by admission when a job is already active.
type RateLimitedError struct {
	RunningJobID string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("scan %s is already in progress", e.RunningJobID)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// DNSResolutionError indicates the target hostname could not be resolved.
type DNSResolutionError struct {
	Host string
	Err  error
}

func (e *DNSResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dns resolution failed for %s: no addresses", e.Host)
	}
	return fmt.Sprintf("dns resolution failed for %s: %v", e.Host, e.Err)
}

func (e *DNSResolutionError) Unwrap() error { return e.Err }

func (e *DNSResolutionError) Is(target error) bool { return target == ErrDNSResolution }

// PrivateAddressError indicates the hostname resolved to at least one non-public address.
type PrivateAddressError struct {
	Host    string
	Address string
}

func (e *PrivateAddressError) Error() string {
	return fmt.Sprintf("%s resolves to non-public address %s", e.Host, e.Address)
}

func (e *PrivateAddressError) Is(target error) bool { return target == ErrPrivateAddress }

// TooManyRedirectsError is returned when the first page exceeds the redirect budget.
type TooManyRedirectsError struct {
	URL string
	Max int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("too many redirects (max %d) starting at %s", e.Max, e.URL)
}

func (e *TooManyRedirectsError) Is(target error) bool { return target == ErrTooManyRedirects }

// ValidationError describes a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Code maps an error to its wire error code. Unknown errors map to the
// generic execution failure code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidScanType):
		return CodeInvalidScanType
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidURL), errors.Is(err, ErrMissingRequired):
		return CodeValidation
	case errors.Is(err, ErrTargetNotFound):
		return CodeTargetNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrDNSResolution):
		return CodeDNSResolution
	case errors.Is(err, ErrPrivateAddress):
		return CodePrivateAddress
	case errors.Is(err, ErrTooManyRedirects):
		return CodeTooManyRedirects
	case errors.Is(err, ErrScanInterrupted):
		return CodeScanInterrupted
	case errors.Is(err, ErrJobNotFound):
		return CodeJobNotFound
	case errors.Is(err, ErrReportNotFound):
		return CodeReportNotFound
	default:
		return CodeScanExecution
	}
}

// IsGuardFailure reports whether err came from the SSRF pre-flight check.
func IsGuardFailure(err error) bool {
	return errors.Is(err, ErrDNSResolution) || errors.Is(err, ErrPrivateAddress)
}
