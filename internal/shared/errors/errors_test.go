package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rate limited", &RateLimitedError{RunningJobID: "job-1"}, CodeRateLimited},
		{"dns", &DNSResolutionError{Host: "nope.invalid", Err: errors.New("no such host")}, CodeDNSResolution},
		{"private", &PrivateAddressError{Host: "internal", Address: "10.0.0.5"}, CodePrivateAddress},
		{"redirects", &TooManyRedirectsError{URL: "http://a", Max: 10}, CodeTooManyRedirects},
		{"validation", &ValidationError{Field: "url", Message: "required"}, CodeValidation},
		{"wrapped target", fmt.Errorf("lookup: %w", ErrTargetNotFound), CodeTargetNotFound},
		{"scan type", fmt.Errorf("%w: ftp", ErrInvalidScanType), CodeInvalidScanType},
		{"interrupted", ErrScanInterrupted, CodeScanInterrupted},
		{"unknown", errors.New("boom"), CodeScanExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Fatalf("Code(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestRateLimitedErrorAs(t *testing.T) {
	err := fmt.Errorf("admission: %w", &RateLimitedError{RunningJobID: "job-42"})

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatal("expected errors.As to find RateLimitedError")
	}
	if rl.RunningJobID != "job-42" {
		t.Fatalf("unexpected running job id %q", rl.RunningJobID)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected errors.Is to match ErrRateLimited")
	}
}

func TestDNSResolutionErrorUnwrap(t *testing.T) {
	inner := errors.New("i/o timeout")
	err := &DNSResolutionError{Host: "example.com", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected DNSResolutionError to unwrap its cause")
	}
	if !IsGuardFailure(err) {
		t.Fatal("expected dns failure to count as guard failure")
	}
	if IsGuardFailure(ErrTooManyRedirects) {
		t.Fatal("redirect failure is not a guard failure")
	}
}
