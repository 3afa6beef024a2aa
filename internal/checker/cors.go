package checker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

const (
	issueCORSWildcard   = "Wildcard CORS origin: server allows requests from any origin"
	issueCORSReflection = "CORS origin reflection: server reflects arbitrary Origin header"
	issueCORSCredential = "CORS credential reflection: server reflects origin with credentials allowed"
)

// ProbeCORS sends one request carrying a foreign Origin and classifies the
// Access-Control-Allow-* response. Any transport failure yields no issues.
func ProbeCORS(ctx context.Context, client *http.Client, target string, timeout time.Duration) []string {
	if timeout <= 0 {
		timeout = constants.CORSProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Origin", constants.CORSCanaryOrigin)

	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, constants.MaxBodyBytes))

	return ClassifyCORS(resp.Header)
}

// ClassifyCORS grades the CORS response headers of a canary request.
func ClassifyCORS(h http.Header) []string {
	allowOrigin := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if allowOrigin == "" {
		return nil
	}
	allowCredentials := strings.EqualFold(strings.TrimSpace(h.Get("Access-Control-Allow-Credentials")), "true")

	var issues []string
	if allowOrigin == "*" {
		issues = append(issues, issueCORSWildcard)
	}
	if allowOrigin == constants.CORSCanaryOrigin {
		issues = append(issues, issueCORSReflection)
		if allowCredentials {
			issues = append(issues, issueCORSCredential)
		}
	}
	return issues
}
