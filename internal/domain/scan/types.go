// Package scan holds the typed results produced by each scan type.
package scan

import (
	"fmt"
	"strings"
	"time"

	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// Type identifies a scan type.
type Type string

const (
	TypeHTTP Type = "http"
	TypeTLS  Type = "tls"

	// TypeAll is accepted on requests and expands to every known type.
	TypeAll Type = "all"
)

// Descriptor documents a scan type for listings.
type Descriptor struct {
	ID          Type   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var registry = []Descriptor{
	{ID: TypeHTTP, Name: "HTTP Security Scan", Description: "Crawls up to 20 pages and grades security headers, cookies, scripts, CORS, and content issues"},
	{ID: TypeTLS, Name: "SSL/TLS Scan", Description: "Inspects the negotiated protocol, cipher suite, and certificate of the target"},
}

// Known returns the registered scan types in display order.
func Known() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// ParseType validates a requested scan type. An empty value means all types.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		return TypeAll, nil
	}
	if t == TypeAll {
		return t, nil
	}
	for _, d := range registry {
		if d.ID == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", sharedErrors.ErrInvalidScanType, raw)
}

// Expand returns the concrete scan types a requested type covers.
func (t Type) Expand() []Type {
	if t == TypeAll {
		out := make([]Type, 0, len(registry))
		for _, d := range registry {
			out = append(out, d.ID)
		}
		return out
	}
	return []Type{t}
}

// Grade is the posture of a single header.
type Grade string

const (
	GradeGood    Grade = "good"
	GradeWeak    Grade = "weak"
	GradeMissing Grade = "missing"
)

// Severity orders grades: good < weak < missing.
func (g Grade) Severity() int {
	switch g {
	case GradeGood:
		return 0
	case GradeWeak:
		return 1
	default:
		return 2
	}
}

// HeaderGrade is the graded posture of one security header on one response.
type HeaderGrade struct {
	Header string  `json:"header"`
	Value  *string `json:"value"`
	Grade  Grade   `json:"grade"`
	Reason string  `json:"reason"`
}

// InfoLeak is a disclosed implementation header.
type InfoLeak struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// ScriptIssue describes a problematic script reference on a page.
type ScriptIssue struct {
	URL          string   `json:"url"`
	PageURL      string   `json:"pageUrl"`
	Issues       []string `json:"issues"`
	IsExternal   bool     `json:"isExternal"`
	HasSRI       bool     `json:"hasSri"`
	LibraryMatch string   `json:"libraryMatch,omitempty"`
}

// PageResult is the outcome of fetching and classifying one URL.
type PageResult struct {
	URL                  string        `json:"url"`
	StatusCode           int           `json:"statusCode"`
	ContentType          *string       `json:"contentType"`
	HeaderGrades         []HeaderGrade `json:"headerGrades"`
	InfoLeakage          []InfoLeak    `json:"infoLeakage"`
	ContentIssues        []string      `json:"contentIssues"`
	CookieIssues         []string      `json:"cookieIssues"`
	TotalCookies         int           `json:"totalCookiesScanned"`
	ScriptIssues         []ScriptIssue `json:"scriptIssues"`
	TotalExternalScripts int           `json:"totalExternalScripts"`
	CORSChecked          bool          `json:"corsChecked"`
	CORSIssues           []string      `json:"corsIssues"`
}

// Findings returns the page's issues as finding strings in a stable order.
func (p PageResult) Findings() []string {
	var out []string
	for _, g := range p.HeaderGrades {
		switch g.Grade {
		case GradeMissing:
			out = append(out, fmt.Sprintf("Missing %s header", g.Header))
		case GradeWeak:
			out = append(out, fmt.Sprintf("Weak %s: %s", g.Header, g.Reason))
		}
	}
	for _, leak := range p.InfoLeakage {
		out = append(out, fmt.Sprintf("%s header disclosed: %s", leak.Header, leak.Value))
	}
	out = append(out, p.ContentIssues...)
	out = append(out, p.CookieIssues...)
	for _, s := range p.ScriptIssues {
		out = append(out, s.Issues...)
	}
	out = append(out, p.CORSIssues...)
	return out
}

// HTTPReport is the aggregate of one crawl.
type HTTPReport struct {
	StartURL       string       `json:"startUrl"`
	PagesScanned   int          `json:"pagesScanned"`
	Pages          []PageResult `json:"pages"`
	Findings       []string     `json:"findings"`
	RedirectChain  []string     `json:"redirectChain"`
	MetaGenerators []string     `json:"metaGenerators"`
	Timestamp      time.Time    `json:"timestamp"`
}

// HTTPSummary is the compact outcome stored on the job.
type HTTPSummary struct {
	PagesScanned     int      `json:"pagesScanned"`
	IssuesFound      int      `json:"issuesFound"`
	Good             int      `json:"good"`
	Weak             int      `json:"weak"`
	Missing          int      `json:"missing"`
	CriticalFindings []string `json:"criticalFindings"`
}

// CheckStatus is the outcome of one TLS check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// TLSCheck is one graded aspect of the TLS configuration.
type TLSCheck struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
}

// CertificateInfo describes the leaf certificate presented by the server.
type CertificateInfo struct {
	Subject       string    `json:"subject"`
	Issuer        string    `json:"issuer"`
	NotBefore     time.Time `json:"notBefore"`
	NotAfter      time.Time `json:"notAfter"`
	DaysRemaining int       `json:"daysRemaining"`
	DNSNames      []string  `json:"dnsNames"`
	SelfSigned    bool      `json:"selfSigned"`
}

// TLSReport is the result of the TLS scan type.
type TLSReport struct {
	Host        string           `json:"host"`
	Port        string           `json:"port"`
	Protocol    string           `json:"protocol"`
	CipherSuite string           `json:"cipherSuite"`
	Certificate *CertificateInfo `json:"certificate,omitempty"`
	Checks      []TLSCheck       `json:"checks"`
	Findings    []string         `json:"findings"`
	Timestamp   time.Time        `json:"timestamp"`
}

// TLSSummary is the compact outcome of the TLS scan type.
type TLSSummary struct {
	Protocol         string   `json:"protocol"`
	Passed           int      `json:"passed"`
	Warnings         int      `json:"warnings"`
	Failed           int      `json:"failed"`
	IssuesFound      int      `json:"issuesFound"`
	CriticalFindings []string `json:"criticalFindings"`
}
