package checker

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
)

// RuleKind selects how a header value is graded.
type RuleKind int

const (
	// KindMinAge requires a max-age directive of at least MinAge plus the
	// Require token.
	KindMinAge RuleKind = iota
	// KindForbidTokens degrades the header when any of Tokens appears.
	KindForbidTokens
	// KindEqualsCI requires the value to equal Tokens[0], ignoring case.
	KindEqualsCI
	// KindOneOfCI requires the value to be one of Tokens, ignoring case.
	KindOneOfCI
	// KindRejectCI degrades the header when the value is one of Tokens.
	KindRejectCI
	// KindPresenceOnly grades any non-empty value as good.
	KindPresenceOnly
)

// HeaderRule describes how one response header is graded.
type HeaderRule struct {
	Header  string
	Kind    RuleKind
	MinAge  int64
	Require string
	Tokens  []string
	// Explain overrides the weak reason for KindRejectCI.
	Explain string
}

// DefaultRules is the graded header set, in report order.
var DefaultRules = []HeaderRule{
	{Header: "Strict-Transport-Security", Kind: KindMinAge, MinAge: constants.HSTSMinMaxAge, Require: "includeSubDomains"},
	{Header: "Content-Security-Policy", Kind: KindForbidTokens, Tokens: []string{"unsafe-inline", "unsafe-eval"}},
	{Header: "X-Content-Type-Options", Kind: KindEqualsCI, Tokens: []string{"nosniff"}},
	{Header: "X-Frame-Options", Kind: KindOneOfCI, Tokens: []string{"DENY", "SAMEORIGIN"}},
	{Header: "Referrer-Policy", Kind: KindRejectCI, Tokens: []string{"unsafe-url"}, Explain: "which leaks full URL"},
	{Header: "Permissions-Policy", Kind: KindPresenceOnly},
}

// infoLeakageHeaders are reported verbatim when present.
var infoLeakageHeaders = []string{"Server", "X-Powered-By"}

var maxAgePattern = regexp.MustCompile(`(?i)max-age=(\d+)`)

// GradeHeaders grades h against DefaultRules.
func GradeHeaders(h http.Header) []scan.HeaderGrade {
	return GradeHeadersWith(DefaultRules, h)
}

// GradeHeadersWith grades h against rules, one grade per rule.
func GradeHeadersWith(rules []HeaderRule, h http.Header) []scan.HeaderGrade {
	grades := make([]scan.HeaderGrade, 0, len(rules))
	for _, rule := range rules {
		grades = append(grades, GradeHeader(rule, headerValue(h, rule.Header)))
	}
	return grades
}

// GradeHeader evaluates a single rule. An empty value is treated as absent.
func GradeHeader(rule HeaderRule, value string) scan.HeaderGrade {
	if value == "" {
		return scan.HeaderGrade{
			Header: rule.Header,
			Grade:  scan.GradeMissing,
			Reason: "Header not present",
		}
	}

	grade, reason := evaluate(rule, value)
	v := value
	return scan.HeaderGrade{
		Header: rule.Header,
		Value:  &v,
		Grade:  grade,
		Reason: reason,
	}
}

func evaluate(rule HeaderRule, value string) (scan.Grade, string) {
	lower := strings.ToLower(value)

	switch rule.Kind {
	case KindMinAge:
		var maxAge int64
		if m := maxAgePattern.FindStringSubmatch(value); m != nil {
			// ParseInt saturates on overflow, which still grades as long enough.
			maxAge, _ = strconv.ParseInt(m[1], 10, 64)
		}
		hasRequired := rule.Require == "" || strings.Contains(lower, strings.ToLower(rule.Require))
		switch {
		case maxAge >= rule.MinAge && hasRequired:
			return scan.GradeGood, fmt.Sprintf("max-age=%d with %s", maxAge, rule.Require)
		case maxAge < rule.MinAge:
			return scan.GradeWeak, fmt.Sprintf("max-age=%d is less than 1 year (%d)", maxAge, rule.MinAge)
		default:
			return scan.GradeWeak, "Missing " + rule.Require
		}

	case KindForbidTokens:
		var found []string
		for _, token := range rule.Tokens {
			if strings.Contains(lower, strings.ToLower(token)) {
				found = append(found, token)
			}
		}
		if len(found) > 0 {
			return scan.GradeWeak, "Contains " + strings.Join(found, ", ")
		}
		return scan.GradeGood, "Present without unsafe directives"

	case KindEqualsCI:
		if len(rule.Tokens) > 0 && strings.EqualFold(value, rule.Tokens[0]) {
			return scan.GradeGood, "Correctly set to " + rule.Tokens[0]
		}
		return scan.GradeWeak, "Unexpected value: " + value

	case KindOneOfCI:
		upper := strings.ToUpper(value)
		for _, token := range rule.Tokens {
			if upper == strings.ToUpper(token) {
				return scan.GradeGood, "Set to " + upper
			}
		}
		return scan.GradeWeak, "Unexpected value: " + value

	case KindRejectCI:
		for _, token := range rule.Tokens {
			if lower == strings.ToLower(token) {
				reason := "Set to " + token
				if rule.Explain != "" {
					reason += " " + rule.Explain
				}
				return scan.GradeWeak, reason
			}
		}
		return scan.GradeGood, "Set to " + value

	case KindPresenceOnly:
		return scan.GradeGood, "Present"
	}

	return scan.GradeWeak, "Unsupported rule"
}

// InfoLeakage returns the disclosed implementation headers present on h.
func InfoLeakage(h http.Header) []scan.InfoLeak {
	leaks := make([]scan.InfoLeak, 0)
	for _, name := range infoLeakageHeaders {
		if value := headerValue(h, name); value != "" {
			leaks = append(leaks, scan.InfoLeak{Header: name, Value: value})
		}
	}
	return leaks
}

// headerValue joins repeated header lines the way user agents do.
func headerValue(h http.Header, name string) string {
	if h == nil {
		return ""
	}
	return strings.Join(h.Values(name), ", ")
}
