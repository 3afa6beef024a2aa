// Package techdetect infers the target's technology stack from crawl
// artifacts: page URLs, disclosed headers and meta generator tags.
package techdetect

import (
	"regexp"
	"strings"

	"github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

// Source labels where a detection came from.
const (
	SourceURL           = "url"
	SourceHeader        = "header"
	SourceMetaGenerator = "meta-generator"
)

// Input is everything the detector looks at.
type Input struct {
	URLs           []string
	Headers        []scan.InfoLeak
	MetaGenerators []string
}

// InputFromHTTP collects detector input from a crawl.
func InputFromHTTP(r *scan.HTTPReport) Input {
	var in Input
	if r == nil {
		return in
	}
	in.MetaGenerators = append(in.MetaGenerators, r.MetaGenerators...)
	for _, p := range r.Pages {
		in.URLs = append(in.URLs, p.URL)
		in.Headers = append(in.Headers, p.InfoLeakage...)
		for _, s := range p.ScriptIssues {
			in.URLs = append(in.URLs, s.URL)
		}
	}
	return in
}

type rule struct {
	name       string
	source     string
	header     string // only for header rules
	pattern    *regexp.Regexp
	confidence report.Confidence
}

var rules = []rule{
	{name: "Nginx", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)^nginx`), confidence: report.ConfidenceHigh},
	{name: "Apache", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)^apache`), confidence: report.ConfidenceHigh},
	{name: "Microsoft-IIS", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)^microsoft-iis`), confidence: report.ConfidenceHigh},
	{name: "Cloudflare", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)^cloudflare`), confidence: report.ConfidenceHigh},
	{name: "LiteSpeed", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)^litespeed`), confidence: report.ConfidenceHigh},
	{name: "Express", source: SourceHeader, header: "X-Powered-By", pattern: regexp.MustCompile(`(?i)^express`), confidence: report.ConfidenceHigh},
	{name: "PHP", source: SourceHeader, header: "X-Powered-By", pattern: regexp.MustCompile(`(?i)php`), confidence: report.ConfidenceHigh},
	{name: "PHP", source: SourceHeader, header: "Server", pattern: regexp.MustCompile(`(?i)php/`), confidence: report.ConfidenceMedium},
	{name: "Next.js", source: SourceHeader, header: "X-Powered-By", pattern: regexp.MustCompile(`(?i)next\.js`), confidence: report.ConfidenceHigh},
	{name: "ASP.NET", source: SourceHeader, header: "X-Powered-By", pattern: regexp.MustCompile(`(?i)asp\.net`), confidence: report.ConfidenceHigh},

	{name: "WordPress", source: SourceMetaGenerator, pattern: regexp.MustCompile(`(?i)^wordpress`), confidence: report.ConfidenceHigh},
	{name: "Drupal", source: SourceMetaGenerator, pattern: regexp.MustCompile(`(?i)^drupal`), confidence: report.ConfidenceHigh},
	{name: "Joomla", source: SourceMetaGenerator, pattern: regexp.MustCompile(`(?i)^joomla`), confidence: report.ConfidenceHigh},
	{name: "Hugo", source: SourceMetaGenerator, pattern: regexp.MustCompile(`(?i)^hugo`), confidence: report.ConfidenceHigh},
	{name: "Wix", source: SourceMetaGenerator, pattern: regexp.MustCompile(`(?i)^wix\.com`), confidence: report.ConfidenceHigh},

	{name: "WordPress", source: SourceURL, pattern: regexp.MustCompile(`/wp-(content|includes|admin)/`), confidence: report.ConfidenceMedium},
	{name: "Next.js", source: SourceURL, pattern: regexp.MustCompile(`/_next/`), confidence: report.ConfidenceMedium},
	{name: "PHP", source: SourceURL, pattern: regexp.MustCompile(`(?i)\.php(\?|$|/)`), confidence: report.ConfidenceLow},
	{name: "ASP.NET", source: SourceURL, pattern: regexp.MustCompile(`(?i)\.aspx?(\?|$)`), confidence: report.ConfidenceLow},
	{name: "Drupal", source: SourceURL, pattern: regexp.MustCompile(`/sites/default/files/`), confidence: report.ConfidenceMedium},
	{name: "Cloudflare", source: SourceURL, pattern: regexp.MustCompile(`/cdn-cgi/`), confidence: report.ConfidenceMedium},
}

// Detect applies every rule and merges detections by name, keeping the
// highest confidence. The first detection of a name fixes its position.
func Detect(in Input) []report.Technology {
	var out []report.Technology
	index := make(map[string]int)

	add := func(r rule) {
		i, ok := index[r.name]
		if !ok {
			index[r.name] = len(out)
			out = append(out, report.Technology{Name: r.name, Confidence: r.confidence, Source: r.source})
			return
		}
		if r.confidence.Rank() > out[i].Confidence.Rank() {
			out[i].Confidence = r.confidence
			out[i].Source = r.source
		}
	}

	for _, r := range rules {
		switch r.source {
		case SourceHeader:
			for _, h := range in.Headers {
				if strings.EqualFold(h.Header, r.header) && r.pattern.MatchString(strings.TrimSpace(h.Value)) {
					add(r)
					break
				}
			}
		case SourceMetaGenerator:
			for _, g := range in.MetaGenerators {
				if r.pattern.MatchString(strings.TrimSpace(g)) {
					add(r)
					break
				}
			}
		case SourceURL:
			for _, u := range in.URLs {
				if r.pattern.MatchString(u) {
					add(r)
					break
				}
			}
		}
	}

	if out == nil {
		out = make([]report.Technology, 0)
	}
	return out
}
