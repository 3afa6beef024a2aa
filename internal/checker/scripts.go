package checker

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

type vulnerableLibrary struct {
	pattern *regexp.Regexp
	label   string
}

var vulnerableLibraries = []vulnerableLibrary{
	{regexp.MustCompile(`(?i)jquery[.-]1\.`), "jQuery 1.x (known vulnerabilities)"},
	{regexp.MustCompile(`(?i)jquery[.-]2\.`), "jQuery 2.x (known vulnerabilities)"},
	{regexp.MustCompile(`(?i)angular[.-]1\.`), "AngularJS 1.x (end of life)"},
	{regexp.MustCompile(`(?i)bootstrap[.-]2\.`), "Bootstrap 2.x (known vulnerabilities)"},
	{regexp.MustCompile(`(?i)bootstrap[.-]3\.`), "Bootstrap 3.x (known vulnerabilities)"},
	{regexp.MustCompile(`(?i)lodash[.-][123]\.`), "Lodash <4.x (prototype pollution)"},
}

// AnalyzeScripts inspects external <script src> references on a page for
// missing Subresource Integrity and known vulnerable libraries. It returns
// the scripts with issues and the number of external scripts seen.
func AnalyzeScripts(doc *goquery.Document, pageURL string) ([]scan.ScriptIssue, int) {
	if doc == nil {
		return nil, 0
	}
	base, _ := url.Parse(pageURL)

	issues := make([]scan.ScriptIssue, 0)
	total := 0
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if !isExternalScript(src) {
			return
		}
		total++

		resolved := src
		if base != nil {
			if u, err := base.Parse(src); err == nil {
				resolved = u.String()
			}
		}
		hasSRI := strings.TrimSpace(s.AttrOr("integrity", "")) != ""
		library := matchVulnerableLibrary(src)

		var found []string
		if !hasSRI {
			found = append(found, fmt.Sprintf("Missing Subresource Integrity on external script: %s", resolved))
		}
		if library != "" {
			found = append(found, fmt.Sprintf("Known vulnerable library detected: %s (%s)", library, resolved))
		}
		if len(found) == 0 {
			return
		}
		issues = append(issues, scan.ScriptIssue{
			URL:          resolved,
			PageURL:      pageURL,
			Issues:       found,
			IsExternal:   true,
			HasSRI:       hasSRI,
			LibraryMatch: library,
		})
	})
	return issues, total
}

func isExternalScript(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "//")
}

func matchVulnerableLibrary(src string) string {
	for _, lib := range vulnerableLibraries {
		if lib.pattern.MatchString(src) {
			return lib.label
		}
	}
	return ""
}
