package grading

import "strings"

// Category groups findings for presentation.
type Category string

const (
	CategoryHeaders Category = "headers"
	CategoryTLS     Category = "tls"
	CategoryCookies Category = "cookies"
	CategoryScripts Category = "scripts"
	CategoryCORS    Category = "cors"
)

// ChecklistOrder is the section order of printable checklists.
var ChecklistOrder = []Category{CategoryHeaders, CategoryTLS, CategoryCookies, CategoryScripts, CategoryCORS}

// PromptOrder is the section order of the grouped remediation prompt.
var PromptOrder = []Category{CategoryHeaders, CategoryCookies, CategoryScripts, CategoryCORS, CategoryTLS}

var categoryPrefixes = []struct {
	category Category
	prefixes []string
}{
	{CategoryCookies, []string{"Missing HttpOnly", "Missing Secure flag", "Missing SameSite", "SameSite=None"}},
	{CategoryScripts, []string{"Missing Subresource Integrity", "Known vulnerable library"}},
	{CategoryCORS, []string{"CORS", "Wildcard CORS"}},
}

var categoryLabels = map[Category]string{
	CategoryHeaders: "Security Headers",
	CategoryCookies: "Cookie Security",
	CategoryScripts: "Script & Dependency Security",
	CategoryCORS:    "CORS Configuration",
	CategoryTLS:     "SSL/TLS",
}

// Label is the human-readable section title.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// CategoryOf classifies an HTTP finding by prefix. Anything unmatched is a
// header finding. TLS findings are categorized by their scan type instead.
func CategoryOf(finding string) Category {
	for _, group := range categoryPrefixes {
		for _, p := range group.prefixes {
			if strings.HasPrefix(finding, p) {
				return group.category
			}
		}
	}
	return CategoryHeaders
}

// ClassifyFindings splits HTTP findings by category and appends TLS findings
// under CategoryTLS.
func ClassifyFindings(httpFindings, tlsFindings []string) map[Category][]string {
	out := make(map[Category][]string)
	for _, f := range httpFindings {
		c := CategoryOf(f)
		out[c] = append(out[c], f)
	}
	if len(tlsFindings) > 0 {
		out[CategoryTLS] = append(out[CategoryTLS], tlsFindings...)
	}
	return out
}
