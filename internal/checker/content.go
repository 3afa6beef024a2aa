package checker

import (
	"bytes"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	issueMixedContent = "Mixed content detected (HTTPS page with HTTP resources)"
	issueXSSPattern   = "Potential XSS pattern detected"
)

var (
	mixedContentPattern = regexp.MustCompile(`(?i)src=["']http://[^"']+["']`)
	xssIndicators       = []string{"<script>alert(", "javascript:"}
)

var assetExtensions = map[string]struct{}{
	".css":         {},
	".js":          {},
	".json":        {},
	".map":         {},
	".txt":         {},
	".png":         {},
	".jpg":         {},
	".jpeg":        {},
	".gif":         {},
	".svg":         {},
	".ico":         {},
	".webp":        {},
	".webmanifest": {},
	".mp4":         {},
	".mp3":         {},
	".woff":        {},
	".woff2":       {},
	".ttf":         {},
	".eot":         {},
	".pdf":         {},
	".zip":         {},
	".tar":         {},
}

// ContentIssues runs the body heuristics. finalURL is the URL the body was
// served from after redirects.
func ContentIssues(finalURL string, body []byte) []string {
	issues := make([]string, 0)
	if strings.HasPrefix(strings.ToLower(finalURL), "https://") && mixedContentPattern.Match(body) {
		issues = append(issues, issueMixedContent)
	}
	for _, indicator := range xssIndicators {
		if bytes.Contains(body, []byte(indicator)) {
			issues = append(issues, issueXSSPattern)
			break
		}
	}
	return issues
}

// parseHTML builds a goquery document; malformed markup still yields a tree.
func parseHTML(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return doc
}

// MetaGenerator returns the content of <meta name="generator">, if any.
func MetaGenerator(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	var generator string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "generator") {
			return true
		}
		generator = strings.TrimSpace(s.AttrOr("content", ""))
		return generator == ""
	})
	return generator
}

// ExtractLinks returns crawlable links on the same host as root, resolved
// against base, in document order and without duplicates.
func ExtractLinks(doc *goquery.Document, base, root *url.URL) []string {
	if doc == nil || base == nil {
		return nil
	}
	seen := make(map[string]struct{})
	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u := resolveLink(base, href)
		if u == nil || !hostsMatch(root, u) || looksLikeAsset(u.Path) {
			return
		}
		key := canonicalURL(u)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	return links
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "#/") {
		return nil
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "data:"):
		return nil
	}

	if strings.HasPrefix(href, "#/") {
		return buildURLFromPath(base, href[1:])
	}
	if strings.HasPrefix(href, "/#/") {
		return buildURLFromPath(base, href[2:])
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	ref = base.ResolveReference(ref)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}

	if strings.HasPrefix(ref.Fragment, "/") {
		ref.Path = ensureLeadingSlash(ref.Fragment)
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	if ref.Path == "" {
		ref.Path = "/"
	}
	return ref
}

func buildURLFromPath(base *url.URL, path string) *url.URL {
	return &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   ensureLeadingSlash(path),
	}
}

func ensureLeadingSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func canonicalURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

func hostsMatch(a, b *url.URL) bool {
	return a != nil && b != nil && a.Hostname() != "" && strings.EqualFold(a.Hostname(), b.Hostname())
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func looksLikeAsset(path string) bool {
	if path == "" || path == "/" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, blocked := assetExtensions[ext]
	return blocked
}
