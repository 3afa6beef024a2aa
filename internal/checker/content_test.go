package checker

import (
	"net/url"
	"reflect"
	"testing"
)

func TestContentIssues(t *testing.T) {
	tests := []struct {
		name     string
		finalURL string
		body     string
		want     []string
	}{
		{"clean https page", "https://a.example/", `<img src="https://cdn.example/x.png">`, []string{}},
		{"mixed content", "https://a.example/", `<img src='http://cdn.example/x.png'>`, []string{issueMixedContent}},
		{"http page ignores mixed content", "http://a.example/", `<img src="http://cdn.example/x.png">`, []string{}},
		{"inline alert", "http://a.example/", `<script>alert(1)</script>`, []string{issueXSSPattern}},
		{"javascript url", "http://a.example/", `<a href="javascript:void(0)">x</a>`, []string{issueXSSPattern}},
		{"both", "https://a.example/", `<script src="http://x.example/a.js"></script><script>alert(1)</script>`, []string{issueMixedContent, issueXSSPattern}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContentIssues(tt.finalURL, []byte(tt.body))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	body := `<html><body>
		<a href="/about">About</a>
		<a href="/about#team">About again</a>
		<a href="contact">Contact</a>
		<a href="#/app">SPA</a>
		<a href="https://other.example/x">External</a>
		<a href="/static/site.css">Asset</a>
		<a href="mailto:hi@a.example">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="#top">Anchor</a>
	</body></html>`

	base, _ := url.Parse("https://a.example/docs/")
	root, _ := url.Parse("https://a.example/")
	links := ExtractLinks(parseHTML([]byte(body)), base, root)

	want := []string{
		"https://a.example/about",
		"https://a.example/docs/contact",
		"https://a.example/app",
	}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("got %v, want %v", links, want)
	}
}

func TestMetaGenerator(t *testing.T) {
	tests := map[string]string{
		`<meta name="generator" content="WordPress 6.4">`:             "WordPress 6.4",
		`<meta content="Hugo 0.120" name="Generator">`:                "Hugo 0.120",
		`<meta name="description" content="nothing to see"><p>hi</p>`: "",
	}
	for body, want := range tests {
		if got := MetaGenerator(parseHTML([]byte(body))); got != want {
			t.Errorf("MetaGenerator(%q) = %q, want %q", body, got, want)
		}
	}
}

func TestLooksLikeAsset(t *testing.T) {
	cases := map[string]bool{
		"/":              false,
		"/about":         false,
		"/app.js":        true,
		"/img/LOGO.PNG":  true,
		"/docs/v1.2/":    false,
		"/download.html": false,
	}
	for path, want := range cases {
		if got := looksLikeAsset(path); got != want {
			t.Errorf("looksLikeAsset(%q) = %v, want %v", path, got, want)
		}
	}
}
