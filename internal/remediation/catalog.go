// Package remediation maps findings to explanations and fixes, generic and
// per technology.
package remediation

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/seca-scanner/internal/domain/report"
)

//go:embed catalog.yaml
var catalogYAML []byte

// FrameworkFix is a remediation snippet for one technology.
type FrameworkFix struct {
	Name string `yaml:"name" json:"framework"`
	Fix  string `yaml:"fix" json:"fix"`
}

// Entry explains one class of finding.
type Entry struct {
	Key        string         `yaml:"key" json:"key"`
	Title      string         `yaml:"title" json:"title"`
	Risk       string         `yaml:"risk" json:"risk"`
	Generic    string         `yaml:"generic" json:"genericFix"`
	Frameworks []FrameworkFix `yaml:"frameworks" json:"frameworks,omitempty"`
}

// FrameworkFix returns the fix for the named technology.
func (e *Entry) FrameworkFix(name string) (string, bool) {
	for _, f := range e.Frameworks {
		if f.Name == name {
			return f.Fix, true
		}
	}
	return "", false
}

// Catalog is an immutable lookup table of entries.
type Catalog struct {
	entries map[string]*Entry
	// keys sorted longest first so prefix lookups find the most specific entry.
	keys []string
	// frameworks in first-seen order across entries.
	frameworks []string
}

// Load parses a YAML list of entries.
func Load(data []byte) (*Catalog, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse remediation catalog: %w", err)
	}

	c := &Catalog{entries: make(map[string]*Entry, len(entries))}
	seenFramework := make(map[string]struct{})
	for i := range entries {
		e := &entries[i]
		if e.Key == "" {
			return nil, fmt.Errorf("remediation catalog entry %d has no key", i)
		}
		if _, dup := c.entries[e.Key]; dup {
			return nil, fmt.Errorf("duplicate remediation catalog key %q", e.Key)
		}
		c.entries[e.Key] = e
		c.keys = append(c.keys, e.Key)
		for _, f := range e.Frameworks {
			if _, ok := seenFramework[f.Name]; !ok {
				seenFramework[f.Name] = struct{}{}
				c.frameworks = append(c.frameworks, f.Name)
			}
		}
	}
	sort.SliceStable(c.keys, func(i, j int) bool {
		return len(c.keys[i]) > len(c.keys[j])
	})
	return c, nil
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Find returns the entry for key: an exact match, otherwise the longest
// entry key that prefixes it.
func (c *Catalog) Find(key string) (*Entry, bool) {
	if e, ok := c.entries[key]; ok {
		return e, true
	}
	for _, k := range c.keys {
		if strings.HasPrefix(key, k) {
			return c.entries[k], true
		}
	}
	return nil, false
}

// Explain looks up the entry for a finding.
func (c *Catalog) Explain(finding string) (*Entry, bool) {
	return c.Find(ExplanationKey(finding))
}

// Frameworks lists every technology name with at least one fix.
func (c *Catalog) Frameworks() []string {
	return append([]string(nil), c.frameworks...)
}

// MatchedFramework is a detected technology the catalog has fixes for.
type MatchedFramework struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// MatchTechnologies keeps technologies whose exact name is a framework key of
// some entry, in detection order. Near-misses such as "nginx" or "Next" do
// not match.
func (c *Catalog) MatchTechnologies(techs []report.Technology) []MatchedFramework {
	known := make(map[string]struct{}, len(c.frameworks))
	for _, f := range c.frameworks {
		known[f] = struct{}{}
	}

	out := make([]MatchedFramework, 0)
	seen := make(map[string]struct{})
	for _, t := range techs {
		if _, ok := known[t.Name]; !ok {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			continue
		}
		seen[t.Name] = struct{}{}
		out = append(out, MatchedFramework{Name: t.Name, Slug: Slugify(t.Name)})
	}
	return out
}

// FixesFor returns the framework fixes of the finding's entry for the
// matched technologies only.
func (c *Catalog) FixesFor(finding string, matched []MatchedFramework) []FrameworkFix {
	e, ok := c.Explain(finding)
	if !ok {
		return nil
	}
	var out []FrameworkFix
	for _, m := range matched {
		if fix, ok := e.FrameworkFix(m.Name); ok {
			out = append(out, FrameworkFix{Name: m.Name, Fix: fix})
		}
	}
	return out
}

// ExplanationKey reduces a finding to its catalog key. "Missing X header"
// and "Weak X: reason" reduce to header name X; any other finding is its own key and is
// resolved by prefix.
func ExplanationKey(issue string) string {
	if strings.HasPrefix(issue, "Missing ") && strings.HasSuffix(issue, " header") {
		return strings.TrimSuffix(strings.TrimPrefix(issue, "Missing "), " header")
	}
	if rest, ok := strings.CutPrefix(issue, "Weak "); ok {
		if name, _, found := strings.Cut(rest, ":"); found && !strings.Contains(name, " ") {
			return name
		}
	}
	return issue
}

// Slugify lowercases name and replaces runs of other characters with '-'.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
