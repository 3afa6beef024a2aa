package security

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		elems   []string
		wantErr error
	}{
		{"nested file", []string{"job-1", "report.json"}, nil},
		{"dot segments stay inside", []string{"a", "..", "b", "report.json"}, nil},
		{"escape", []string{"..", "outside.json"}, ErrPathEscape},
		{"deep escape", []string{"a", "..", "..", "etc", "passwd"}, ErrPathEscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tt.elems...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.HasPrefix(got, base) {
				t.Fatalf("resolved path %s escaped %s", got, base)
			}
		})
	}
}

func TestResolveWithinEmptyBase(t *testing.T) {
	if _, err := ResolveWithin("", "x"); err == nil {
		t.Fatal("expected error for empty base")
	}
}

func TestResolveJobFile(t *testing.T) {
	base := t.TempDir()

	path, err := ResolveJobFile(base, "3f1c2a9e-8d4b-4c55-9a51-0c7f5e2b1d10", "report.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "report.json" {
		t.Fatalf("unexpected file name in %s", path)
	}

	for _, bad := range []string{"", "..", "../x", "a/b", ".hidden", strings.Repeat("a", 200)} {
		if _, err := ResolveJobFile(base, bad, "report.json"); !errors.Is(err, ErrInvalidPathSegment) {
			t.Errorf("expected ErrInvalidPathSegment for %q, got %v", bad, err)
		}
	}
}
