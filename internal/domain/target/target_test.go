package target

import (
	"errors"
	"testing"

	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://Example.COM", want: "https://example.com/"},
		{in: "HTTPS://example.com:443/path?q=1#frag", want: "https://example.com/path?q=1"},
		{in: "http://example.com:80/", want: "http://example.com/"},
		{in: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{in: "https://user:pw@example.com/", want: "https://example.com/"},
		{in: "http://[2606:4700::1111]:8443/", want: "http://[2606:4700::1111]:8443/"},
		{in: "ftp://example.com", wantErr: true},
		{in: "example.com", wantErr: true},
		{in: "", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, sharedErrors.ErrValidation) {
					t.Fatalf("expected validation error, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewTarget(t *testing.T) {
	tg, err := NewTarget("https://Example.com", "  marketing site ")
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	if tg.ID() == "" {
		t.Error("expected an id")
	}
	if tg.BaseURL() != "https://example.com/" {
		t.Errorf("unexpected base URL %q", tg.BaseURL())
	}
	if tg.Description() != "marketing site" {
		t.Errorf("unexpected description %q", tg.Description())
	}
	if tg.Hostname() != "example.com" {
		t.Errorf("unexpected hostname %q", tg.Hostname())
	}
}
