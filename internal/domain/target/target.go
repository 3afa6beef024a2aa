package target

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// Target is a scannable site identified by its canonical base URL.
type Target struct {
	id          string
	baseURL     string
	description string
	createdAt   time.Time
}

// NewTarget creates a target from a raw URL
func NewTarget(rawURL, description string) (*Target, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Target{
		id:          uuid.NewString(),
		baseURL:     canonical,
		description: strings.TrimSpace(description),
		createdAt:   time.Now().UTC(),
	}, nil
}

// Reconstruct creates a target from persisted data
func Reconstruct(id, baseURL, description string, createdAt time.Time) *Target {
	return &Target{
		id:          id,
		baseURL:     baseURL,
		description: description,
		createdAt:   createdAt,
	}
}

// CanonicalURL validates an absolute http(s) URL and normalizes it: lower-case
// scheme and host, default ports dropped, empty path becomes "/", fragment and
// user info removed.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &sharedErrors.ValidationError{Field: "url", Message: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &sharedErrors.ValidationError{Field: "url", Message: fmt.Sprintf("cannot be parsed: %v", err)}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &sharedErrors.ValidationError{Field: "url", Message: "must use http or https"}
	}
	if u.Hostname() == "" {
		return "", &sharedErrors.ValidationError{Field: "url", Message: "must include a host"}
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}

	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SetDescription updates the only mutable field.
func (t *Target) SetDescription(description string) {
	t.description = strings.TrimSpace(description)
}

// Getters

func (t *Target) ID() string {
	return t.id
}

func (t *Target) BaseURL() string {
	return t.baseURL
}

func (t *Target) Description() string {
	return t.description
}

func (t *Target) CreatedAt() time.Time {
	return t.createdAt
}

// Hostname returns the host part of the base URL without port.
func (t *Target) Hostname() string {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
