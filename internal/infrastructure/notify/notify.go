// Package notify delivers terminal job events to the destination that
// requested the scan.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// Channel identifies how a requester receives notifications.
type Channel string

const (
	ChannelCLI       Channel = "cli"
	ChannelAPI       Channel = "api"
	ChannelWebSocket Channel = "ws"
)

// Destination is a parsed requestedBy value, "<channel>:<address>".
type Destination struct {
	Channel Channel
	Address string
}

func (d Destination) String() string {
	return string(d.Channel) + ":" + d.Address
}

// ParseDestination parses a requestedBy value. Unknown channels and empty
// addresses return ErrUnknownDestination.
func ParseDestination(raw string) (Destination, error) {
	channel, address, ok := strings.Cut(raw, ":")
	if !ok || address == "" {
		return Destination{}, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownDestination, raw)
	}
	switch c := Channel(channel); c {
	case ChannelCLI, ChannelAPI, ChannelWebSocket:
		return Destination{Channel: c, Address: address}, nil
	}
	return Destination{}, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownDestination, raw)
}

// Event reports a job reaching a terminal state, or observation giving up.
type Event struct {
	JobID        string          `json:"jobId"`
	TargetID     string          `json:"targetId,omitempty"`
	Status       string          `json:"status"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	TimedOut     bool            `json:"timedOut,omitempty"`
}

// Text renders the event as a plain multi-line message.
func (e Event) Text() string {
	if e.TimedOut {
		return fmt.Sprintf("Job %s polling timed out. Use \"status %s\" to check manually.", e.JobID, e.JobID)
	}

	shortID := e.JobID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	lines := []string{
		"Scan completed for " + e.TargetID,
		"Job: " + shortID + "...",
		"Status: " + e.Status,
	}
	if e.ErrorCode != "" {
		lines = append(lines, "Error: "+e.ErrorCode)
		if e.ErrorMessage != "" {
			lines = append(lines, "Message: "+e.ErrorMessage)
		}
	}
	if summary := summaryLines(e.Summary); len(summary) > 0 {
		lines = append(lines, "", "Summary:")
		lines = append(lines, summary...)
	}
	lines = append(lines, "", "For detailed report, use: status "+e.JobID)
	return strings.Join(lines, "\n")
}

func summaryLines(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			joined := strings.Join(parts, ", ")
			if joined == "" {
				joined = "none"
			}
			out = append(out, "  "+k+": "+joined)
		default:
			b, _ := json.Marshal(v)
			out = append(out, "  "+k+": "+strings.Trim(string(b), `"`))
		}
	}
	return out
}

// Notifier delivers an event to a destination.
type Notifier interface {
	Notify(ctx context.Context, dest Destination, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, dest Destination, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, dest Destination, ev Event) error {
	return f(ctx, dest, ev)
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, dest Destination, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, dest, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
