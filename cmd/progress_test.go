package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinterLifecycle(t *testing.T) {
	var out syncBuffer
	printer := newProgressPrinter(&out, "0123456789abcdef")
	if printer.name != "01234567" {
		t.Fatalf("expected job id to be shortened, got %q", printer.name)
	}

	printer.Start()
	printer.SetStatus("RUNNING")
	time.Sleep(350 * time.Millisecond) // allow ticker to tick at least once
	printer.Stop()
	printer.Stop()

	output := out.String()
	if !strings.Contains(output, "[01234567] Status: RUNNING") {
		t.Fatalf("expected status line, got %q", output)
	}
}

func TestProgressPrinterElapsed(t *testing.T) {
	printer := newProgressPrinter(&bytes.Buffer{}, "job")
	printer.now = func() time.Time { return printer.started.Add(90*time.Second + 400*time.Millisecond) }
	if got := printer.line(); got != "[job] Status: QUEUED Elapsed: 1m30s" {
		t.Fatalf("unexpected line %q", got)
	}
}
