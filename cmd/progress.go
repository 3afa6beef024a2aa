package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// progressPrinter redraws a one-line status of a job while the CLI waits.
type progressPrinter struct {
	out      io.Writer
	name     string
	started  time.Time
	now      func() time.Time
	mu       sync.Mutex
	status   string
	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newProgressPrinter(out io.Writer, name string) *progressPrinter {
	if len(name) > 8 {
		name = name[:8]
	}
	return &progressPrinter{
		out:     out,
		name:    name,
		started: time.Now(),
		now:     time.Now,
		status:  "QUEUED",
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	p.wg.Add(1)
	go p.loop()
}

func (p *progressPrinter) SetStatus(status string) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Stop clears the line. It is safe to call more than once.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
	})
}

func (p *progressPrinter) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) line() string {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()

	elapsed := p.now().Sub(p.started).Truncate(time.Second)
	return fmt.Sprintf("[%s] Status: %s Elapsed: %s", p.name, status, elapsed)
}

func (p *progressPrinter) print() {
	fmt.Fprintf(p.out, "\r%s", p.line())
}
