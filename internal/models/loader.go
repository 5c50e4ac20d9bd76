package models

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Loader is a small CLI spinner reporting how many policy pages were fetched so far.
//
//	l := models.NewLoader(os.Stderr, "Fetching policies")
//	l.Start()
//	l.Page(1, 100)
//	l.StopWithMessage("Fetched 100 policies")
type Loader struct {
	mu       sync.Mutex
	msg      string
	pages    int
	items    int
	frames   []string
	interval time.Duration
	out      io.Writer
	ansi     bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	active   bool
	started  bool
}

// Option configures the loader.
type Option func(*Loader)

// WithInterval sets frame interval.
func WithInterval(d time.Duration) Option { return func(l *Loader) { l.interval = d } }

// WithANSI forces ANSI line clearing on/off.
func WithANSI(enabled bool) Option { return func(l *Loader) { l.ansi = enabled } }

// NewLoader creates a loader writing to out (os.Stderr when nil).
func NewLoader(out io.Writer, message string, opts ...Option) *Loader {
	l := &Loader{
		msg:      message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 90 * time.Millisecond,
		out:      out,
		ansi:     true,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if l.out == nil {
		l.out = os.Stderr
	}
	for _, opt := range opts {
		opt(l)
	}
	if !l.ansi {
		l.frames = []string{"-", "\\", "|", "/"}
	}
	return l
}

// Page records that page number n was fetched, bringing the total item count to items.
// It matches the page observer signature accepted by the client.
func (l *Loader) Page(n, items int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = n
	l.items = items
}

func (l *Loader) line(frame string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pages == 0 {
		return fmt.Sprintf("%s %s", frame, l.msg)
	}
	return fmt.Sprintf("%s %s (page %d, %d policies)", frame, l.msg, l.pages, l.items)
}

// Start begins the spinner. A loader runs at most once; later calls are ignored.
func (l *Loader) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.active = true
	l.mu.Unlock()

	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			if l.ansi {
				fmt.Fprintf(l.out, "\r\x1b[2K%s", l.line(l.frames[i%len(l.frames)]))
			} else {
				fmt.Fprintf(l.out, "\r%s", l.line(l.frames[i%len(l.frames)]))
			}
			select {
			case <-l.stopCh:
				if l.ansi {
					fmt.Fprint(l.out, "\r\x1b[2K")
				} else {
					fmt.Fprint(l.out, "\r")
				}
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and waits for the render goroutine to exit.
func (l *Loader) Stop() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	close(l.stopCh)
	l.mu.Unlock()
	<-l.doneCh
}

// StopWithMessage stops the spinner and prints a final line.
func (l *Loader) StopWithMessage(msg string) {
	l.Stop()
	if msg != "" {
		fmt.Fprintln(l.out, msg)
	}
}
