package memory

import (
	"sync"

	"log/slog"
)

// Stats summarizes one Collect pass, or the lifetime total held by a
// Context.
type Stats struct {
	Scanned          int // records in the registry at phase 1
	Partitioned      int // records moved to the unused scratch list in phase 2
	Rescued          int // records spliced back from unused in phase 3
	Reclaimed        int // records destroyed and freed in phase 4
	DestructorPanics int // recovered panics from user destroy callbacks
}

func (s *Stats) merge(other Stats) {
	s.Scanned += other.Scanned
	s.Partitioned += other.Partitioned
	s.Rescued += other.Rescued
	s.Reclaimed += other.Reclaimed
	s.DestructorPanics += other.DestructorPanics
}

// Context owns a registry of live records allocated through it. A
// Context is not safe for
// concurrent Make/Collect/handle mutation; callers running more than
// one goroutine against the same Context must serialize access
// themselves or use one Context per goroutine.
type Context struct {
	registry node
	logger   *slog.Logger
	name     string

	// closeOnce guards against a double final Collect from a Close
	// called more than once.
	closeOnce sync.Once
	lifetime  Stats
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithLogger attaches a structured logger used for Collect diagnostics.
// The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

// WithName labels the context in its own log lines, useful when an
// embedder runs more than one independent Context concurrently.
func WithName(name string) Option {
	return func(c *Context) { c.name = name }
}

// NewContext creates an empty context ready for Make.
func NewContext(opts ...Option) *Context {
	c := &Context{logger: slog.Default()}
	c.registry.init()

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var defaultContext = NewContext(WithName("default"))

// Default returns the process-wide default context used when Make or
// Collect is called without one.
func Default() *Context {
	return defaultContext
}

// LifetimeStats returns the running total of every Collect pass run
// against this context so far.
func (c *Context) LifetimeStats() Stats {
	return c.lifetime
}

// Len reports the number of live records currently in the registry.
// It is O(n); intended for tests and diagnostics, not hot paths.
func (c *Context) Len() int {
	n := 0
	for p := c.registry.next; p != &c.registry; p = p.next {
		n++
	}

	return n
}

// Close runs one final Collect over the registry and abandons whatever
// remains. Records still held by an external handle at this point are a
// programmer error; Close does not assert on it, it simply leaves them
// referenced and unreclaimed. Close is safe to call more than once;
// only the first call performs work.
func (c *Context) Close() Stats {
	var stats Stats

	c.closeOnce.Do(func() {
		stats = c.Collect()
	})

	return stats
}
