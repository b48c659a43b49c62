package logbuf

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Default buffering configuration constants
const (
	DefaultCapacity = 10000
	DefaultFormat   = "%(levelname)s:%(name)s:%(message)s"
)

// Entry is one buffered log record: the level name and the message rendered
// through the configured format template.
type Entry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Capture is a slog.Handler that tees records into a fixed-capacity ring
// buffer before forwarding them to the wrapped handler. The ring keeps the
// most recent entries; the oldest are evicted first when full.
//
// The format template understands the placeholders %(levelname)s, %(name)s,
// %(message)s and %(asctime)s. Unknown text passes through verbatim.
type Capture struct {
	next   slog.Handler
	name   string
	format string
	cap    int

	mu       sync.Mutex
	ring     []Entry
	head     int // index of oldest entry
	count    int
	detached bool
}

// New wraps next with a capture buffer of the given capacity. A capacity
// of zero or less falls back to DefaultCapacity; an empty format falls back
// to DefaultFormat. name labels the %(name)s placeholder.
func New(next slog.Handler, name string, capacity int, format string) *Capture {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if format == "" {
		format = DefaultFormat
	}
	return &Capture{
		next:   next,
		name:   name,
		format: format,
		cap:    capacity,
		ring:   make([]Entry, capacity),
	}
}

// Enabled always reports true so every level reaches the buffer; the wrapped
// handler still applies its own level filtering for its output.
func (c *Capture) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (c *Capture) Handle(ctx context.Context, r slog.Record) error {
	c.append(r)
	if c.next != nil && c.next.Enabled(ctx, r.Level) {
		return c.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs and WithGroup derive handlers that keep writing into the same
// ring, so loggers built from a captured logger stay captured.
func (c *Capture) WithAttrs(attrs []slog.Attr) slog.Handler {
	if c.next == nil || len(attrs) == 0 {
		return c
	}
	return &shared{Capture: c, next: c.next.WithAttrs(attrs)}
}

func (c *Capture) WithGroup(group string) slog.Handler {
	if c.next == nil || group == "" {
		return c
	}
	return &shared{Capture: c, next: c.next.WithGroup(group)}
}

type shared struct {
	*Capture
	next slog.Handler
}

func (s *shared) Handle(ctx context.Context, r slog.Record) error {
	s.append(r)
	if s.next != nil && s.next.Enabled(ctx, r.Level) {
		return s.next.Handle(ctx, r)
	}
	return nil
}

func (s *shared) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return s
	}
	return &shared{Capture: s.Capture, next: s.next.WithAttrs(attrs)}
}

func (s *shared) WithGroup(group string) slog.Handler {
	if group == "" {
		return s
	}
	return &shared{Capture: s.Capture, next: s.next.WithGroup(group)}
}

func (c *Capture) append(r slog.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return
	}
	e := Entry{Level: r.Level.String(), Message: c.render(r)}
	if c.count < c.cap {
		c.ring[(c.head+c.count)%c.cap] = e
		c.count++
		return
	}
	// full: overwrite oldest
	c.ring[c.head] = e
	c.head = (c.head + 1) % c.cap
}

func (c *Capture) render(r slog.Record) string {
	repl := strings.NewReplacer(
		"%(levelname)s", r.Level.String(),
		"%(name)s", c.name,
		"%(message)s", r.Message,
		"%(asctime)s", r.Time.Format(time.DateTime),
	)
	return repl.Replace(c.format)
}

// Entries returns buffered entries. With n <= 0 it returns every entry
// oldest-first. With n > 0 it returns at most n entries newest-first. The
// asymmetric ordering is a compatibility contract relied on by remote
// log-retrieval callers; do not normalize it.
func (c *Capture) Entries(n int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		out := make([]Entry, c.count)
		for i := 0; i < c.count; i++ {
			out[i] = c.ring[(c.head+i)%c.cap]
		}
		return out
	}
	if n > c.count {
		n = c.count
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = c.ring[(c.head+c.count-1-i)%c.cap]
	}
	return out
}

// Len reports the number of buffered entries.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Detach stops buffering and drops the buffered entries. Records logged
// after Detach still reach the wrapped handler. It is idempotent and is
// called from node teardown so release never depends on collector timing.
func (c *Capture) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.ring = nil
	c.head = 0
	c.count = 0
	c.cap = 1 // keep modulo arithmetic safe if a race sneaks an append in
}
