// Package sink provides task callbacks that persist fetched bodies to disk.
package sink

import (
	"fetchq/internal/domain"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Binary returns a callback that writes the raw body to path.
func Binary(path string) domain.Callback {
	return func(r *domain.Result) error {
		return writeFile(path, r.Body)
	}
}

// Text returns a callback that decodes the body with its charset and writes it
// to path as UTF-8. It fails with domain.ErrNoCharset when the charset is unknown.
func Text(path string) domain.Callback {
	return func(r *domain.Result) error {
		s, err := r.Text()
		if err != nil {
			return fmt.Errorf("sink: %s: %w", r.Task.URL, err)
		}
		return writeFile(path, []byte(s))
	}
}

// Kind selects which callback ForURL builds.
type Kind string

const (
	KindBinary Kind = "binary"
	KindText   Kind = "text"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case "", KindBinary:
		return KindBinary, nil
	case KindText:
		return KindText, nil
	default:
		return "", fmt.Errorf("sink: unknown kind %q", s)
	}
}

// Callback builds the callback of kind k writing to path.
func (k Kind) Callback(path string) domain.Callback {
	if k == KindText {
		return Text(path)
	}
	return Binary(path)
}

// PathFor maps a URL onto a file below dir: host, then the URL path.
// A trailing slash or empty path maps to index.html.
func PathFor(dir, rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" || strings.HasSuffix(rest, "/") || !strings.Contains(rest, "/") {
		rest = strings.TrimSuffix(rest, "/") + "/index.html"
	}
	rest = strings.ReplaceAll(rest, ":", "_")
	clean := filepath.Clean("/" + filepath.FromSlash(rest))
	return filepath.Join(dir, clean)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sink: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return nil
}

const traceLayout = "20060102-150405.000"

// Tracer writes every successful body into Dir, one file per exchange, named
// by the time it was traced.
type Tracer struct {
	Dir string
	Now func() time.Time

	mu   sync.Mutex
	last string
	seq  int
}

func NewTracer(dir string) *Tracer {
	return &Tracer{Dir: dir, Now: time.Now}
}

func (t *Tracer) Trace(r *domain.Result) error {
	return writeFile(filepath.Join(t.Dir, t.name()), r.Body)
}

// name returns yyyyMMdd-HHmmss-SSS, suffixed when two traces share a millisecond.
func (t *Tracer) name() string {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	stamp := strings.Replace(now().Format(traceLayout), ".", "-", 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if stamp == t.last {
		t.seq++
		return fmt.Sprintf("%s.%d", stamp, t.seq)
	}
	t.last, t.seq = stamp, 0
	return stamp
}
