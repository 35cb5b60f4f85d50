package testutils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// LogBuffer collects zerolog JSON lines written from any goroutine.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) Logger() zerolog.Logger {
	return zerolog.New(b).Level(zerolog.DebugLevel)
}

// Entries decodes every logged line.
func (b *LogBuffer) Entries() []map[string]any {
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of entries at level whose message is msg.
// An empty msg matches any message.
func (b *LogBuffer) Count(level, msg string) int {
	n := 0
	for _, e := range b.Entries() {
		if e[zerolog.LevelFieldName] != level {
			continue
		}
		if msg != "" && e[zerolog.MessageFieldName] != msg {
			continue
		}
		n++
	}
	return n
}
