package executil

import (
	"strings"
	"sync"
)

// tailBytes bounds the amount of tool output retained in memory for error
// messages. Full logs belong in the per-sample stderr files.
const tailBytes = 4096

// tailBuffer keeps the last max bytes written to it. Writes from the two
// sides of a pipe may interleave, hence the mutex.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
