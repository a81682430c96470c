package sessionclient

import (
	"fmt"
	"sync"
	"time"
)

const defaultDiagCapacity = 200

// DiagnosticLine is one structured entry in the debug buffer.
type DiagnosticLine struct {
	At      time.Time
	Message string
}

func (l DiagnosticLine) String() string {
	return fmt.Sprintf("%s %s", l.At.Format(time.RFC3339Nano), l.Message)
}

// diagBuffer is a bounded ring of diagnostic lines. Oldest entries are
// dropped once capacity is reached. Not shown to end users by default.
type diagBuffer struct {
	mu    sync.Mutex
	lines []DiagnosticLine
	next  int
	full  bool
	now   func() time.Time
}

func newDiagBuffer(capacity int, now func() time.Time) *diagBuffer {
	if capacity <= 0 {
		capacity = defaultDiagCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &diagBuffer{lines: make([]DiagnosticLine, capacity), now: now}
}

func (b *diagBuffer) addf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = DiagnosticLine{At: b.now(), Message: fmt.Sprintf(format, args...)}
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
}

// snapshot returns entries oldest-first.
func (b *diagBuffer) snapshot() []DiagnosticLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		out := make([]DiagnosticLine, b.next)
		copy(out, b.lines[:b.next])
		return out
	}
	out := make([]DiagnosticLine, 0, len(b.lines))
	out = append(out, b.lines[b.next:]...)
	out = append(out, b.lines[:b.next]...)
	return out
}

// Timestamps records observability checkpoints of the bootstrap and login
// flow. Purely diagnostic, never control flow.
type Timestamps struct {
	ScriptAppended time.Time
	ScriptLoaded   time.Time
	ScriptErrored  time.Time
	SdkInitialized time.Time
	TokenFetched   time.Time
	LoginAttempted time.Time
	LoginSucceeded time.Time
}
