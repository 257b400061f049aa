package producer

import "sync"

// DefaultBufferLines is the number of recent lines kept per widget.
const DefaultBufferLines = 1000

// Buffer keeps the most recent lines of one widget's output.
//
// Thread-safety: Buffer is safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	max   int
	lines []string // ring once len(lines) == max
	start int      // index of the oldest line
}

// NewBuffer creates a buffer holding at most max lines.
// A max below 1 uses DefaultBufferLines.
func NewBuffer(max int) *Buffer {
	if max < 1 {
		max = DefaultBufferLines
	}
	return &Buffer{max: max}
}

// Add appends a line, dropping the oldest when full.
func (b *Buffer) Add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) < b.max {
		b.lines = append(b.lines, line)
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.max
}

// Restore replaces the buffer contents with lines, keeping the newest.
func (b *Buffer) Restore(lines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if over := len(lines) - b.max; over > 0 {
		lines = lines[over:]
	}
	b.lines = append(make([]string, 0, len(lines)), lines...)
	b.start = 0
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.lines))
	out = append(out, b.lines[b.start:]...)
	return append(out, b.lines[:b.start]...)
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
