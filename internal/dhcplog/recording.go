package dhcplog

import (
	"fmt"
	"sync"
)

// Line is one recorded log call.
type Line struct {
	Level   string
	Message string
}

// Recording is a Logger that captures every call for test assertions,
// instead of writing anywhere.
type Recording struct {
	mu    sync.Mutex
	lines []Line
}

// NewRecording returns an empty Recording logger.
func NewRecording() *Recording { return &Recording{} }

func (r *Recording) record(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, Line{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (r *Recording) Debugf(format string, args ...any) { r.record("debug", format, args...) }
func (r *Recording) Infof(format string, args ...any)  { r.record("info", format, args...) }
func (r *Recording) Warnf(format string, args ...any)  { r.record("warn", format, args...) }

// Lines returns a snapshot of everything recorded so far.
func (r *Recording) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}
