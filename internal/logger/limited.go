package logger

import (
	"sync"
	"time"
)

// Limited is a Writer that drops entries when they are emitted
// more often than once per Interval. Useful inside per-frame loops.
type Limited struct {
	Parent   Writer
	Interval time.Duration

	mutex sync.Mutex
	last  time.Time
}

// Log implements Writer.
func (w *Limited) Log(level Level, format string, args ...interface{}) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	now := time.Now()
	if now.Sub(w.last) < w.Interval {
		return
	}
	w.last = now

	w.Parent.Log(level, format, args...)
}
