// Package asyncwriter contains an asynchronous writer.
package asyncwriter

import (
	"fmt"
	"time"

	"github.com/bluenviron/gortsplib/v4/pkg/ringbuffer"

	"github.com/streamsight/streamsight/internal/logger"
)

// Writer runs queued write callbacks in a dedicated routine,
// so that a slow consumer cannot block its producer.
type Writer struct {
	fullLogger logger.Writer
	buffer     *ringbuffer.RingBuffer

	// out
	err chan error
}

// New allocates a Writer.
func New(queueSize int, parent logger.Writer) *Writer {
	buffer, _ := ringbuffer.New(uint64(queueSize))

	return &Writer{
		fullLogger: &logger.Limited{
			Parent:   parent,
			Interval: 1 * time.Second,
		},
		buffer: buffer,
		err:    make(chan error),
	}
}

// Start starts the writer routine.
func (w *Writer) Start() {
	go w.run()
}

// Stop stops the writer routine.
func (w *Writer) Stop() {
	w.buffer.Close()
	<-w.err
}

// Error returns whenever there's an error.
func (w *Writer) Error() chan error {
	return w.err
}

func (w *Writer) run() {
	w.err <- w.runInner()
	close(w.err)
}

func (w *Writer) runInner() error {
	for {
		cb, ok := w.buffer.Pull()
		if !ok {
			return fmt.Errorf("terminated")
		}

		err := cb.(func() error)()
		if err != nil {
			return err
		}
	}
}

// Push appends a write callback to the queue.
func (w *Writer) Push(cb func() error) {
	ok := w.buffer.Push(cb)
	if !ok {
		w.fullLogger.Log(logger.Warn, "write queue is full")
	}
}
