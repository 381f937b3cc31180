package httpp

import (
	"bufio"
	"net"
	"net/http"
	"time"
)

// a response writer that refreshes the write deadline before every
// write. A global http.Server WriteTimeout would cut off long-lived
// streaming responses; a per-write deadline only fires when a single
// write stalls.
type writeTimeoutWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

func (w *writeTimeoutWriter) Header() http.Header {
	return w.w.Header()
}

func (w *writeTimeoutWriter) Write(p []byte) (int, error) {
	w.rc.SetWriteDeadline(time.Now().Add(w.timeout)) //nolint:errcheck
	return w.w.Write(p)
}

func (w *writeTimeoutWriter) WriteHeader(statusCode int) {
	w.rc.SetWriteDeadline(time.Now().Add(w.timeout)) //nolint:errcheck
	w.w.WriteHeader(statusCode)
}

// needed by multipart feeds
func (w *writeTimeoutWriter) Flush() {
	w.rc.Flush() //nolint:errcheck
}

// needed by websocket upgrades
func (w *writeTimeoutWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.rc.Hijack()
}

type handlerWriteTimeout struct {
	http.Handler
	timeout time.Duration
}

func (h *handlerWriteTimeout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ww := &writeTimeoutWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: h.timeout,
	}
	h.Handler.ServeHTTP(ww, r)
}
