package httpp

import (
	"net/http"
	"os"
	"runtime/debug"

	"github.com/streamsight/streamsight/internal/logger"
)

type handlerServerHeader struct {
	http.Handler
}

func (h *handlerServerHeader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Server", "streamsight")
	h.Handler.ServeHTTP(w, r)
}

type handlerLogger struct {
	http.Handler
	parent logger.Writer
}

func (h *handlerLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.parent.Log(logger.Debug, "[conn %v] %s %s", r.RemoteAddr, r.Method, r.URL.Path)
	h.Handler.ServeHTTP(w, r)
}

// a panic inside a handler would otherwise be swallowed by
// http.Server and leave the process in an undefined state
type handlerExitOnPanic struct {
	http.Handler
}

func (h *handlerExitOnPanic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			os.Stderr.Write(debug.Stack())
			os.Exit(1)
		}
	}()

	h.Handler.ServeHTTP(w, r)
}
