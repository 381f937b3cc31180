package httpp

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamsight/streamsight/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

func TestServerStreamingOutlivesWriteTimeout(t *testing.T) {
	s := &Server{
		Address:      "127.0.0.1:0",
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 150 * time.Millisecond,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			f, ok := w.(http.Flusher)
			require.True(t, ok)

			// stream for longer than the write timeout; each
			// write refreshes the deadline
			for i := 0; i < 5; i++ {
				w.Write([]byte("chunk")) //nolint:errcheck
				f.Flush()
				time.Sleep(100 * time.Millisecond)
			}
		}),
		Parent: nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	res, err := http.Get("http://" + s.ListenerAddr().String())
	require.NoError(t, err)
	defer res.Body.Close()

	byts, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("chunkchunkchunkchunkchunk"), byts)
}

func TestServerInvalidTimeouts(t *testing.T) {
	s := &Server{
		Address: "127.0.0.1:0",
		Handler: http.NewServeMux(),
		Parent:  nilLogger{},
	}
	err := s.Initialize()
	require.Error(t, err)
}
