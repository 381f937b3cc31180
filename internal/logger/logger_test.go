package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "test.log")

	l, err := New(Info, map[Destination]struct{}{DestinationFile: {}}, fpath)
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "test format %d", 123)
	l.Log(Debug, "filtered out")

	byts, err := os.ReadFile(fpath)
	require.NoError(t, err)
	require.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} INF test format 123\n$`, string(byts))
}

func TestLoggerLevelFilter(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "test.log")

	l, err := New(Error, map[Destination]struct{}{DestinationFile: {}}, fpath)
	require.NoError(t, err)
	defer l.Close()

	l.Log(Info, "info")
	l.Log(Warn, "warn")
	l.Log(Error, "error")

	byts, err := os.ReadFile(fpath)
	require.NoError(t, err)
	require.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} ERR error\n$`, string(byts))
}
