package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConf(t *testing.T, cnf string) string {
	fpath := filepath.Join(t.TempDir(), "streamsight.yml")
	err := os.WriteFile(fpath, []byte(cnf), 0o644)
	require.NoError(t, err)
	return fpath
}

func TestCoreStartStop(t *testing.T) {
	fpath := writeTempConf(t, "httpAddress: 127.0.0.1:0\n"+
		"observerAddress: 127.0.0.1:0\n")

	p, ok := New([]string{fpath})
	require.True(t, ok)
	p.Close()
}

func TestCoreConfError(t *testing.T) {
	fpath := writeTempConf(t, "invalidKey: true\n")

	_, ok := New([]string{fpath})
	require.False(t, ok)
}

func TestCoreMissingDetectorDegrades(t *testing.T) {
	fpath := writeTempConf(t, "httpAddress: 127.0.0.1:0\n"+
		"observerAddress: 127.0.0.1:0\n"+
		"modelPath: /nonexistent/model.pb\n")

	p, ok := New([]string{fpath})
	require.True(t, ok)
	require.Nil(t, p.detector)
	p.Close()
}
