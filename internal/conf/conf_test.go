package conf

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamsight/streamsight/internal/logger"
)

func writeTempFile(t *testing.T, byts []byte) string {
	fi, err := os.CreateTemp(os.TempDir(), "streamsight-conf-")
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Remove(fi.Name())
	})

	_, err = fi.Write(byts)
	require.NoError(t, err)
	fi.Close()

	return fi.Name()
}

func TestLoadDefaults(t *testing.T) {
	conf, found, err := Load("nonexistent.yml")
	require.NoError(t, err)
	require.Equal(t, false, found)
	require.Equal(t, ":8080", conf.HTTPAddress)
	require.Equal(t, 10*time.Second, conf.HandshakeTimeout)
	require.Equal(t, SourceFile, conf.DefaultSource)
	require.Equal(t, true, conf.LoopVideo)
	require.Equal(t, 0.5, conf.DetectionConfidence)
}

func TestLoadFromFile(t *testing.T) {
	fpath := writeTempFile(t, []byte(
		"logLevel: debug\n"+
			"httpAddress: :9090\n"+
			"handshakeTimeout: 5s\n"+
			"defaultSource: camera\n"+
			"defaultCameraID: 2\n"+
			"detectionConfidence: 0.7\n"))

	conf, found, err := Load(fpath)
	require.NoError(t, err)
	require.Equal(t, true, found)
	require.Equal(t, LogLevel(logger.Debug), conf.LogLevel)
	require.Equal(t, ":9090", conf.HTTPAddress)
	require.Equal(t, 5*time.Second, conf.HandshakeTimeout)
	require.Equal(t, SourceCamera, conf.DefaultSource)
	require.Equal(t, 2, conf.DefaultCameraID)
	require.Equal(t, 0.7, conf.DetectionConfidence)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STREAMSIGHT_HTTPADDRESS", ":7070")
	t.Setenv("STREAMSIGHT_LOGLEVEL", "warn")
	t.Setenv("STREAMSIGHT_TURNSERVERS", "turn:a.example.com:3478,turn:b.example.com:3478")
	t.Setenv("STREAMSIGHT_LOOPVIDEO", "no")
	t.Setenv("STREAMSIGHT_HANDSHAKETIMEOUT", "20s")

	conf, _, err := Load("nonexistent.yml")
	require.NoError(t, err)
	require.Equal(t, ":7070", conf.HTTPAddress)
	require.Equal(t, LogLevel(logger.Warn), conf.LogLevel)
	require.Equal(t, []string{"turn:a.example.com:3478", "turn:b.example.com:3478"}, conf.TURNServers)
	require.Equal(t, false, conf.LoopVideo)
	require.Equal(t, 20*time.Second, conf.HandshakeTimeout)
}

func TestLoadErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		conf string
	}{
		{
			"invalid log level",
			"logLevel: verbose\n",
		},
		{
			"invalid source type",
			"defaultSource: screen\n",
		},
		{
			"invalid confidence",
			"detectionConfidence: 1.5\n",
		},
		{
			"unknown parameter",
			"invalidParam: true\n",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			fpath := writeTempFile(t, []byte(ca.conf))
			_, _, err := Load(fpath)
			require.Error(t, err)
		})
	}
}
