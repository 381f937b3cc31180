package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

type fakeCapture struct {
	frames     [][]byte
	pos        int
	inf        Info
	rewinds    int
	closeCount int
}

func (c *fakeCapture) info() Info {
	return c.inf
}

func (c *fakeCapture) read() (*defs.Frame, bool) {
	if c.pos >= len(c.frames) {
		return nil, false
	}
	data := c.frames[c.pos]
	c.pos++
	return &defs.Frame{
		Width:  c.inf.Width,
		Height: c.inf.Height,
		Data:   data,
	}, true
}

func (c *fakeCapture) rewind() {
	c.rewinds++
	c.pos = 0
}

func (c *fakeCapture) close() {
	c.closeCount++
}

func withFakeCapture(t *testing.T, cap *fakeCapture) {
	prev := openCapture
	openCapture = func(_ defs.StreamIdentity, _ float64) (capture, error) {
		return cap, nil
	}
	t.Cleanup(func() {
		openCapture = prev
	})
}

func TestVideoLoop(t *testing.T) {
	cap := &fakeCapture{
		frames: [][]byte{{0}, {1}, {2}},
		inf:    Info{Width: 1, Height: 1, FPS: 30, TotalFrames: 3},
	}
	withFakeCapture(t, cap)

	s := &Video{
		Identity: defs.StreamIdentity{Source: "file", VideoPath: "a.mp4", Loop: true},
		Parent:   nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	var got []byte
	var lastPTS int64 = -1
	for i := 0; i < 7; i++ {
		frame := s.Next()
		got = append(got, frame.Data[0])
		require.Greater(t, int64(frame.PTS), lastPTS)
		lastPTS = int64(frame.PTS)
	}

	require.Equal(t, []byte{0, 1, 2, 0, 1, 2, 0}, got)
	require.Equal(t, 2, cap.rewinds)
}

func TestVideoEndOfFile(t *testing.T) {
	cap := &fakeCapture{
		frames: [][]byte{{7}, {8}},
		inf:    Info{Width: 1, Height: 1, FPS: 30, TotalFrames: 2},
	}
	withFakeCapture(t, cap)

	s := &Video{
		Identity: defs.StreamIdentity{Source: "file", VideoPath: "a.mp4", Loop: false},
		Parent:   nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	s.Next()
	s.Next()

	// after end of stream, the last decoded frame is held
	for i := 0; i < 3; i++ {
		frame := s.Next()
		require.Equal(t, byte(8), frame.Data[0])
	}
	require.Zero(t, cap.rewinds)
}

func TestVideoBlankSubstitution(t *testing.T) {
	cap := &fakeCapture{
		frames: nil,
		inf:    Info{Width: 4, Height: 2, FPS: 30},
	}
	withFakeCapture(t, cap)

	s := &Video{
		Identity: defs.StreamIdentity{Source: "camera", CameraID: 0},
		Parent:   nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	frame := s.Next()
	require.Equal(t, 4, frame.Width)
	require.Equal(t, 2, frame.Height)
	require.Equal(t, make([]byte, 4*2*3), frame.Data)
}

func TestVideoCameraReadFailure(t *testing.T) {
	cap := &fakeCapture{
		frames: [][]byte{{7}},
		inf:    Info{Width: 1, Height: 1, FPS: 30},
	}
	withFakeCapture(t, cap)

	s := &Video{
		Identity: defs.StreamIdentity{Source: "camera", CameraID: 0},
		Parent:   nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	defer s.Close()

	frame := s.Next()
	require.Equal(t, []byte{7}, frame.Data)

	// a camera never repeats its last frame: failed reads
	// produce blank frames
	for i := 0; i < 3; i++ {
		frame = s.Next()
		require.Equal(t, make([]byte, 3), frame.Data)
	}
	require.Zero(t, cap.rewinds)
}

func TestVideoCloseIdempotent(t *testing.T) {
	cap := &fakeCapture{
		inf: Info{Width: 1, Height: 1, FPS: 30},
	}
	withFakeCapture(t, cap)

	s := &Video{
		Identity: defs.StreamIdentity{Source: "camera", CameraID: 1},
		Parent:   nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)

	s.Close()
	s.Close()
	require.Equal(t, 1, cap.closeCount)
}
