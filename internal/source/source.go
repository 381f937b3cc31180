// Package source contains frame sources.
package source

import (
	"fmt"
	"time"

	"github.com/streamsight/streamsight/internal/conf"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
)

// UnavailableError is returned when a frame source cannot be opened.
type UnavailableError struct {
	Identity defs.StreamIdentity
	Cause    error
}

// Error implements the error interface.
func (e UnavailableError) Error() string {
	return fmt.Sprintf("source %s is unavailable: %v", e.Identity, e.Cause)
}

// Unwrap returns the underlying cause.
func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// Info describes an opened source.
type Info struct {
	Width  int
	Height int
	FPS    float64

	// TotalFrames is zero for live devices.
	TotalFrames int64
}

// A Source produces decoded frames. Next never fails: decode
// errors are replaced with the last good frame or a blank one.
type Source interface {
	Info() Info
	Next() *defs.Frame
	Close()
}

// capture is the decoding backend behind a Source.
type capture interface {
	info() Info
	read() (*defs.Frame, bool)
	rewind()
	close()
}

// openCapture opens the decoding backend; overridden in tests.
var openCapture = gocvOpen

// Video is a Source backed by a video file or a camera device.
type Video struct {
	Identity          defs.StreamIdentity
	FallbackFrameRate float64
	Parent            logger.Writer

	cap        capture
	inf        Info
	frameIndex int64
	last       *defs.Frame
	readErrLog *logger.Limited
	closed     bool
}

// Initialize opens the source.
func (s *Video) Initialize() error {
	cap, err := openCapture(s.Identity, s.FallbackFrameRate)
	if err != nil {
		return UnavailableError{Identity: s.Identity, Cause: err}
	}

	s.cap = cap
	s.inf = cap.info()
	s.readErrLog = &logger.Limited{
		Parent:   s.Parent,
		Interval: 5 * time.Second,
	}

	return nil
}

// Info implements Source.
func (s *Video) Info() Info {
	return s.inf
}

func (s *Video) pts() time.Duration {
	return time.Duration(float64(s.frameIndex) * float64(time.Second) / s.inf.FPS)
}

// Next implements Source.
func (s *Video) Next() *defs.Frame {
	frame, ok := s.cap.read()

	if !ok && s.Identity.Source == conf.SourceFile && s.Identity.Loop {
		s.cap.rewind()
		frame, ok = s.cap.read()
	}

	if !ok {
		// a non-looping file that reached its end holds the last
		// decoded frame; any other failure yields a blank frame
		if s.Identity.Source == conf.SourceFile && !s.Identity.Loop && s.last != nil {
			frame = &defs.Frame{
				Width:  s.last.Width,
				Height: s.last.Height,
				Data:   s.last.Data,
			}
		} else {
			s.readErrLog.Log(logger.Warn, "unable to decode a frame from %s, substituting a blank one", s.Identity)
			frame = defs.NewBlankFrame(s.inf.Width, s.inf.Height, 0)
		}
	}

	frame.PTS = s.pts()
	s.frameIndex++
	s.last = frame

	return frame
}

// Close implements Source. It can be called more than once.
func (s *Video) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cap.close()
}
