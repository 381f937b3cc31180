package encoder

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
)

const (
	h264ReadBufferSize = 32 * 1024
)

func naluType(nalu []byte) byte {
	return nalu[0] & 0x1F
}

// findStartCode returns the offset and length of the first
// Annex-B start code at or after start, or -1.
func findStartCode(buf []byte, start int) (int, int) {
	for i := start; i+3 <= len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 {
			if buf[i+2] == 1 {
				return i, 3
			}
			if i+4 <= len(buf) && buf[i+2] == 0 && buf[i+3] == 1 {
				return i, 4
			}
		}
	}
	return -1, 0
}

// splitAccessUnits cuts buf into access units delimited by
// access unit delimiter NALs, returning complete units and
// the unconsumed remainder.
func splitAccessUnits(buf []byte) ([][]byte, []byte) {
	var aus [][]byte

	first, _ := findStartCode(buf, 0)
	if first < 0 {
		return nil, buf
	}

	start := first
	for {
		// look for the next AUD
		next := -1
		search := start
		for {
			pos, sclen := findStartCode(buf, search+1)
			if pos < 0 {
				break
			}
			if pos+sclen < len(buf) && naluType(buf[pos+sclen:]) == 9 {
				next = pos
				break
			}
			search = pos
		}

		if next < 0 {
			return aus, buf[start:]
		}

		aus = append(aus, buf[start:next])
		start = next
	}
}

// H264 encodes raw frames into H264 access units by piping
// them through an external ffmpeg process.
type H264 struct {
	Width     int
	Height    int
	FrameRate float64
	OnSample  func(data []byte, duration time.Duration)
	Parent    logger.Writer

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	done   chan struct{}
}

// Initialize starts the encoder.
func (e *H264) Initialize() error {
	e.cmd = exec.Command("ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", e.Width, e.Height),
		"-framerate", strconv.FormatFloat(e.FrameRate, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-pix_fmt", "yuv420p",
		"-x264-params", "aud=1",
		"-f", "h264",
		"-")

	var err error
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return err
	}

	e.stdout, err = e.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	err = e.cmd.Start()
	if err != nil {
		return err
	}

	e.done = make(chan struct{})
	go e.readSamples()

	return nil
}

// Close stops the encoder and waits for the process to exit.
func (e *H264) Close() {
	e.stdin.Close()
	e.cmd.Wait() //nolint:errcheck
	<-e.done
}

// WriteFrame feeds a raw frame into the encoder.
func (e *H264) WriteFrame(frame *defs.Frame) error {
	if len(frame.Data) != e.Width*e.Height*3 {
		return fmt.Errorf("unexpected frame size %dx%d", frame.Width, frame.Height)
	}

	_, err := e.stdin.Write(frame.Data)
	return err
}

func (e *H264) readSamples() {
	defer close(e.done)

	sampleDuration := time.Duration(float64(time.Second) / e.FrameRate)
	var pending []byte
	buf := make([]byte, h264ReadBufferSize)

	for {
		n, err := e.stdout.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)

			var aus [][]byte
			aus, pending = splitAccessUnits(pending)
			for _, au := range aus {
				e.OnSample(au, sampleDuration)
			}
		}
		if err != nil {
			if err != io.EOF {
				e.Parent.Log(logger.Warn, "encoder read error: %v", err)
			}
			if len(pending) > 0 {
				e.OnSample(pending, sampleDuration)
			}
			return
		}
	}
}
