package encoder

import (
	"gocv.io/x/gocv"

	"github.com/streamsight/streamsight/internal/defs"
)

// JPEG is a StillEncoder that produces JPEG images.
type JPEG struct {
	Quality int
}

// Encode implements StillEncoder.
func (e *JPEG) Encode(frame *defs.Frame) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	quality := e.Quality
	if quality == 0 {
		quality = 85
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat,
		[]int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
