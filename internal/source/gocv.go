package source

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/streamsight/streamsight/internal/conf"
	"github.com/streamsight/streamsight/internal/defs"
)

type gocvCapture struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
	inf Info
}

func gocvOpen(identity defs.StreamIdentity, fallbackFPS float64) (capture, error) {
	var vc *gocv.VideoCapture
	var err error

	if identity.Source == conf.SourceCamera {
		vc, err = gocv.VideoCaptureDevice(identity.CameraID)
	} else {
		vc, err = gocv.VideoCaptureFile(identity.VideoPath)
	}
	if err != nil {
		return nil, err
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture could not be opened")
	}

	inf := Info{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}
	if inf.FPS <= 0 {
		inf.FPS = fallbackFPS
	}
	if identity.Source == conf.SourceFile {
		inf.TotalFrames = int64(vc.Get(gocv.VideoCaptureFrameCount))
	}

	return &gocvCapture{
		vc:  vc,
		mat: gocv.NewMat(),
		inf: inf,
	}, nil
}

func (c *gocvCapture) info() Info {
	return c.inf
}

func (c *gocvCapture) read() (*defs.Frame, bool) {
	if !c.vc.Read(&c.mat) || c.mat.Empty() {
		return nil, false
	}

	data, err := c.mat.ToBytes()
	if err != nil {
		return nil, false
	}

	return &defs.Frame{
		Width:  c.mat.Cols(),
		Height: c.mat.Rows(),
		Data:   data,
	}, true
}

func (c *gocvCapture) rewind() {
	c.vc.Set(gocv.VideoCapturePosFrames, 0)
}

func (c *gocvCapture) close() {
	c.mat.Close()
	c.vc.Close()
}
