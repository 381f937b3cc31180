package annotator

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/streamsight/streamsight/internal/defs"
)

var (
	boxColor    = color.RGBA{G: 255}
	centerColor = color.RGBA{B: 255}
)

func gocvDraw(frame *defs.Frame, boxes []defs.BoundingBox) *defs.Frame {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return frame
	}
	defer mat.Close()

	for _, b := range boxes {
		rect := image.Rect(b.X-b.Width/2, b.Y-b.Height/2, b.X+b.Width/2, b.Y+b.Height/2)
		gocv.Rectangle(&mat, rect, boxColor, 2)

		label := fmt.Sprintf("Person %d: %.2f", b.ID, b.Confidence)
		gocv.PutText(&mat, label, image.Pt(rect.Min.X, rect.Min.Y-8),
			gocv.FontHersheySimplex, 0.5, boxColor, 2)

		gocv.Circle(&mat, image.Pt(b.X, b.Y), 4, centerColor, -1)
	}

	data, err := mat.ToBytes()
	if err != nil {
		return frame
	}

	return &defs.Frame{
		Width:  frame.Width,
		Height: frame.Height,
		Data:   data,
		PTS:    frame.PTS,
	}
}
