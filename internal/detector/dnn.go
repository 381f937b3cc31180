package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/streamsight/streamsight/internal/defs"
)

const (
	dnnInputSize = 300
)

// DNN is a Detector that runs a SSD-style network through
// the OpenCV DNN module. The network is shared between
// streams, hence inference is serialized.
type DNN struct {
	ModelPath     string
	ConfigPath    string
	MinConfidence float64

	// class id that represents a person in the model's
	// training set (1 for COCO-trained SSD models)
	PersonClassID int

	mutex sync.Mutex
	net   gocv.Net
}

// Initialize loads the network.
func (d *DNN) Initialize() error {
	if d.PersonClassID == 0 {
		d.PersonClassID = 1
	}

	if _, err := os.Stat(d.ModelPath); err != nil {
		return UnavailableError{Cause: err}
	}

	d.net = gocv.ReadNet(d.ModelPath, d.ConfigPath)
	if d.net.Empty() {
		return UnavailableError{Cause: fmt.Errorf("unable to load model %s", d.ModelPath)}
	}

	return nil
}

// Detect implements Detector.
func (d *DNN) Detect(frame *defs.Frame) ([]defs.BoundingBox, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/127.5,
		image.Pt(dnnInputSize, dnnInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	prob := d.net.Forward("")
	defer prob.Close()

	var boxes []defs.BoundingBox

	// output rows are [batch, class, confidence, left, top, right, bottom]
	for i := 0; i < prob.Total(); i += 7 {
		confidence := float64(prob.GetFloatAt(0, i+2))
		if confidence < d.MinConfidence {
			continue
		}

		classID := int(prob.GetFloatAt(0, i+1))
		if classID != d.PersonClassID {
			continue
		}

		left := clamp(float64(prob.GetFloatAt(0, i+3)), 0, 1)
		top := clamp(float64(prob.GetFloatAt(0, i+4)), 0, 1)
		right := clamp(float64(prob.GetFloatAt(0, i+5)), 0, 1)
		bottom := clamp(float64(prob.GetFloatAt(0, i+6)), 0, 1)

		widthNorm := right - left
		heightNorm := bottom - top
		if widthNorm <= 0 || heightNorm <= 0 {
			continue
		}

		xNorm := left + widthNorm/2
		yNorm := top + heightNorm/2

		boxes = append(boxes, defs.BoundingBox{
			ID:         len(boxes) + 1,
			X:          int(xNorm * float64(frame.Width)),
			Y:          int(yNorm * float64(frame.Height)),
			Width:      int(widthNorm * float64(frame.Width)),
			Height:     int(heightNorm * float64(frame.Height)),
			XNorm:      xNorm,
			YNorm:      yNorm,
			WidthNorm:  widthNorm,
			HeightNorm: heightNorm,
			Confidence: confidence,
		})
	}

	return boxes, nil
}

// Close implements Detector.
func (d *DNN) Close() {
	d.net.Close()
}

func clamp(v float64, minv float64, maxv float64) float64 {
	if v < minv {
		return minv
	}
	if v > maxv {
		return maxv
	}
	return v
}
