package annotator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

type fakeDetector struct {
	onDetect func(*defs.Frame) ([]defs.BoundingBox, error)
}

func (d *fakeDetector) Detect(frame *defs.Frame) ([]defs.BoundingBox, error) {
	return d.onDetect(frame)
}

func (d *fakeDetector) Close() {
}

func withRecordingDraw(t *testing.T, drawn *int) {
	prev := drawOverlay
	drawOverlay = func(frame *defs.Frame, _ []defs.BoundingBox) *defs.Frame {
		*drawn++
		return frame
	}
	t.Cleanup(func() {
		drawOverlay = prev
	})
}

func TestAnnotatorFrameNumbering(t *testing.T) {
	var drawn int
	withRecordingDraw(t, &drawn)

	a := &Annotator{
		Detector: &fakeDetector{onDetect: func(_ *defs.Frame) ([]defs.BoundingBox, error) {
			return []defs.BoundingBox{{ID: 1, Confidence: 0.8}}, nil
		}},
		Parent: nilLogger{},
	}
	a.Initialize()

	frame := defs.NewBlankFrame(4, 4, 0)

	for i := int64(1); i <= 5; i++ {
		_, summary := a.Process(frame)
		require.Equal(t, i, summary.FrameNumber)
	}
	require.Equal(t, 5, drawn)
}

func TestAnnotatorSummaryInvariant(t *testing.T) {
	var drawn int
	withRecordingDraw(t, &drawn)

	a := &Annotator{
		Detector: &fakeDetector{onDetect: func(_ *defs.Frame) ([]defs.BoundingBox, error) {
			return []defs.BoundingBox{
				{ID: 1, Confidence: 0.6},
				{ID: 2, Confidence: 0.8},
			}, nil
		}},
		Parent: nilLogger{},
	}
	a.Initialize()

	_, summary := a.Process(defs.NewBlankFrame(4, 4, 0))
	require.Equal(t, 2, summary.TotalPersons)
	require.Equal(t, len(summary.Positions), summary.TotalPersons)
	require.InDelta(t, 0.7, summary.AverageConfidence, 0.0001)
}

func TestAnnotatorDetectorFailure(t *testing.T) {
	var drawn int
	withRecordingDraw(t, &drawn)

	fail := false
	a := &Annotator{
		Detector: &fakeDetector{onDetect: func(_ *defs.Frame) ([]defs.BoundingBox, error) {
			if fail {
				return nil, fmt.Errorf("inference failed")
			}
			return []defs.BoundingBox{{ID: 1, Confidence: 0.9}}, nil
		}},
		Parent: nilLogger{},
	}
	a.Initialize()

	frame := defs.NewBlankFrame(4, 4, 0)

	_, good := a.Process(frame)
	require.Equal(t, 1, good.TotalPersons)

	// a failed detection keeps the previous summary and
	// passes the frame through unannotated
	fail = true
	out, summary := a.Process(frame)
	require.Equal(t, frame, out)
	require.Equal(t, good, summary)
	require.Equal(t, good, a.LastSummary())
	require.Equal(t, 1, drawn)
}

func TestAnnotatorDegraded(t *testing.T) {
	var drawn int
	withRecordingDraw(t, &drawn)

	a := &Annotator{
		Parent: nilLogger{},
	}
	a.Initialize()

	require.False(t, a.Enabled())

	frame := defs.NewBlankFrame(4, 4, 0)
	out, summary := a.Process(frame)
	require.Equal(t, frame, out)
	require.Equal(t, 0, summary.TotalPersons)
	require.Equal(t, 0.0, summary.AverageConfidence)
	require.Zero(t, drawn)
}
