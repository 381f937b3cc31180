// Package relay contains the shared stream registry, which
// fans a single decode loop out to multiple subscribers.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/streamsight/streamsight/internal/annotator"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/detector"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/source"
)

const (
	frameLogInterval = 30
)

// defaultOpenSource opens the frame source of a stream.
func defaultOpenSource(identity defs.StreamIdentity, fallbackFPS float64,
	parent logger.Writer,
) (source.Source, error) {
	src := &source.Video{
		Identity:          identity,
		FallbackFrameRate: fallbackFPS,
		Parent:            parent,
	}
	err := src.Initialize()
	if err != nil {
		return nil, err
	}
	return src, nil
}

// A Subscriber receives the frames of a shared stream through a
// slot that holds the most recent frame only: a slow consumer
// observes frame drops, never growing latency.
type Subscriber struct {
	annotated bool
	ch        chan *defs.Frame
}

// Frames returns the channel frames are delivered on.
func (sub *Subscriber) Frames() <-chan *defs.Frame {
	return sub.ch
}

func (sub *Subscriber) push(frame *defs.Frame) {
	for {
		select {
		case sub.ch <- frame:
			return
		default:
			// slot full: evict the stale frame and retry
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

// SharedStream couples one frame source with one annotator and
// pumps the result to every subscriber. It is created and closed
// by the Registry, which owns its reference count.
type SharedStream struct {
	identity  defs.StreamIdentity
	src       source.Source
	ann       *annotator.Annotator
	parent    logger.Writer
	ctx       context.Context
	ctxCancel func()
	done      chan struct{}

	// owned by the Registry goroutine
	refCount int

	mutex       sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

func (s *SharedStream) initialize(fallbackFPS float64, det detector.Detector,
	open SourceOpener,
) error {
	src, err := open(s.identity, fallbackFPS, s)
	if err != nil {
		return err
	}
	s.src = src

	s.ann = &annotator.Annotator{
		Detector: det,
		Parent:   s,
	}
	s.ann.Initialize()

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.subscribers = make(map[*Subscriber]struct{})

	go s.run()

	s.Log(logger.Info, "opened (%dx%d, %.1f fps)",
		src.Info().Width, src.Info().Height, src.Info().FPS)

	return nil
}

// Log implements logger.Writer.
func (s *SharedStream) Log(level logger.Level, format string, args ...interface{}) {
	s.parent.Log(level, "[stream %s] "+format, append([]interface{}{s.identity}, args...)...)
}

// Done returns a channel that is closed when the pump stops.
func (s *SharedStream) Done() <-chan struct{} {
	return s.done
}

// Identity returns the stream identity.
func (s *SharedStream) Identity() defs.StreamIdentity {
	return s.identity
}

// Info returns the source characteristics.
func (s *SharedStream) Info() source.Info {
	return s.src.Info()
}

// DetectionEnabled reports whether the stream runs a detector.
func (s *SharedStream) DetectionEnabled() bool {
	return s.ann.Enabled()
}

// LastSummary returns the summary of the last successful detection.
func (s *SharedStream) LastSummary() *defs.DetectionSummary {
	return s.ann.LastSummary()
}

// Subscribe registers a frame consumer. When annotated is true,
// frames carry the detection overlays.
func (s *SharedStream) Subscribe(annotated bool) *Subscriber {
	sub := &Subscriber{
		annotated: annotated,
		ch:        make(chan *defs.Frame, 1),
	}

	s.mutex.Lock()
	s.subscribers[sub] = struct{}{}
	s.mutex.Unlock()

	return sub
}

// Unsubscribe removes a frame consumer. It can be called more than once.
func (s *SharedStream) Unsubscribe(sub *Subscriber) {
	s.mutex.Lock()
	delete(s.subscribers, sub)
	s.mutex.Unlock()
}

func (s *SharedStream) run() {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.src.Info().FPS)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			frame := s.src.Next()
			annotated, summary := s.ann.Process(frame)

			s.mutex.RLock()
			for sub := range s.subscribers {
				if sub.annotated {
					sub.push(annotated)
				} else {
					sub.push(frame)
				}
			}
			s.mutex.RUnlock()

			if summary != nil && summary.FrameNumber%frameLogInterval == 0 {
				s.Log(logger.Debug, "processed %d frames, %d persons in view",
					summary.FrameNumber, summary.TotalPersons)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *SharedStream) close() {
	s.ctxCancel()
	<-s.done
	s.src.Close()
	s.Log(logger.Info, "closed")
}
