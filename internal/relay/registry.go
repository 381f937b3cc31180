package relay

import (
	"context"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/detector"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/source"
)

type acquireRes struct {
	stream *SharedStream
	err    error
}

type acquireReq struct {
	identity defs.StreamIdentity
	res      chan acquireRes
}

type releaseReq struct {
	stream *SharedStream
	res    chan struct{}
}

// SourceOpener opens the frame source of a stream.
type SourceOpener func(identity defs.StreamIdentity, fallbackFPS float64,
	parent logger.Writer) (source.Source, error)

// Registry deduplicates shared streams by identity. Lookup,
// creation and reference counting happen inside a single
// goroutine, so concurrent acquires of the same identity open
// the underlying source exactly once.
type Registry struct {
	FallbackFrameRate float64
	Detector          detector.Detector // nil when running degraded
	OpenSource        SourceOpener      // defaults to the gocv backend
	Parent            logger.Writer

	ctx       context.Context
	ctxCancel func()
	done      chan struct{}
	streams   map[string]*SharedStream

	chAcquire chan acquireReq
	chRelease chan releaseReq
}

// Initialize initializes a Registry.
func (r *Registry) Initialize() {
	if r.OpenSource == nil {
		r.OpenSource = defaultOpenSource
	}
	r.ctx, r.ctxCancel = context.WithCancel(context.Background())
	r.done = make(chan struct{})
	r.streams = make(map[string]*SharedStream)
	r.chAcquire = make(chan acquireReq)
	r.chRelease = make(chan releaseReq)

	go r.run()
}

// Close closes every remaining stream and waits for them.
func (r *Registry) Close() {
	r.ctxCancel()
	<-r.done
}

// Log implements logger.Writer.
func (r *Registry) Log(level logger.Level, format string, args ...interface{}) {
	r.Parent.Log(level, "[relay] "+format, args...)
}

func (r *Registry) run() {
	defer close(r.done)

	for {
		select {
		case req := <-r.chAcquire:
			req.res <- r.doAcquire(req.identity)

		case req := <-r.chRelease:
			r.doRelease(req.stream)
			close(req.res)

		case <-r.ctx.Done():
			for _, st := range r.streams {
				st.close()
			}
			r.streams = nil
			return
		}
	}
}

func (r *Registry) doAcquire(identity defs.StreamIdentity) acquireRes {
	key := identity.Key()

	st, ok := r.streams[key]
	if !ok {
		st = &SharedStream{
			identity: identity,
			parent:   r,
		}
		err := st.initialize(r.FallbackFrameRate, r.Detector, r.OpenSource)
		if err != nil {
			return acquireRes{err: err}
		}
		r.streams[key] = st
	}

	st.refCount++

	return acquireRes{stream: st}
}

func (r *Registry) doRelease(st *SharedStream) {
	st.refCount--
	if st.refCount > 0 {
		return
	}

	delete(r.streams, st.identity.Key())
	st.close()
}

// Acquire returns the shared stream with the given identity,
// creating it when absent.
func (r *Registry) Acquire(identity defs.StreamIdentity) (*SharedStream, error) {
	req := acquireReq{
		identity: identity,
		res:      make(chan acquireRes),
	}

	select {
	case r.chAcquire <- req:
		res := <-req.res
		return res.stream, res.err

	case <-r.ctx.Done():
		return nil, context.Canceled
	}
}

// Release drops one reference to a stream. The stream is closed
// when no reference is left.
func (r *Registry) Release(st *SharedStream) {
	req := releaseReq{
		stream: st,
		res:    make(chan struct{}),
	}

	select {
	case r.chRelease <- req:
		<-req.res

	case <-r.ctx.Done():
	}
}
