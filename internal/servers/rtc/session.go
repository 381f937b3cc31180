package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	pwebrtc "github.com/pion/webrtc/v4"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/encoder"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/relay"
)

// frameEncoder turns raw frames into encoded samples.
type frameEncoder interface {
	WriteFrame(frame *defs.Frame) error
	Close()
}

// newFrameEncoder creates the encoder of a session; overridden in tests.
var newFrameEncoder = func(width int, height int, fps float64,
	onSample func(data []byte, duration time.Duration), parent logger.Writer,
) (frameEncoder, error) {
	e := &encoder.H264{
		Width:     width,
		Height:    height,
		FrameRate: fps,
		OnSample:  onSample,
		Parent:    parent,
	}
	err := e.Initialize()
	if err != nil {
		return nil, err
	}
	return e, nil
}

var validTransitions = map[defs.SessionState]defs.SessionState{
	defs.SessionStateCreated:     defs.SessionStateNegotiating,
	defs.SessionStateNegotiating: defs.SessionStateConnected,
	defs.SessionStateConnected:   defs.SessionStateClosing,
	defs.SessionStateClosing:     defs.SessionStateClosed,
}

type session struct {
	id               string
	offer            string
	identity         defs.StreamIdentity
	iceServers       []pwebrtc.ICEServer
	handshakeTimeout time.Duration
	relay            *relay.Registry
	res              chan newSessionRes
	parent           *Server

	ctx       context.Context
	ctxCancel func()
	created   time.Time

	mutex  sync.Mutex
	state  defs.SessionState
	stream *relay.SharedStream

	sub      *relay.Subscriber
	pc       Transport
	enc      frameEncoder
	writeErr *logger.Limited
}

func (s *session) initialize() {
	s.ctx, s.ctxCancel = context.WithCancel(s.parent.ctx)
	s.created = time.Now()
	s.state = defs.SessionStateCreated
	s.writeErr = &logger.Limited{
		Parent:   s,
		Interval: 5 * time.Second,
	}

	s.Log(logger.Info, "created")

	s.parent.wg.Add(1)
	go s.run()
}

// Log implements logger.Writer.
func (s *session) Log(level logger.Level, format string, args ...interface{}) {
	s.parent.Log(level, "[session %s] "+format, append([]interface{}{s.id}, args...)...)
}

// close makes the session terminate. It can be called more than once.
func (s *session) close() {
	s.ctxCancel()
}

// transition moves the state machine forward. States can only
// advance, and only one step at a time, except toward Closing,
// which is reachable from any live state.
func (s *session) transition(to defs.SessionState) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == to {
		return
	}

	valid := validTransitions[s.state] == to ||
		(to == defs.SessionStateClosing && s.state < defs.SessionStateClosing)
	if !valid {
		s.Log(logger.Warn, "invalid state transition: %v -> %v", s.state, to)
		return
	}

	s.Log(logger.Debug, "state: %v -> %v", s.state, to)
	s.state = to
}

func (s *session) currentState() defs.SessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *session) setStream(st *relay.SharedStream) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stream = st
}

func (s *session) streamRef() *relay.SharedStream {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stream
}

// summary returns the latest detection summary of the stream.
func (s *session) summary() *defs.DetectionSummary {
	st := s.streamRef()
	if st == nil {
		return nil
	}
	return st.LastSummary()
}

func (s *session) apiItem() defs.APISession {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	detectionEnabled := false
	var latestSummary *defs.DetectionSummary
	if s.stream != nil {
		detectionEnabled = s.stream.DetectionEnabled()
		latestSummary = s.stream.LastSummary()
	}

	return defs.APISession{
		ClientID:         s.id,
		CreatedAt:        s.created,
		State:            s.state.String(),
		Source:           s.identity.String(),
		DetectionEnabled: detectionEnabled,
		LatestSummary:    latestSummary,
	}
}

func (s *session) answer(res newSessionRes) {
	if s.res != nil {
		s.res <- res
		s.res = nil
	}
}

func (s *session) onSample(data []byte, duration time.Duration) {
	err := s.pc.WriteVideoSample(data, duration)
	if err != nil {
		s.writeErr.Log(logger.Warn, "unable to write sample: %v", err)
	}
}

func (s *session) run() {
	defer s.parent.wg.Done()

	err := s.runInner()

	s.transition(defs.SessionStateClosing)

	if s.sub != nil {
		s.streamRef().Unsubscribe(s.sub)
	}
	if s.enc != nil {
		s.enc.Close()
	}
	if s.pc != nil {
		s.pc.Close()
	}
	if st := s.streamRef(); st != nil {
		s.relay.Release(st)
		s.setStream(nil)
	}

	s.transition(defs.SessionStateClosed)
	s.parent.removeSession(s)

	s.Log(logger.Info, "closed: %v", err)
}

func (s *session) runInner() error {
	// the stream is acquired as part of the Created -> Negotiating
	// transition: a session whose source cannot be opened never
	// becomes visible to the status endpoints
	stream, err := s.relay.Acquire(s.identity)
	if err != nil {
		s.answer(newSessionRes{err: err})
		return err
	}
	s.setStream(stream)
	s.transition(defs.SessionStateNegotiating)

	pc := newTransport(s.iceServers, s.handshakeTimeout, s)

	err = pc.Start()
	if err != nil {
		s.answer(newSessionRes{err: err})
		return err
	}
	s.pc = pc

	answer, err := pc.CreateFullAnswer(&pwebrtc.SessionDescription{
		Type: pwebrtc.SDPTypeOffer,
		SDP:  s.offer,
	})
	if err != nil {
		s.answer(newSessionRes{err: err})
		return err
	}

	s.answer(newSessionRes{
		clientID:         s.id,
		answer:           answer,
		detectionEnabled: stream.DetectionEnabled(),
	})

	err = pc.WaitUntilConnected()
	if err != nil {
		return err
	}

	s.transition(defs.SessionStateConnected)
	s.Log(logger.Info, "streaming %s", s.identity)

	info := stream.Info()
	enc, err := newFrameEncoder(info.Width, info.Height, info.FPS, s.onSample, s)
	if err != nil {
		return err
	}
	s.enc = enc

	s.sub = stream.Subscribe(true)

	for {
		select {
		case frame := <-s.sub.Frames():
			err = enc.WriteFrame(frame)
			if err != nil {
				return err
			}

		case <-pc.Failed():
			return fmt.Errorf("peer connection closed")

		case <-s.ctx.Done():
			return fmt.Errorf("terminated")
		}
	}
}
