// Package rtc contains the streaming session server.
package rtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pwebrtc "github.com/pion/webrtc/v4"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/encoder"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/relay"
)

// ErrSessionNotFound is returned when a client id is unknown.
var ErrSessionNotFound = fmt.Errorf("session not found")

type newSessionRes struct {
	clientID         string
	answer           *pwebrtc.SessionDescription
	detectionEnabled bool
	err              error
}

type newSessionReq struct {
	clientID string
	offer    string
	identity defs.StreamIdentity
	res      chan newSessionRes
}

type stopSessionReq struct {
	clientID string
	res      chan bool
}

type getSessionReq struct {
	clientID string
	res      chan *session
}

type apiSessionsListReq struct {
	res chan defs.APISessionList
}

type detectionsListReq struct {
	res chan []defs.DetectionEntry
}

// Server manages streaming sessions. Registry mutations happen
// inside a single goroutine.
type Server struct {
	Address          string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	AllowOrigin      string
	ICEServers       []pwebrtc.ICEServer
	HandshakeTimeout time.Duration
	Relay            *relay.Registry
	DefaultIdentity  defs.StreamIdentity
	DetectorLoaded   bool
	Parent           logger.Writer

	ctx        context.Context
	ctxCancel  func()
	wg         sync.WaitGroup
	httpServer *httpServer
	sessions   map[string]*session
	still      encoder.StillEncoder

	chNewSession      chan newSessionReq
	chRemoveSession   chan *session
	chStopSession     chan stopSessionReq
	chGetSession      chan getSessionReq
	chAPISessionsList chan apiSessionsListReq
	chDetectionsList  chan detectionsListReq
}

// Initialize initializes the server.
func (s *Server) Initialize() error {
	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.sessions = make(map[string]*session)
	s.still = &encoder.JPEG{}

	s.chNewSession = make(chan newSessionReq)
	s.chRemoveSession = make(chan *session)
	s.chStopSession = make(chan stopSessionReq)
	s.chGetSession = make(chan getSessionReq)
	s.chAPISessionsList = make(chan apiSessionsListReq)
	s.chDetectionsList = make(chan detectionsListReq)

	s.httpServer = &httpServer{
		address:      s.Address,
		readTimeout:  s.ReadTimeout,
		writeTimeout: s.WriteTimeout,
		allowOrigin:  s.AllowOrigin,
		parent:       s,
	}
	err := s.httpServer.initialize()
	if err != nil {
		s.ctxCancel()
		return err
	}

	s.wg.Add(1)
	go s.run()

	s.Log(logger.Info, "listener opened on %s", s.Address)

	return nil
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[RTC] "+format, args...)
}

// Close closes the server and waits for every session to return.
func (s *Server) Close() {
	s.Log(logger.Info, "listener is closing")
	s.ctxCancel()
	s.wg.Wait()
	s.httpServer.close()
}

func (s *Server) run() {
	defer s.wg.Done()

outer:
	for {
		select {
		case req := <-s.chNewSession:
			s.doNewSession(req)

		case sx := <-s.chRemoveSession:
			// the same session may report twice
			if s.sessions[sx.id] == sx {
				delete(s.sessions, sx.id)
			}

		case req := <-s.chStopSession:
			sx, ok := s.sessions[req.clientID]
			if ok {
				sx.close()
			}
			req.res <- ok

		case req := <-s.chGetSession:
			req.res <- s.sessions[req.clientID]

		case req := <-s.chAPISessionsList:
			list := defs.APISessionList{
				Sessions: []defs.APISession{},
			}
			for _, sx := range s.sessions {
				// sessions whose stream was never acquired
				// must not be listed
				if sx.streamRef() == nil {
					continue
				}
				list.Sessions = append(list.Sessions, sx.apiItem())
			}
			list.Count = len(list.Sessions)
			req.res <- list

		case req := <-s.chDetectionsList:
			entries := []defs.DetectionEntry{}
			for _, sx := range s.sessions {
				if sx.currentState() != defs.SessionStateConnected {
					continue
				}
				summary := sx.summary()
				if summary == nil {
					continue
				}
				entries = append(entries, defs.DetectionEntry{
					ClientID: sx.id,
					Summary:  summary,
				})
			}
			req.res <- entries

		case <-s.ctx.Done():
			break outer
		}
	}
}

func (s *Server) doNewSession(req newSessionReq) {
	id := req.clientID
	if id == "" {
		id = uuid.NewString()
	}

	// a taken client id gets a numeric suffix
	if _, ok := s.sessions[id]; ok {
		base := id
		for i := 1; ; i++ {
			id = fmt.Sprintf("%s-%d", base, i)
			if _, ok2 := s.sessions[id]; !ok2 {
				break
			}
		}
	}

	sx := &session{
		id:               id,
		offer:            req.offer,
		identity:         req.identity,
		iceServers:       s.ICEServers,
		handshakeTimeout: s.HandshakeTimeout,
		relay:            s.Relay,
		res:              req.res,
		parent:           s,
	}
	sx.initialize()
	s.sessions[id] = sx
}

// newSession creates a session and waits for the negotiation answer.
func (s *Server) newSession(req newSessionReq) newSessionRes {
	req.res = make(chan newSessionRes)

	select {
	case s.chNewSession <- req:
		return <-req.res

	case <-s.ctx.Done():
		return newSessionRes{err: fmt.Errorf("terminated")}
	}
}

// removeSession is called by sessions when they terminate.
func (s *Server) removeSession(sx *session) {
	select {
	case s.chRemoveSession <- sx:
	case <-s.ctx.Done():
	}
}

// stopSession closes the session with the given client id.
// It reports whether the session existed.
func (s *Server) stopSession(clientID string) bool {
	req := stopSessionReq{
		clientID: clientID,
		res:      make(chan bool),
	}

	select {
	case s.chStopSession <- req:
		return <-req.res

	case <-s.ctx.Done():
		return false
	}
}

func (s *Server) getSession(clientID string) *session {
	req := getSessionReq{
		clientID: clientID,
		res:      make(chan *session),
	}

	select {
	case s.chGetSession <- req:
		return <-req.res

	case <-s.ctx.Done():
		return nil
	}
}

// APISessionsList returns every active session.
func (s *Server) APISessionsList() defs.APISessionList {
	req := apiSessionsListReq{
		res: make(chan defs.APISessionList),
	}

	select {
	case s.chAPISessionsList <- req:
		return <-req.res

	case <-s.ctx.Done():
		return defs.APISessionList{Sessions: []defs.APISession{}}
	}
}

// DetectionsList returns the latest summary of every connected
// session, for the observer broadcaster.
func (s *Server) DetectionsList() []defs.DetectionEntry {
	req := detectionsListReq{
		res: make(chan []defs.DetectionEntry),
	}

	select {
	case s.chDetectionsList <- req:
		return <-req.res

	case <-s.ctx.Done():
		return nil
	}
}
