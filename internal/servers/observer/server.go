// Package observer contains the detection broadcast server.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/protocols/httpp"
	"github.com/streamsight/streamsight/internal/protocols/ws"
)

const (
	defaultBroadcastInterval = 100 * time.Millisecond
)

// StatusSource provides the data pushed to observers.
type StatusSource interface {
	DetectionsList() []defs.DetectionEntry
	APISessionsList() defs.APISessionList
}

// Server pushes detection summaries to passive WebSocket
// observers at a fixed cadence.
type Server struct {
	Address           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	BroadcastInterval time.Duration
	Source            StatusSource
	Parent            logger.Writer

	ctx        context.Context
	ctxCancel  func()
	wg         sync.WaitGroup
	httpServer *httpp.Server
	conns      map[*conn]struct{}

	chAddConn    chan *conn
	chRemoveConn chan *conn
}

// Initialize initializes the server.
func (s *Server) Initialize() error {
	if s.BroadcastInterval == 0 {
		s.BroadcastInterval = defaultBroadcastInterval
	}

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())
	s.conns = make(map[*conn]struct{})
	s.chAddConn = make(chan *conn)
	s.chRemoveConn = make(chan *conn)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.GET("/ws/detection", s.onObserver)

	s.httpServer = &httpp.Server{
		Address:      s.Address,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		Handler:      router,
		Parent:       s,
	}
	err := s.httpServer.Initialize()
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
	s.Parent.Log(level, "[observer] "+format, args...)
}

// Close closes the server. Observers are detached before the
// streaming side is torn down.
func (s *Server) Close() {
	s.Log(logger.Info, "listener is closing")
	s.ctxCancel()
	s.wg.Wait()
	s.httpServer.Close()
}

func (s *Server) run() {
	defer s.wg.Done()

	t := time.NewTicker(s.BroadcastInterval)
	defer t.Stop()

	for {
		select {
		case c := <-s.chAddConn:
			s.conns[c] = struct{}{}

		case c := <-s.chRemoveConn:
			delete(s.conns, c)

		case <-t.C:
			entries := s.Source.DetectionsList()
			if len(entries) == 0 {
				continue
			}
			// writes are queued per observer: one stuck
			// observer cannot delay the others
			for c := range s.conns {
				c.broadcast(entries)
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) onObserver(ctx *gin.Context) {
	wc, err := ws.NewServerConn(ctx.Writer, ctx.Request)
	if err != nil {
		return
	}

	c := &conn{
		parent: s,
		wc:     wc,
	}
	c.initialize()
}

func (s *Server) addConn(c *conn) {
	select {
	case s.chAddConn <- c:
	case <-s.ctx.Done():
	}
}

func (s *Server) removeConn(c *conn) {
	select {
	case s.chRemoveConn <- c:
	case <-s.ctx.Done():
	}
}
