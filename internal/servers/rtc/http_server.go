package rtc

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamsight/streamsight/internal/conf"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/protocols/httpp"
	"github.com/streamsight/streamsight/internal/source"
)

func writeError(ctx *gin.Context, statusCode int, err error) {
	ctx.JSON(statusCode, defs.APIError{Error: err.Error()})
}

type offerReq struct {
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
	ClientID  string `json:"client_id"`
	Source    string `json:"source"`
	VideoPath string `json:"video_path"`
	CameraID  *int   `json:"camera_id"`
	LoopVideo *bool  `json:"loop_video"`
}

type httpServer struct {
	address      string
	readTimeout  time.Duration
	writeTimeout time.Duration
	allowOrigin  string
	parent       *Server

	inner *httpp.Server
}

func (s *httpServer) initialize() error {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.SetTrustedProxies(nil) //nolint:errcheck
	router.Use(s.mwOrigin)

	router.GET("/", s.onRoot)
	router.GET("/health", s.onHealth)
	router.POST("/offer", s.onOffer)
	router.POST("/stop-stream", s.onStopStream)
	router.GET("/active-streams", s.onActiveStreams)
	router.GET("/detection-data/:client_id", s.onDetectionData)
	router.GET("/feed/:client_id", s.onFeed)

	s.inner = &httpp.Server{
		Address:      s.address,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		Handler:      router,
		Parent:       s.parent,
	}
	return s.inner.Initialize()
}

func (s *httpServer) close() {
	s.inner.Close()
}

func (s *httpServer) mwOrigin(ctx *gin.Context) {
	ctx.Header("Access-Control-Allow-Origin", s.allowOrigin)
	ctx.Header("Access-Control-Allow-Credentials", "true")

	if ctx.Request.Method == http.MethodOptions {
		ctx.Header("Access-Control-Allow-Methods", "OPTIONS, GET, POST")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		ctx.AbortWithStatus(http.StatusNoContent)
	}
}

// identity merges the request parameters with the configured defaults.
func (s *httpServer) identity(req *offerReq) (defs.StreamIdentity, error) {
	identity := s.parent.DefaultIdentity

	if req.Source != "" {
		switch conf.SourceType(req.Source) {
		case conf.SourceFile, conf.SourceCamera:
			identity.Source = conf.SourceType(req.Source)
		default:
			return identity, fmt.Errorf("invalid source '%s'", req.Source)
		}
	}

	if req.VideoPath != "" {
		identity.VideoPath = req.VideoPath
	}
	if req.CameraID != nil {
		identity.CameraID = *req.CameraID
	}
	if req.LoopVideo != nil {
		identity.Loop = *req.LoopVideo
	}

	return identity, nil
}

func (s *httpServer) onOffer(ctx *gin.Context) {
	var req offerReq
	err := ctx.ShouldBindJSON(&req)
	if err != nil {
		writeError(ctx, http.StatusBadRequest, err)
		return
	}

	if req.Type != "offer" {
		writeError(ctx, http.StatusBadRequest, fmt.Errorf("invalid SDP type '%s'", req.Type))
		return
	}
	if req.SDP == "" {
		writeError(ctx, http.StatusBadRequest, fmt.Errorf("SDP is missing"))
		return
	}

	identity, err := s.identity(&req)
	if err != nil {
		writeError(ctx, http.StatusBadRequest, err)
		return
	}

	res := s.parent.newSession(newSessionReq{
		clientID: req.ClientID,
		offer:    req.SDP,
		identity: identity,
	})
	if res.err != nil {
		var unavErr source.UnavailableError
		if errors.As(res.err, &unavErr) {
			writeError(ctx, http.StatusNotFound, res.err)
		} else {
			writeError(ctx, http.StatusInternalServerError, res.err)
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"sdp":               res.answer.SDP,
		"type":              "answer",
		"client_id":         res.clientID,
		"status":            "success",
		"detection_enabled": res.detectionEnabled,
	})
}

func (s *httpServer) onStopStream(ctx *gin.Context) {
	clientID := ctx.Query("client_id")
	if clientID == "" {
		var req struct {
			ClientID string `json:"client_id"`
		}
		ctx.ShouldBindJSON(&req) //nolint:errcheck
		clientID = req.ClientID
	}
	if clientID == "" {
		writeError(ctx, http.StatusBadRequest, fmt.Errorf("client_id is missing"))
		return
	}

	if !s.parent.stopSession(clientID) {
		ctx.JSON(http.StatusNotFound, gin.H{
			"status":    "not_found",
			"client_id": clientID,
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":    "stopped",
		"client_id": clientID,
	})
}

func (s *httpServer) onActiveStreams(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.parent.APISessionsList())
}

func (s *httpServer) onDetectionData(ctx *gin.Context) {
	clientID := ctx.Param("client_id")

	sx := s.parent.getSession(clientID)
	if sx == nil {
		writeError(ctx, http.StatusNotFound, ErrSessionNotFound)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"client_id":         clientID,
		"detection_enabled": s.parent.DetectorLoaded,
		"data":              sx.summary(),
	})
}

func (s *httpServer) onHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"detector_loaded": s.parent.DetectorLoaded,
		"active_streams":  s.parent.APISessionsList().Count,
		"timestamp":       time.Now(),
	})
}

func (s *httpServer) onRoot(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"service": "streamsight",
		"status":  "running",
	})
}

func (s *httpServer) onFeed(ctx *gin.Context) {
	clientID := ctx.Param("client_id")

	sx := s.parent.getSession(clientID)
	if sx == nil {
		writeError(ctx, http.StatusNotFound, ErrSessionNotFound)
		return
	}

	st := sx.streamRef()
	if st == nil {
		writeError(ctx, http.StatusNotFound, fmt.Errorf("stream is not ready"))
		return
	}

	sub := st.Subscribe(true)
	defer st.Unsubscribe(sub)

	ctx.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	for {
		select {
		case frame := <-sub.Frames():
			jpeg, err := s.parent.still.Encode(frame)
			if err != nil {
				s.parent.Log(logger.Warn, "unable to encode frame: %v", err)
				return
			}

			_, err = fmt.Fprintf(ctx.Writer,
				"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg))
			if err != nil {
				return
			}
			_, err = ctx.Writer.Write(jpeg)
			if err != nil {
				return
			}
			ctx.Writer.Write([]byte("\r\n")) //nolint:errcheck
			ctx.Writer.Flush()

		case <-st.Done():
			return

		case <-ctx.Request.Context().Done():
			return
		}
	}
}
