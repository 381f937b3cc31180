package rtc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	pwebrtc "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/streamsight/streamsight/internal/conf"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/relay"
	"github.com/streamsight/streamsight/internal/source"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

type fakeSource struct {
	inf source.Info
}

func (s *fakeSource) Info() source.Info {
	return s.inf
}

func (s *fakeSource) Next() *defs.Frame {
	return &defs.Frame{Width: 2, Height: 2, Data: make([]byte, 12)}
}

func (s *fakeSource) Close() {
}

func fakeOpenSource(identity defs.StreamIdentity, _ float64,
	_ logger.Writer,
) (source.Source, error) {
	if identity.VideoPath == "missing.mp4" {
		return nil, source.UnavailableError{Identity: identity, Cause: fmt.Errorf("no such file")}
	}
	return &fakeSource{inf: source.Info{Width: 2, Height: 2, FPS: 100}}, nil
}

type fakeTransport struct {
	failed    chan struct{}
	closeOnce sync.Once
}

func (t *fakeTransport) Start() error {
	return nil
}

func (t *fakeTransport) CreateFullAnswer(_ *pwebrtc.SessionDescription) (*pwebrtc.SessionDescription, error) {
	return &pwebrtc.SessionDescription{
		Type: pwebrtc.SDPTypeAnswer,
		SDP:  "v=0\r\n",
	}, nil
}

func (t *fakeTransport) WaitUntilConnected() error {
	return nil
}

func (t *fakeTransport) Failed() <-chan struct{} {
	return t.failed
}

func (t *fakeTransport) WriteVideoSample(_ []byte, _ time.Duration) error {
	return nil
}

func (t *fakeTransport) Close() {
	t.closeOnce.Do(func() {
		close(t.failed)
	})
}

type fakeEncoder struct{}

func (fakeEncoder) WriteFrame(_ *defs.Frame) error {
	return nil
}

func (fakeEncoder) Close() {
}

func installFakes(t *testing.T) {
	prevTransport := newTransport
	newTransport = func(_ []pwebrtc.ICEServer, _ time.Duration, _ logger.Writer) Transport {
		return &fakeTransport{failed: make(chan struct{})}
	}

	prevEncoder := newFrameEncoder
	newFrameEncoder = func(_ int, _ int, _ float64,
		_ func([]byte, time.Duration), _ logger.Writer,
	) (frameEncoder, error) {
		return fakeEncoder{}, nil
	}

	t.Cleanup(func() {
		newTransport = prevTransport
		newFrameEncoder = prevEncoder
	})
}

func newTestServer(t *testing.T) (*Server, string) {
	installFakes(t)

	registry := &relay.Registry{
		FallbackFrameRate: 30,
		OpenSource:        fakeOpenSource,
		Parent:            nilLogger{},
	}
	registry.Initialize()
	t.Cleanup(registry.Close)

	s := &Server{
		Address:          "127.0.0.1:0",
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		AllowOrigin:      "*",
		HandshakeTimeout: 2 * time.Second,
		Relay:            registry,
		DefaultIdentity: defs.StreamIdentity{
			Source:    conf.SourceFile,
			VideoPath: "a.mp4",
			Loop:      true,
		},
		Parent: nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s, "http://" + s.httpServer.inner.ListenerAddr().String()
}

func doPost(t *testing.T, url string, body interface{}) (int, map[string]interface{}) {
	byts, err := json.Marshal(body)
	require.NoError(t, err)

	res, err := http.Post(url, "application/json", bytes.NewReader(byts))
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(res.Body).Decode(&out) //nolint:errcheck
	return res.StatusCode, out
}

func doGet(t *testing.T, url string) (int, map[string]interface{}) {
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]interface{}
	json.NewDecoder(res.Body).Decode(&out) //nolint:errcheck
	return res.StatusCode, out
}

func offerBody(clientID string) map[string]interface{} {
	return map[string]interface{}{
		"sdp":       "v=0\r\n",
		"type":      "offer",
		"client_id": clientID,
	}
}

func TestServerOffer(t *testing.T) {
	_, base := newTestServer(t)

	code, out := doPost(t, base+"/offer", offerBody("abc"))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "success", out["status"])
	require.Equal(t, "answer", out["type"])
	require.Equal(t, "abc", out["client_id"])
	require.NotEmpty(t, out["sdp"])

	// no detector is loaded
	require.Equal(t, false, out["detection_enabled"])

	code, out = doGet(t, base+"/active-streams")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), out["count"])
}

func TestServerOfferClientIDCollision(t *testing.T) {
	_, base := newTestServer(t)

	_, out := doPost(t, base+"/offer", offerBody("abc"))
	require.Equal(t, "abc", out["client_id"])

	_, out = doPost(t, base+"/offer", offerBody("abc"))
	require.Equal(t, "abc-1", out["client_id"])

	_, out = doPost(t, base+"/offer", offerBody("abc"))
	require.Equal(t, "abc-2", out["client_id"])
}

func TestServerOfferSourceUnavailable(t *testing.T) {
	_, base := newTestServer(t)

	body := offerBody("abc")
	body["video_path"] = "missing.mp4"

	code, out := doPost(t, base+"/offer", body)
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, out["error"])

	// the failed session must never surface in the listing
	code, out = doGet(t, base+"/active-streams")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(0), out["count"])
}

func TestServerOfferInvalid(t *testing.T) {
	_, base := newTestServer(t)

	body := offerBody("abc")
	body["type"] = "answer"
	code, _ := doPost(t, base+"/offer", body)
	require.Equal(t, http.StatusBadRequest, code)

	body = offerBody("abc")
	body["source"] = "screen"
	code, _ = doPost(t, base+"/offer", body)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestServerStopStream(t *testing.T) {
	s, base := newTestServer(t)

	doPost(t, base+"/offer", offerBody("abc"))

	code, out := doPost(t, base+"/stop-stream?client_id=abc", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "stopped", out["status"])

	require.Eventually(t, func() bool {
		return s.APISessionsList().Count == 0
	}, 2*time.Second, 10*time.Millisecond)

	// removal is idempotent: stopping again reports not found
	code, out = doPost(t, base+"/stop-stream?client_id=abc", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not_found", out["status"])
}

func TestServerDetectionData(t *testing.T) {
	_, base := newTestServer(t)

	code, _ := doGet(t, base+"/detection-data/unknown")
	require.Equal(t, http.StatusNotFound, code)

	doPost(t, base+"/offer", offerBody("abc"))

	code, out := doGet(t, base+"/detection-data/abc")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "abc", out["client_id"])
}

func TestServerHealth(t *testing.T) {
	_, base := newTestServer(t)

	code, out := doGet(t, base+"/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "healthy", out["status"])
}

func TestServerSharedStream(t *testing.T) {
	s, base := newTestServer(t)

	doPost(t, base+"/offer", offerBody("a"))
	doPost(t, base+"/offer", offerBody("b"))

	require.Eventually(t, func() bool {
		list := s.APISessionsList()
		if list.Count != 2 {
			return false
		}
		for _, item := range list.Sessions {
			if item.State != "connected" {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// both sessions must point at the same shared source
	sxA := s.getSession("a")
	sxB := s.getSession("b")
	require.NotNil(t, sxA)
	require.NotNil(t, sxB)
	require.Same(t, sxA.streamRef(), sxB.streamRef())
}
