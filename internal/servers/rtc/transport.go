package rtc

import (
	"time"

	pwebrtc "github.com/pion/webrtc/v4"

	"github.com/streamsight/streamsight/internal/logger"
	prtc "github.com/streamsight/streamsight/internal/protocols/rtc"
)

// Transport performs the negotiation and carries media to the
// peer. It is kept narrow so that sessions can be tested
// without a network.
type Transport interface {
	Start() error
	CreateFullAnswer(offer *pwebrtc.SessionDescription) (*pwebrtc.SessionDescription, error)
	WaitUntilConnected() error
	Failed() <-chan struct{}
	WriteVideoSample(data []byte, duration time.Duration) error
	Close()
}

// newTransport creates the Transport of a session; overridden in tests.
var newTransport = func(iceServers []pwebrtc.ICEServer, handshakeTimeout time.Duration,
	log logger.Writer,
) Transport {
	videoTrack := &prtc.OutgoingTrack{
		Caps: pwebrtc.RTPCodecCapability{
			MimeType:  pwebrtc.MimeTypeH264,
			ClockRate: 90000,
		},
	}

	return &pionTransport{
		pc: &prtc.PeerConnection{
			ICEServers:       iceServers,
			HandshakeTimeout: handshakeTimeout,
			OutgoingTracks:   []*prtc.OutgoingTrack{videoTrack},
			Log:              log,
		},
		videoTrack: videoTrack,
	}
}

type pionTransport struct {
	pc         *prtc.PeerConnection
	videoTrack *prtc.OutgoingTrack
}

func (t *pionTransport) Start() error {
	return t.pc.Start()
}

func (t *pionTransport) CreateFullAnswer(offer *pwebrtc.SessionDescription) (*pwebrtc.SessionDescription, error) {
	return t.pc.CreateFullAnswer(offer)
}

func (t *pionTransport) WaitUntilConnected() error {
	return t.pc.WaitUntilConnected()
}

func (t *pionTransport) Failed() <-chan struct{} {
	return t.pc.Failed()
}

func (t *pionTransport) WriteVideoSample(data []byte, duration time.Duration) error {
	return t.videoTrack.WriteSample(data, duration)
}

func (t *pionTransport) Close() {
	t.pc.Close()
}
