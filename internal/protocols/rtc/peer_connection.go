// Package rtc contains WebRTC utilities.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/streamsight/streamsight/internal/logger"
)

// PeerConnection is a send-only wrapper around webrtc.PeerConnection.
type PeerConnection struct {
	ICEServers       []webrtc.ICEServer
	HandshakeTimeout time.Duration
	OutgoingTracks   []*OutgoingTrack
	Log              logger.Writer

	wr        *webrtc.PeerConnection
	ctx       context.Context
	ctxCancel context.CancelFunc

	connected     chan struct{}
	failed        chan struct{}
	closed        chan struct{}
	gatheringDone chan struct{}
	done          chan struct{}
}

// Start starts the peer connection.
func (co *PeerConnection) Start() error {
	audioSetupped := false
	for _, tr := range co.OutgoingTracks {
		if !tr.isVideo() {
			audioSetupped = true
		}
	}

	// when audio is not used, a track has to be present anyway,
	// otherwise video is not displayed on Firefox and Chrome.
	if !audioSetupped {
		co.OutgoingTracks = append(co.OutgoingTracks, &OutgoingTrack{
			Caps: webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypePCMU,
				ClockRate: 8000,
			},
		})
	}

	mediaEngine := &webrtc.MediaEngine{}

	for i, tr := range co.OutgoingTracks {
		var codecType webrtc.RTPCodecType
		if tr.isVideo() {
			codecType = webrtc.RTPCodecTypeVideo
		} else {
			codecType = webrtc.RTPCodecTypeAudio
		}

		err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: tr.Caps,
			PayloadType:        webrtc.PayloadType(96 + i),
		}, codecType)
		if err != nil {
			return err
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	var err error
	co.wr, err = api.NewPeerConnection(webrtc.Configuration{
		ICEServers: co.ICEServers,
	})
	if err != nil {
		return err
	}

	co.ctx, co.ctxCancel = context.WithCancel(context.Background())
	co.connected = make(chan struct{})
	co.failed = make(chan struct{})
	co.closed = make(chan struct{})
	co.gatheringDone = make(chan struct{})
	co.done = make(chan struct{})

	for _, tr := range co.OutgoingTracks {
		err = tr.setup(co)
		if err != nil {
			co.wr.GracefulClose() //nolint:errcheck
			return err
		}
	}

	var stateChangeMutex sync.Mutex

	co.wr.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		stateChangeMutex.Lock()
		defer stateChangeMutex.Unlock()

		select {
		case <-co.closed:
			return
		default:
		}

		co.Log.Log(logger.Debug, "peer connection state: "+state.String())

		switch state {
		case webrtc.PeerConnectionStateConnected:
			// "connected" can arrive twice, since the state can
			// switch from "disconnected" back to "connected";
			// emit it once.
			select {
			case <-co.connected:
				return
			default:
			}

			close(co.connected)

		case webrtc.PeerConnectionStateFailed:
			close(co.failed)

		case webrtc.PeerConnectionStateClosed:
			// "closed" can arrive before "failed" and without
			// Close() being called at all, when the other peer
			// sends a termination message like a DTLS CloseNotify.
			select {
			case <-co.failed:
			default:
				close(co.failed)
			}

			close(co.closed)
		}
	})

	co.wr.OnICECandidate(func(i *webrtc.ICECandidate) {
		if i == nil {
			close(co.gatheringDone)
		}
	})

	go co.run()

	return nil
}

// Close closes the connection.
func (co *PeerConnection) Close() {
	co.ctxCancel()
	<-co.done
}

func (co *PeerConnection) run() {
	defer close(co.done)

	<-co.ctx.Done()

	co.wr.GracefulClose() //nolint:errcheck

	// wait for OnConnectionStateChange to return, since it is
	// executed in an uncontrolled goroutine.
	<-co.closed
}

// CreateFullAnswer sets the remote offer and returns a complete
// answer, with candidate gathering already finished.
func (co *PeerConnection) CreateFullAnswer(offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	err := co.wr.SetRemoteDescription(*offer)
	if err != nil {
		return nil, err
	}

	tmp, err := co.wr.CreateAnswer(nil)
	if err != nil {
		if errors.Is(err, webrtc.ErrSenderWithNoCodecs) {
			return nil, fmt.Errorf("codecs not supported by client")
		}
		return nil, err
	}
	answer := &tmp

	err = co.wr.SetLocalDescription(*answer)
	if err != nil {
		return nil, err
	}

	select {
	case <-co.gatheringDone:
	case <-co.ctx.Done():
		return nil, fmt.Errorf("terminated")
	}

	return co.wr.LocalDescription(), nil
}

// WaitUntilConnected waits until the connection is established.
func (co *PeerConnection) WaitUntilConnected() error {
	t := time.NewTimer(co.HandshakeTimeout)
	defer t.Stop()

	select {
	case <-t.C:
		return fmt.Errorf("deadline exceeded while waiting connection")

	case <-co.connected:
		return nil

	case <-co.ctx.Done():
		return fmt.Errorf("terminated")
	}
}

// Connected returns when connected.
func (co *PeerConnection) Connected() <-chan struct{} {
	return co.connected
}

// Failed returns when the connection is failed or closed by the peer.
func (co *PeerConnection) Failed() <-chan struct{} {
	return co.failed
}
