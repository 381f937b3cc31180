package rtc

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const (
	trackStreamID = "streamsight"
)

// OutgoingTrack is a track sent to the peer.
type OutgoingTrack struct {
	Caps webrtc.RTPCodecCapability

	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
}

func (t *OutgoingTrack) isVideo() bool {
	return strings.HasPrefix(t.Caps.MimeType, "video/")
}

func (t *OutgoingTrack) setup(pc *PeerConnection) error {
	var err error
	t.track, err = webrtc.NewTrackLocalStaticSample(t.Caps, uuid.NewString(), trackStreamID)
	if err != nil {
		return err
	}

	t.sender, err = pc.wr.AddTrack(t.track)
	if err != nil {
		return err
	}

	// incoming RTCP packets must be consumed
	go func() {
		buf := make([]byte, 1500)
		for {
			_, _, err2 := t.sender.Read(buf)
			if err2 != nil {
				return
			}
		}
	}()

	return nil
}

// WriteSample sends an encoded sample to the peer.
func (t *OutgoingTrack) WriteSample(data []byte, duration time.Duration) error {
	return t.track.WriteSample(media.Sample{
		Data:     data,
		Duration: duration,
	})
}
