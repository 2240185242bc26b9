package core

import (
	"context"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

// ConnectOptions are appended to the signal url query when present.
type ConnectOptions struct {
	AutoSubscribe bool
	Reconnect     bool
}

type TrackDimensions struct {
	Width  uint32
	Height uint32
}

// SignalClient abstracts the signaling connection to the media relay.
// Send methods never queue: while not connected the request is dropped.
type SignalClient interface {
	SetHandler(SignalHandler)
	Connect(ctx context.Context, url, token string, opts *ConnectOptions) (*livekit.JoinResponse, error)
	Reconnect(ctx context.Context, url, token string) error
	State() domain.ConnectionState

	SendOffer(webrtc.SessionDescription) error
	SendAnswer(webrtc.SessionDescription) error
	SendCandidate(webrtc.ICECandidateInit, livekit.SignalTarget) error
	SendAddTrack(cid, name string, kind livekit.TrackType, dims *TrackDimensions) error
	SendMuteTrack(sid string, muted bool) error
	SendUpdateTrackSettings(sid string, disabled bool, quality livekit.VideoQuality) error
	SendUpdateSubscription(sid string, subscribe bool) error
	SendLeave() error

	Close()
}

// SignalHandler receives inbound server messages once the client is connected.
// Implementations must not block.
type SignalHandler interface {
	OnAnswer(webrtc.SessionDescription)
	OnOffer(webrtc.SessionDescription)
	OnTrickle(webrtc.ICECandidateInit, livekit.SignalTarget)
	OnParticipantUpdate([]*livekit.ParticipantInfo)
	OnLocalTrackPublished(*livekit.TrackPublishedResponse)
	OnSpeakersChanged([]*livekit.SpeakerInfo)
	OnRemoteMuteChanged(trackSID string, muted bool)
	OnRoomUpdate(*livekit.Room)
	OnLeave()
	OnClose(reason string, code int)
	OnError(error)
}
