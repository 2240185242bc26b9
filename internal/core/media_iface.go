package core

import (
	"context"

	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

// OfferConstraints select which media directions an offer solicits.
type OfferConstraints struct {
	ReceiveAudio bool
	ReceiveVideo bool
	ICERestart   bool
}

// PeerConfig is what the engine knows when it creates a peer session.
type PeerConfig struct {
	Target     livekit.SignalTarget
	ICEServers []webrtc.ICEServer
}

// PeerSession is the capability set the engine needs from the media engine.
// Every method may be called from the engine's per-session queue only,
// callbacks may fire on any goroutine.
type PeerSession interface {
	CreateOffer(OfferConstraints) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (*webrtc.DataChannel, error)

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	OnDataChannel(func(*webrtc.DataChannel))

	// Close should stop all underlying media resources.
	Close()
}

// PeerFactory builds one peer session per signal target.
type PeerFactory func(cfg PeerConfig) (PeerSession, error)
