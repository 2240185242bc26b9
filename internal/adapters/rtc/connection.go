package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.PeerSession = (*Session)(nil)

// Session is one pion PeerConnection acting as publisher or subscriber.
type Session struct {
	pc     *webrtc.PeerConnection
	target livekit.SignalTarget
	log    zerolog.Logger

	// canceled when ICE fails or the session closes; handed to OnTrack consumers
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	onICE         func(webrtc.ICECandidateInit)
	onICEState    func(webrtc.ICEConnectionState)
	onTrack       func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onDataChannel func(*webrtc.DataChannel)

	recvAudio *webrtc.RTPTransceiver
	recvVideo *webrtc.RTPTransceiver
}

func newSession(pc *webrtc.PeerConnection, target livekit.SignalTarget) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		pc:     pc,
		target: target,
		log:    log.With().Str("module", "webrtc").Str("target", target.String()).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		s.log.Info().Str("ice_state", st.String()).Msg("ICE state")
		if st == webrtc.ICEConnectionStateFailed || st == webrtc.ICEConnectionStateClosed {
			s.cancel()
		}
		s.mu.RLock()
		fn := s.onICEState
		s.mu.RUnlock()
		if fn != nil {
			fn(st)
		}
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.log.Info().Str("peer_connection_state", st.String()).Msg("Peer state")
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		s.mu.RLock()
		fn := s.onICE
		s.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		s.mu.RLock()
		fn := s.onTrack
		s.mu.RUnlock()
		if fn != nil {
			fn(s.ctx, track, receiver)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.log.Info().Str("label", dc.Label()).Msg("data channel")
		s.mu.RLock()
		fn := s.onDataChannel
		s.mu.RUnlock()
		if fn != nil {
			fn(dc)
		}
	})

	return s
}

// CreateOffer adds a recvonly transceiver for each requested kind once, then offers.
func (s *Session) CreateOffer(c core.OfferConstraints) (webrtc.SessionDescription, error) {
	if c.ReceiveAudio && s.recvAudio == nil {
		tr, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return webrtc.SessionDescription{}, err
		}
		s.recvAudio = tr
	}
	if c.ReceiveVideo && s.recvVideo == nil {
		tr, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return webrtc.SessionDescription{}, err
		}
		s.recvVideo = tr
	}
	offer, err := s.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: c.ICERestart})
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	s.log.Debug().Bool("ice_restart", c.ICERestart).Str("media", summarize(offer.SDP)).Msg("offer created")
	return offer, nil
}

func (s *Session) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	s.log.Debug().Str("media", summarize(answer.SDP)).Msg("answer created")
	return answer, nil
}

func (s *Session) SetLocalDescription(sd webrtc.SessionDescription) error {
	return s.pc.SetLocalDescription(sd)
}

func (s *Session) SetRemoteDescription(sd webrtc.SessionDescription) error {
	s.log.Debug().Str("type", sd.Type.String()).Str("media", summarize(sd.SDP)).Msg("remote description")
	return s.pc.SetRemoteDescription(sd)
}

func (s *Session) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return s.pc.AddICECandidate(ci)
}

func (s *Session) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	return s.pc.CreateDataChannel(label, nil)
}

func (s *Session) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	s.onICE = fn
	s.mu.Unlock()
}

func (s *Session) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	s.mu.Lock()
	s.onICEState = fn
	s.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (s *Session) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

func (s *Session) OnDataChannel(fn func(*webrtc.DataChannel)) {
	s.mu.Lock()
	s.onDataChannel = fn
	s.mu.Unlock()
}

func (s *Session) Close() {
	s.cancel()
	if err := s.pc.Close(); err != nil {
		s.log.Error().Err(err).Msg("close error")
		return
	}
	s.log.Info().Msg("closed")
}
