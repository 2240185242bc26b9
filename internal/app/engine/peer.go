package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// peer wraps one peer session with its serial queue and negotiation state.
// Fields below the queue are owned by the queue goroutine.
type peer struct {
	target  livekit.SignalTarget
	session core.PeerSession
	signal  core.SignalClient
	queue   *jobQueue
	log     zerolog.Logger

	flagMu        sync.Mutex
	queued        bool
	restartWanted bool

	state         domain.NegotiationState
	retry         bool
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit

	// published copy of state for readers outside the queue
	current atomic.Int32
}

func newPeer(target livekit.SignalTarget, session core.PeerSession, signal core.SignalClient, l zerolog.Logger) *peer {
	return &peer{
		target:  target,
		session: session,
		signal:  signal,
		queue:   newJobQueue(),
		log:     l.With().Str("target", target.String()).Logger(),
	}
}

func (p *peer) setState(s domain.NegotiationState) {
	p.state = s
	p.current.Store(int32(s))
}

func (p *peer) negotiationState() domain.NegotiationState {
	return domain.NegotiationState(p.current.Load())
}

// negotiate asks for a new offer. Triggers arriving while one is queued coalesce into it.
func (p *peer) negotiate(iceRestart bool) {
	p.flagMu.Lock()
	if iceRestart {
		p.restartWanted = true
	}
	if p.queued {
		p.flagMu.Unlock()
		p.log.Debug().Msg("negotiation coalesced")
		return
	}
	p.queued = true
	p.flagMu.Unlock()

	if !p.queue.push(p.runNegotiation) {
		p.flagMu.Lock()
		p.queued = false
		p.flagMu.Unlock()
	}
}

func (p *peer) runNegotiation() {
	p.flagMu.Lock()
	p.queued = false
	restart := p.restartWanted
	if p.state == domain.NegotiationAwaitingAnswer && !restart {
		p.flagMu.Unlock()
		p.retry = true
		p.log.Debug().Msg("negotiation deferred until answer")
		return
	}
	p.restartWanted = false
	p.flagMu.Unlock()

	if p.state == domain.NegotiationAwaitingAnswer {
		// The answer to the outstanding offer may have been lost with the
		// connection; the restart offer replaces it.
		p.retry = false
		p.log.Info().Msg("outstanding offer superseded by ice restart")
	}

	p.setState(domain.NegotiationCreatingOffer)
	offer, err := p.session.CreateOffer(core.OfferConstraints{ICERestart: restart})
	if err != nil {
		p.fail("create offer", err)
		return
	}
	p.setState(domain.NegotiationSettingLocalDescription)
	if err := p.session.SetLocalDescription(offer); err != nil {
		p.fail("set local description", err)
		return
	}
	p.setState(domain.NegotiationAwaitingAnswer)
	if err := p.signal.SendOffer(offer); err != nil {
		p.fail("send offer", err)
		return
	}
	p.log.Info().Bool("ice_restart", restart).Msg("offer sent")
}

// fail abandons the attempt; there is no automatic retry.
func (p *peer) fail(step string, err error) {
	p.retry = false
	p.setState(domain.NegotiationIdle)
	p.log.Error().Err(fmt.Errorf("%w: %s: %w", ErrNegotiation, step, err)).Msg("negotiation abandoned")
}

func (p *peer) applyAnswer(sd webrtc.SessionDescription) {
	if p.state != domain.NegotiationAwaitingAnswer {
		p.log.Warn().Str("state", p.state.String()).Msg("answer without outstanding offer")
	}
	if err := p.session.SetRemoteDescription(sd); err != nil {
		p.fail("set remote answer", err)
		return
	}
	p.remoteApplied()
	p.setState(domain.NegotiationIdle)
	if p.retry {
		p.retry = false
		p.negotiate(false)
	}
}

func (p *peer) applyOffer(sd webrtc.SessionDescription) {
	if err := p.session.SetRemoteDescription(sd); err != nil {
		p.log.Error().Err(fmt.Errorf("%w: set remote offer: %w", ErrNegotiation, err)).Msg("offer dropped")
		return
	}
	p.remoteApplied()
	answer, err := p.session.CreateAnswer()
	if err != nil {
		p.log.Error().Err(fmt.Errorf("%w: create answer: %w", ErrNegotiation, err)).Msg("offer dropped")
		return
	}
	if err := p.session.SetLocalDescription(answer); err != nil {
		p.log.Error().Err(fmt.Errorf("%w: set local answer: %w", ErrNegotiation, err)).Msg("offer dropped")
		return
	}
	if err := p.signal.SendAnswer(answer); err != nil {
		p.log.Warn().Err(err).Msg("answer not sent")
		return
	}
	p.log.Info().Msg("answer sent")
}

// addRemoteCandidate buffers until a remote description exists.
func (p *peer) addRemoteCandidate(ci webrtc.ICECandidateInit) {
	if !p.remoteSet {
		p.pendingRemote = append(p.pendingRemote, ci)
		return
	}
	if err := p.session.AddICECandidate(ci); err != nil {
		p.log.Warn().Err(err).Msg("add remote candidate")
	}
}

func (p *peer) remoteApplied() {
	p.remoteSet = true
	pending := p.pendingRemote
	p.pendingRemote = nil
	for _, ci := range pending {
		if err := p.session.AddICECandidate(ci); err != nil {
			p.log.Warn().Err(err).Msg("add buffered remote candidate")
		}
	}
	if len(pending) > 0 {
		p.log.Debug().Int("count", len(pending)).Msg("applied buffered remote candidates")
	}
}

func (p *peer) close() {
	p.queue.stop()
	p.session.Close()
}
