// Package engine drives offer/answer negotiation and ICE trickling for one session
// with the media relay, on top of a signal client and two peer sessions.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/VoiceClient/internal/app"
	"github.com/dkeye/VoiceClient/internal/app/media"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PrivateDataChannel is the label of the reliable channel opened on the publisher.
const PrivateDataChannel = "_private"

var _ core.SignalHandler = (*Engine)(nil)

type JoinOptions struct {
	// Secure selects wss:// for urls given without a scheme.
	Secure        bool
	AutoSubscribe bool
}

type Engine struct {
	opts     Options
	signal   core.SignalClient
	factory  core.PeerFactory
	listener Listener
	log      zerolog.Logger
	events   *jobQueue
	roster   *app.Roster
	relays   *media.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	joined       bool
	active       bool
	closed       bool
	url          string
	token        string
	join         *livekit.JoinResponse
	room         *livekit.Room
	publisher    *peer
	subscriber   *peer
	privateDC    *webrtc.DataChannel
	reconnecting bool
	lostAgain    bool

	candMu  sync.Mutex
	candBuf []localCandidate
	flushed bool

	pubMu   sync.Mutex
	pending map[string]*pendingPublish

	closeOnce sync.Once
}

func New(signal core.SignalClient, factory core.PeerFactory, listener Listener, opts Options) *Engine {
	if listener == nil {
		listener = NopListener{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:     opts.withDefaults(),
		signal:   signal,
		factory:  factory,
		listener: listener,
		log:      log.With().Str("module", "engine").Logger(),
		events:   newJobQueue(),
		roster:   app.NewRoster(),
		relays:   media.NewRelayManager(),
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pendingPublish),
	}
	e.events.start()
	signal.SetHandler(e)
	return e
}

// Join connects the signal client, builds both peer sessions and starts the first negotiation.
func (e *Engine) Join(ctx context.Context, url, token string, jo JoinOptions) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.joined {
		e.mu.Unlock()
		return ErrAlreadyJoined
	}
	e.joined = true
	// Handler events that race the join response queue up until the sessions exist.
	pub := newPeer(livekit.SignalTarget_PUBLISHER, nil, e.signal, e.log)
	sub := newPeer(livekit.SignalTarget_SUBSCRIBER, nil, e.signal, e.log)
	e.publisher, e.subscriber = pub, sub
	e.mu.Unlock()

	full := resolveURL(url, jo.Secure)
	join, err := e.signal.Connect(ctx, full, token, &core.ConnectOptions{AutoSubscribe: jo.AutoSubscribe})
	if err != nil {
		e.mu.Lock()
		e.joined = false
		e.publisher, e.subscriber = nil, nil
		e.mu.Unlock()
		return err
	}

	ice := iceServersFrom(join)
	if len(ice) == 0 {
		ice = e.opts.ICEServers
	}
	pubSession, err := e.newSession(livekit.SignalTarget_PUBLISHER, ice)
	if err != nil {
		e.closeWith("publisher setup failed", false)
		return fmt.Errorf("create publisher: %w", err)
	}
	subSession, err := e.newSession(livekit.SignalTarget_SUBSCRIBER, ice)
	if err != nil {
		pubSession.Close()
		e.closeWith("subscriber setup failed", false)
		return fmt.Errorf("create subscriber: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		pubSession.Close()
		subSession.Close()
		return ErrEngineClosed
	}
	pub.session, sub.session = pubSession, subSession
	e.url, e.token = full, token
	e.join = join
	e.room = join.GetRoom()
	e.active = true
	pub.queue.start()
	sub.queue.start()
	e.mu.Unlock()

	e.roster.SetLocal(join.GetParticipant())
	e.roster.Update(join.GetOtherParticipants())

	pub.queue.push(func() {
		dc, err := pub.session.CreateDataChannel(PrivateDataChannel)
		if err != nil {
			e.log.Error().Err(err).Msg("create data channel")
			return
		}
		e.mu.Lock()
		e.privateDC = dc
		e.mu.Unlock()
	})
	pub.negotiate(false)

	e.log.Info().
		Str("room", join.GetRoom().GetName()).
		Str("participant", join.GetParticipant().GetIdentity()).
		Int("ice_servers", len(ice)).
		Msg("joined, negotiating")
	return nil
}

func (e *Engine) newSession(target livekit.SignalTarget, ice []webrtc.ICEServer) (core.PeerSession, error) {
	s, err := e.factory(core.PeerConfig{Target: target, ICEServers: ice})
	if err != nil {
		return nil, err
	}
	s.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		e.onLocalCandidate(ci, target)
	})
	s.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		if st == webrtc.ICEConnectionStateConnected || st == webrtc.ICEConnectionStateCompleted {
			e.onConnected(target)
		}
	})
	if target == livekit.SignalTarget_SUBSCRIBER {
		s.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			e.startRelay(ctx, track.ID(), track.Kind().String(), track)
		})
		s.OnDataChannel(func(dc *webrtc.DataChannel) {
			label := dc.Label()
			e.emit(func(l Listener) { l.OnDataChannel(label) })
		})
	}
	return s, nil
}

func (e *Engine) onConnected(target livekit.SignalTarget) {
	e.flushLocalCandidates()

	e.mu.Lock()
	join := e.join
	e.join = nil
	e.mu.Unlock()
	if join != nil {
		e.log.Info().Str("target", target.String()).Msg("media connected")
		e.emit(func(l Listener) { l.OnJoined(join) })
	}
}

func (e *Engine) startRelay(ctx context.Context, trackID, kind string, src media.RTPReader) {
	e.relays.StartRelay(ctx, trackID, kind, src)
	e.emit(func(l Listener) { l.OnTrackSubscribed(trackID, kind) })
}

func (e *Engine) emit(fn func(Listener)) {
	e.events.push(func() { fn(e.listener) })
}

// ready returns the joined peers or the reason they are unusable.
func (e *Engine) ready() (*peer, *peer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, ErrEngineClosed
	}
	if !e.active {
		return nil, nil, ErrNotJoined
	}
	return e.publisher, e.subscriber, nil
}

// Negotiate requests a new publisher offer, e.g. after tracks were added.
func (e *Engine) Negotiate() error {
	pub, _, err := e.ready()
	if err != nil {
		return err
	}
	pub.negotiate(false)
	return nil
}

func (e *Engine) UpdateMuteStatus(sid string, muted bool) error {
	if _, _, err := e.ready(); err != nil {
		return err
	}
	e.roster.SetTrackMuted(sid, muted)
	return e.signal.SendMuteTrack(sid, muted)
}

func (e *Engine) UpdateTrackSettings(sid string, disabled bool, quality livekit.VideoQuality) error {
	if _, _, err := e.ready(); err != nil {
		return err
	}
	return e.signal.SendUpdateTrackSettings(sid, disabled, quality)
}

func (e *Engine) UpdateSubscription(sid string, subscribe bool) error {
	if _, _, err := e.ready(); err != nil {
		return err
	}
	return e.signal.SendUpdateSubscription(sid, subscribe)
}

// AttachSink forwards packets of a subscribed remote track to w.
func (e *Engine) AttachSink(trackID, sinkID string, w media.RTPWriter) error {
	return e.relays.AddSink(trackID, sinkID, w)
}

func (e *Engine) DetachSink(trackID, sinkID string) {
	e.relays.RemoveSink(trackID, sinkID)
}

func (e *Engine) RelayStats() []media.RelayStats {
	return e.relays.Stats()
}

func (e *Engine) Participants() []domain.Participant {
	return e.roster.Snapshot()
}

type Status struct {
	Connection string              `json:"connection"`
	Joined     bool                `json:"joined"`
	Closed     bool                `json:"closed"`
	Room       string              `json:"room,omitempty"`
	Publisher  string              `json:"publisher,omitempty"`
	Subscriber string              `json:"subscriber,omitempty"`
	DataChan   string              `json:"data_channel,omitempty"`
	Local      *domain.Participant `json:"local,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Connection: e.signal.State().String(),
		Joined:     e.active,
		Closed:     e.closed,
		Room:       e.room.GetName(),
	}
	pub, sub := e.publisher, e.subscriber
	if e.privateDC != nil {
		st.DataChan = e.privateDC.ReadyState().String()
	}
	e.mu.Unlock()
	if pub != nil {
		st.Publisher = pub.negotiationState().String()
	}
	if sub != nil {
		st.Subscriber = sub.negotiationState().String()
	}
	if local, ok := e.roster.Local(); ok {
		st.Local = &local
	}
	return st
}

// Close leaves the room, releases both sessions and fails pending publishes. It is idempotent.
func (e *Engine) Close() {
	e.closeWith("client closed", true)
}

// Done is closed once Close has delivered the remaining listener events,
// OnDisconnected included. Close does not wait for it, so a listener may close
// the engine from its own callback.
func (e *Engine) Done() <-chan struct{} {
	return e.events.done
}

func (e *Engine) closeWith(reason string, sendLeave bool) {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		active := e.active
		pub, sub := e.publisher, e.subscriber
		e.join = nil
		e.mu.Unlock()

		e.cancel()
		if sendLeave && active {
			if err := e.signal.SendLeave(); err != nil {
				e.log.Debug().Err(err).Msg("leave not sent")
			}
		}
		e.signal.Close()
		for _, p := range []*peer{pub, sub} {
			if p == nil {
				continue
			}
			if p.session != nil {
				p.close()
			} else {
				p.queue.stop()
			}
		}
		e.relays.Close()
		e.failPending(ErrEngineClosed)

		if active {
			e.emit(func(l Listener) { l.OnDisconnected(reason) })
		}
		e.events.drain()
		e.log.Info().Str("reason", reason).Msg("engine closed")
	})
}

func resolveURL(raw string, secure bool) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	if secure {
		return "wss://" + raw
	}
	return "ws://" + raw
}

func iceServersFrom(join *livekit.JoinResponse) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(join.GetIceServers()))
	for _, s := range join.GetIceServers() {
		if len(s.GetUrls()) == 0 {
			continue
		}
		out = append(out, webrtc.ICEServer{
			URLs:       s.GetUrls(),
			Username:   s.GetUsername(),
			Credential: s.GetCredential(),
		})
	}
	return out
}
