package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var errFakeNotConnected = errors.New("fake: not connected")

type sentCandidate struct {
	init   webrtc.ICECandidateInit
	target livekit.SignalTarget
}

type addTrackCall struct {
	cid, name string
	kind      livekit.TrackType
}

// fakeSignal records every request and lets tests drive the handler directly.
type fakeSignal struct {
	mu         sync.Mutex
	handler    core.SignalHandler
	join       *livekit.JoinResponse
	connectErr error
	connected  bool
	closed     bool
	connectURL string
	opts       *core.ConnectOptions

	reconnectErrs  []error
	reconnectCalls int

	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []sentCandidate
	addTracks  []addTrackCall
	mutes      map[string]bool
	leaves     int
}

func newFakeSignal(join *livekit.JoinResponse) *fakeSignal {
	return &fakeSignal{join: join, mutes: map[string]bool{}}
}

func (f *fakeSignal) SetHandler(h core.SignalHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeSignal) Connect(_ context.Context, url, _ string, opts *core.ConnectOptions) (*livekit.JoinResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectURL = url
	f.opts = opts
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connected = true
	return f.join, nil
}

func (f *fakeSignal) Reconnect(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnectCalls++
	if len(f.reconnectErrs) > 0 {
		err := f.reconnectErrs[0]
		if len(f.reconnectErrs) > 1 {
			f.reconnectErrs = f.reconnectErrs[1:]
		}
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeSignal) State() domain.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closed:
		return domain.Closed
	case f.connected:
		return domain.Connected
	default:
		return domain.Disconnected
	}
}

func (f *fakeSignal) record(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.closed {
		return errFakeNotConnected
	}
	fn()
	return nil
}

func (f *fakeSignal) SendOffer(sd webrtc.SessionDescription) error {
	return f.record(func() { f.offers = append(f.offers, sd) })
}

func (f *fakeSignal) SendAnswer(sd webrtc.SessionDescription) error {
	return f.record(func() { f.answers = append(f.answers, sd) })
}

func (f *fakeSignal) SendCandidate(ci webrtc.ICECandidateInit, target livekit.SignalTarget) error {
	return f.record(func() { f.candidates = append(f.candidates, sentCandidate{ci, target}) })
}

func (f *fakeSignal) SendAddTrack(cid, name string, kind livekit.TrackType, _ *core.TrackDimensions) error {
	return f.record(func() { f.addTracks = append(f.addTracks, addTrackCall{cid, name, kind}) })
}

func (f *fakeSignal) SendMuteTrack(sid string, muted bool) error {
	return f.record(func() { f.mutes[sid] = muted })
}

func (f *fakeSignal) SendUpdateTrackSettings(string, bool, livekit.VideoQuality) error {
	return f.record(func() {})
}

func (f *fakeSignal) SendUpdateSubscription(string, bool) error {
	return f.record(func() {})
}

func (f *fakeSignal) SendLeave() error {
	return f.record(func() { f.leaves++ })
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSignal) disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeSignal) offerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offers)
}

func (f *fakeSignal) sentCandidates() []sentCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCandidate(nil), f.candidates...)
}

func (f *fakeSignal) addTrackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addTracks)
}

// fakeSession is a scripted core.PeerSession.
type fakeSession struct {
	target livekit.SignalTarget
	cfg    core.PeerConfig

	// offerGate, when set, blocks CreateOffer until it receives.
	offerGate chan struct{}

	mu         sync.Mutex
	offers     []core.OfferConstraints
	locals     []webrtc.SessionDescription
	remotes    []webrtc.SessionDescription
	applied    []string
	channels   []string
	answers    int
	closed     bool
	onICE      func(webrtc.ICECandidateInit)
	onICEState func(webrtc.ICEConnectionState)
}

func (s *fakeSession) CreateOffer(c core.OfferConstraints) (webrtc.SessionDescription, error) {
	if s.offerGate != nil {
		<-s.offerGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, c)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", len(s.offers))}, nil
}

func (s *fakeSession) CreateAnswer() (webrtc.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", s.answers)}, nil
}

func (s *fakeSession) SetLocalDescription(sd webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locals = append(s.locals, sd)
	return nil
}

func (s *fakeSession) SetRemoteDescription(sd webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotes = append(s.remotes, sd)
	s.applied = append(s.applied, "remote:"+sd.SDP)
	return nil
}

func (s *fakeSession) AddICECandidate(ci webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, ci.Candidate)
	return nil
}

func (s *fakeSession) CreateDataChannel(label string) (*webrtc.DataChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, label)
	return nil, nil
}

func (s *fakeSession) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.mu.Lock()
	s.onICE = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	s.mu.Lock()
	s.onICEState = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (s *fakeSession) OnDataChannel(func(*webrtc.DataChannel)) {}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) gather(candidate string) {
	s.mu.Lock()
	fn := s.onICE
	s.mu.Unlock()
	fn(webrtc.ICECandidateInit{Candidate: candidate})
}

func (s *fakeSession) connect() {
	s.mu.Lock()
	fn := s.onICEState
	s.mu.Unlock()
	fn(webrtc.ICEConnectionStateConnected)
}

func (s *fakeSession) appliedSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.applied...)
}

func (s *fakeSession) offerConstraints() []core.OfferConstraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.OfferConstraints(nil), s.offers...)
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions map[livekit.SignalTarget]*fakeSession
	gate     chan struct{}
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sessions: map[livekit.SignalTarget]*fakeSession{}}
}

func (f *fakeFactory) New(cfg core.PeerConfig) (core.PeerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{target: cfg.Target, cfg: cfg}
	if cfg.Target == livekit.SignalTarget_PUBLISHER {
		s.offerGate = f.gate
	}
	f.sessions[cfg.Target] = s
	return s, nil
}

func (f *fakeFactory) publisher() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[livekit.SignalTarget_PUBLISHER]
}

func (f *fakeFactory) subscriber() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[livekit.SignalTarget_SUBSCRIBER]
}

type listenerEvent struct {
	name string
	arg  any
}

type recordingListener struct {
	events chan listenerEvent
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan listenerEvent, 64)}
}

func (l *recordingListener) OnJoined(j *livekit.JoinResponse) { l.events <- listenerEvent{"joined", j} }
func (l *recordingListener) OnParticipantsUpdated(p []domain.Participant) {
	l.events <- listenerEvent{"participants", p}
}
func (l *recordingListener) OnSpeakersChanged(s []*livekit.SpeakerInfo) {
	l.events <- listenerEvent{"speakers", s}
}
func (l *recordingListener) OnRemoteMuteChanged(sid string, muted bool) {
	l.events <- listenerEvent{"mute", [2]any{sid, muted}}
}
func (l *recordingListener) OnLocalTrackPublished(cid string, track *livekit.TrackInfo) {
	l.events <- listenerEvent{"published", [2]any{cid, track.GetSid()}}
}
func (l *recordingListener) OnTrackSubscribed(id, kind string) {
	l.events <- listenerEvent{"track", id}
}
func (l *recordingListener) OnDataChannel(label string) { l.events <- listenerEvent{"datachannel", label} }
func (l *recordingListener) OnDisconnected(reason string) {
	l.events <- listenerEvent{"disconnected", reason}
}

func (l *recordingListener) next(t *testing.T) listenerEvent {
	t.Helper()
	select {
	case ev := <-l.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no listener event")
		return listenerEvent{}
	}
}

func (l *recordingListener) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-l.events:
		t.Fatalf("unexpected listener event %s", ev.name)
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// blockingReader never yields a packet.
type blockingReader struct{}

func (blockingReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {}
}
