package engine

import (
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

// The methods below implement core.SignalHandler. They run on the signal read
// goroutine and only hand work to queues.

func (e *Engine) peerFor(target livekit.SignalTarget) *peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if target == livekit.SignalTarget_SUBSCRIBER {
		return e.subscriber
	}
	return e.publisher
}

func (e *Engine) OnAnswer(sd webrtc.SessionDescription) {
	p := e.peerFor(livekit.SignalTarget_PUBLISHER)
	if p == nil {
		e.log.Warn().Msg("answer without publisher")
		return
	}
	p.queue.push(func() { p.applyAnswer(sd) })
}

func (e *Engine) OnOffer(sd webrtc.SessionDescription) {
	p := e.peerFor(livekit.SignalTarget_SUBSCRIBER)
	if p == nil {
		e.log.Warn().Msg("offer without subscriber")
		return
	}
	p.queue.push(func() { p.applyOffer(sd) })
}

func (e *Engine) OnTrickle(ci webrtc.ICECandidateInit, target livekit.SignalTarget) {
	p := e.peerFor(target)
	if p == nil {
		e.log.Warn().Str("target", target.String()).Msg("trickle without session")
		return
	}
	p.queue.push(func() { p.addRemoteCandidate(ci) })
}

func (e *Engine) OnParticipantUpdate(infos []*livekit.ParticipantInfo) {
	for _, sid := range e.roster.Update(infos) {
		if e.relays.HasRelay(string(sid)) {
			e.relays.StopRelay(string(sid))
			e.log.Debug().Str("track", string(sid)).Msg("relay stopped, track gone")
		}
	}
	snap := e.roster.Snapshot()
	e.emit(func(l Listener) { l.OnParticipantsUpdated(snap) })
}

func (e *Engine) OnLocalTrackPublished(resp *livekit.TrackPublishedResponse) {
	e.resolvePublish(resp)
}

func (e *Engine) OnSpeakersChanged(speakers []*livekit.SpeakerInfo) {
	e.roster.SetSpeakers(speakers)
	e.emit(func(l Listener) { l.OnSpeakersChanged(speakers) })
}

func (e *Engine) OnRemoteMuteChanged(trackSID string, muted bool) {
	e.roster.SetTrackMuted(trackSID, muted)
	e.relays.SetMuted(trackSID, muted)
	e.emit(func(l Listener) { l.OnRemoteMuteChanged(trackSID, muted) })
}

func (e *Engine) OnRoomUpdate(room *livekit.Room) {
	e.mu.Lock()
	e.room = room
	e.mu.Unlock()
	e.log.Debug().Str("room", room.GetName()).Uint32("participants", room.GetNumParticipants()).Msg("room update")
}

func (e *Engine) OnLeave() {
	e.log.Info().Msg("server requested leave")
	e.closeWith("server leave", false)
}

func (e *Engine) OnClose(reason string, code int) {
	e.log.Info().Str("reason", reason).Int("code", code).Msg("signal closed by server")
	if reason == "" {
		reason = "signal closed"
	}
	e.closeWith(reason, false)
}
