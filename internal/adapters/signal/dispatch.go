package signal

import (
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

func (c *Client) dispatch(h core.SignalHandler, kind protocol.Kind, resp *livekit.SignalResponse) {
	switch m := resp.GetMessage().(type) {
	case *livekit.SignalResponse_Join:
		c.log.Warn().Msg("ignored join while connected")
	case *livekit.SignalResponse_Answer:
		sd, err := protocol.FromProtoSessionDescription(m.Answer)
		if err != nil {
			c.log.Warn().Err(err).Msg("drop answer")
			return
		}
		h.OnAnswer(sd)
	case *livekit.SignalResponse_Offer:
		sd, err := protocol.FromProtoSessionDescription(m.Offer)
		if err != nil {
			c.log.Warn().Err(err).Msg("drop offer")
			return
		}
		h.OnOffer(sd)
	case *livekit.SignalResponse_Trickle:
		ci, err := protocol.UnmarshalCandidate(m.Trickle.GetCandidateInit())
		if err != nil {
			c.log.Warn().Err(err).Msg("drop trickle")
			return
		}
		h.OnTrickle(ci, m.Trickle.GetTarget())
	case *livekit.SignalResponse_Update:
		h.OnParticipantUpdate(m.Update.GetParticipants())
	case *livekit.SignalResponse_TrackPublished:
		h.OnLocalTrackPublished(m.TrackPublished)
	case *livekit.SignalResponse_SpeakersChanged:
		h.OnSpeakersChanged(m.SpeakersChanged.GetSpeakers())
	case *livekit.SignalResponse_Leave:
		h.OnLeave()
	case *livekit.SignalResponse_Mute:
		h.OnRemoteMuteChanged(m.Mute.GetSid(), m.Mute.GetMuted())
	case *livekit.SignalResponse_RoomUpdate:
		h.OnRoomUpdate(m.RoomUpdate.GetRoom())
	default:
		c.log.Debug().Str("kind", string(kind)).Msg("noop message")
	}
}

type nopHandler struct{}

func (nopHandler) OnAnswer(webrtc.SessionDescription) {}
func (nopHandler) OnOffer(webrtc.SessionDescription) {}
func (nopHandler) OnTrickle(webrtc.ICECandidateInit, livekit.SignalTarget) {}
func (nopHandler) OnParticipantUpdate([]*livekit.ParticipantInfo) {}
func (nopHandler) OnLocalTrackPublished(*livekit.TrackPublishedResponse) {}
func (nopHandler) OnSpeakersChanged([]*livekit.SpeakerInfo) {}
func (nopHandler) OnRemoteMuteChanged(string, bool) {}
func (nopHandler) OnRoomUpdate(*livekit.Room) {}
func (nopHandler) OnLeave() {}
func (nopHandler) OnClose(string, int) {}
func (nopHandler) OnError(error) {}
