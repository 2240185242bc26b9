package engine

import (
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
)

// Listener receives engine events on a single goroutine, in order.
// It may call back into the engine.
type Listener interface {
	// OnJoined fires once, when media connectivity is first established.
	OnJoined(join *livekit.JoinResponse)
	OnParticipantsUpdated(participants []domain.Participant)
	OnSpeakersChanged(speakers []*livekit.SpeakerInfo)
	OnRemoteMuteChanged(trackSID string, muted bool)
	// OnLocalTrackPublished fires when the server confirms a track added with AddTrack.
	OnLocalTrackPublished(cid string, track *livekit.TrackInfo)
	OnTrackSubscribed(trackID, kind string)
	OnDataChannel(label string)
	OnDisconnected(reason string)
}

// NopListener can be embedded to implement only some callbacks.
type NopListener struct{}

func (NopListener) OnJoined(*livekit.JoinResponse) {}
func (NopListener) OnParticipantsUpdated([]domain.Participant) {}
func (NopListener) OnSpeakersChanged([]*livekit.SpeakerInfo) {}
func (NopListener) OnRemoteMuteChanged(string, bool) {}
func (NopListener) OnLocalTrackPublished(string, *livekit.TrackInfo) {}
func (NopListener) OnTrackSubscribed(string, string) {}
func (NopListener) OnDataChannel(string) {}
func (NopListener) OnDisconnected(string) {}
