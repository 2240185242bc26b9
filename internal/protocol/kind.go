package protocol

import "github.com/livekit/protocol/livekit"

// Kind names the variant carried by a signal message.
type Kind string

const (
	KindNoop            Kind = "noop"
	KindJoin            Kind = "join"
	KindOffer           Kind = "offer"
	KindAnswer          Kind = "answer"
	KindTrickle         Kind = "trickle"
	KindUpdate          Kind = "update"
	KindTrackPublished  Kind = "track_published"
	KindSpeakersChanged Kind = "speakers_changed"
	KindLeave           Kind = "leave"
	KindMute            Kind = "mute"
	KindRoomUpdate      Kind = "room_update"
	KindAddTrack        Kind = "add_track"
	KindTrackSetting    Kind = "track_setting"
	KindSubscription    Kind = "subscription"
)

func ResponseKind(r *livekit.SignalResponse) Kind {
	switch r.GetMessage().(type) {
	case *livekit.SignalResponse_Join:
		return KindJoin
	case *livekit.SignalResponse_Answer:
		return KindAnswer
	case *livekit.SignalResponse_Offer:
		return KindOffer
	case *livekit.SignalResponse_Trickle:
		return KindTrickle
	case *livekit.SignalResponse_Update:
		return KindUpdate
	case *livekit.SignalResponse_TrackPublished:
		return KindTrackPublished
	case *livekit.SignalResponse_SpeakersChanged:
		return KindSpeakersChanged
	case *livekit.SignalResponse_Leave:
		return KindLeave
	case *livekit.SignalResponse_Mute:
		return KindMute
	case *livekit.SignalResponse_RoomUpdate:
		return KindRoomUpdate
	default:
		return KindNoop
	}
}

func RequestKind(r *livekit.SignalRequest) Kind {
	switch r.GetMessage().(type) {
	case *livekit.SignalRequest_Offer:
		return KindOffer
	case *livekit.SignalRequest_Answer:
		return KindAnswer
	case *livekit.SignalRequest_Trickle:
		return KindTrickle
	case *livekit.SignalRequest_AddTrack:
		return KindAddTrack
	case *livekit.SignalRequest_Mute:
		return KindMute
	case *livekit.SignalRequest_TrackSetting:
		return KindTrackSetting
	case *livekit.SignalRequest_Subscription:
		return KindSubscription
	case *livekit.SignalRequest_Leave:
		return KindLeave
	default:
		return KindNoop
	}
}
