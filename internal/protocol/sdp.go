package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

func ToProtoSessionDescription(sd webrtc.SessionDescription) *livekit.SessionDescription {
	return &livekit.SessionDescription{
		Type: sd.Type.String(),
		Sdp:  sd.SDP,
	}
}

func FromProtoSessionDescription(sd *livekit.SessionDescription) (webrtc.SessionDescription, error) {
	if sd == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: missing session description", ErrProtocol)
	}
	var t webrtc.SDPType
	switch sd.GetType() {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	case "pranswer":
		t = webrtc.SDPTypePranswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: invalid sdp type %q", ErrProtocol, sd.GetType())
	}
	return webrtc.SessionDescription{Type: t, SDP: sd.GetSdp()}, nil
}

// MarshalCandidate renders the candidate init as the JSON object carried in trickle messages.
func MarshalCandidate(c webrtc.ICECandidateInit) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalCandidate(s string) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: bad candidate init: %v", ErrProtocol, err)
	}
	return c, nil
}
