// Package domain contains entity without logic, just meta-data
package domain

import "github.com/livekit/protocol/livekit"

type (
	ParticipantSID string
	TrackSID       string
	TrackCID       string
)

// Participant is the client-side view of a room member as reported by the server.
type Participant struct {
	SID      ParticipantSID `json:"sid"`
	Identity string         `json:"identity"`
	Name     string         `json:"name,omitempty"`
	State    string         `json:"state"`
	Tracks   []Track        `json:"tracks"`
}

// Track is a published track of a participant.
type Track struct {
	SID    TrackSID `json:"sid"`
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Muted  bool     `json:"muted"`
	Width  uint32   `json:"width,omitempty"`
	Height uint32   `json:"height,omitempty"`
}

// NewParticipant converts the wire representation; nil in, nil out.
func NewParticipant(info *livekit.ParticipantInfo) *Participant {
	if info == nil {
		return nil
	}
	p := &Participant{
		SID:      ParticipantSID(info.GetSid()),
		Identity: info.GetIdentity(),
		Name:     info.GetName(),
		State:    info.GetState().String(),
		Tracks:   make([]Track, 0, len(info.GetTracks())),
	}
	for _, t := range info.GetTracks() {
		p.Tracks = append(p.Tracks, NewTrack(t))
	}
	return p
}

func NewTrack(info *livekit.TrackInfo) Track {
	return Track{
		SID:    TrackSID(info.GetSid()),
		Name:   info.GetName(),
		Kind:   info.GetType().String(),
		Muted:  info.GetMuted(),
		Width:  info.GetWidth(),
		Height: info.GetHeight(),
	}
}

// Disconnected reports whether the server marked the participant as gone.
func (p *Participant) Disconnected() bool {
	return p.State == livekit.ParticipantInfo_DISCONNECTED.String()
}
