package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog/log"
)

// Roster mirrors the participant list reported by the server.
type Roster struct {
	mu       sync.RWMutex
	local    *domain.Participant
	remote   map[domain.ParticipantSID]*domain.Participant
	speakers map[domain.ParticipantSID]float32
}

func NewRoster() *Roster {
	return &Roster{
		remote:   make(map[domain.ParticipantSID]*domain.Participant),
		speakers: make(map[domain.ParticipantSID]float32),
	}
}

func (r *Roster) SetLocal(info *livekit.ParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = domain.NewParticipant(info)
	log.Info().Str("module", "app.roster").Str("sid", info.GetSid()).Str("identity", info.GetIdentity()).Msg("local participant")
}

func (r *Roster) Local() (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local == nil {
		return domain.Participant{}, false
	}
	cp := *r.local
	cp.Tracks = slices.Clone(r.local.Tracks)
	return cp, true
}

// Update upserts by sid and drops participants reported as disconnected.
// Updates about the local participant refresh it instead. It returns the sids
// of remote tracks that are gone, either with their participant or unpublished.
func (r *Roster) Update(infos []*livekit.ParticipantInfo) []domain.TrackSID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []domain.TrackSID
	for _, info := range infos {
		p := domain.NewParticipant(info)
		if p == nil || p.SID == "" {
			continue
		}
		if r.local != nil && r.local.SID == p.SID {
			r.local = p
			continue
		}
		prev, known := r.remote[p.SID]
		if p.Disconnected() {
			if known {
				gone = append(gone, trackSIDs(prev.Tracks)...)
			}
			delete(r.remote, p.SID)
			delete(r.speakers, p.SID)
			log.Info().Str("module", "app.roster").Str("sid", string(p.SID)).Msg("participant left")
			continue
		}
		if !known {
			log.Info().Str("module", "app.roster").Str("sid", string(p.SID)).Str("identity", p.Identity).Msg("participant joined")
		} else {
			current := trackSIDs(p.Tracks)
			for _, sid := range trackSIDs(prev.Tracks) {
				if !slices.Contains(current, sid) {
					gone = append(gone, sid)
				}
			}
		}
		r.remote[p.SID] = p
	}
	return gone
}

func trackSIDs(tracks []domain.Track) []domain.TrackSID {
	out := make([]domain.TrackSID, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.SID)
	}
	return out
}

// SetSpeakers applies a speakers-changed delta; inactive speakers are removed.
func (r *Roster) SetSpeakers(speakers []*livekit.SpeakerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range speakers {
		sid := domain.ParticipantSID(s.GetSid())
		if s.GetActive() {
			r.speakers[sid] = s.GetLevel()
		} else {
			delete(r.speakers, sid)
		}
	}
}

func (r *Roster) Speaking(sid domain.ParticipantSID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.speakers[sid]
	return ok
}

// SetTrackMuted updates the muted flag of the track wherever it is published.
func (r *Roster) SetTrackMuted(trackSID string, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*domain.Participant, 0, len(r.remote)+1)
	if r.local != nil {
		all = append(all, r.local)
	}
	for _, p := range r.remote {
		all = append(all, p)
	}
	for _, p := range all {
		for i := range p.Tracks {
			if string(p.Tracks[i].SID) == trackSID {
				p.Tracks[i].Muted = muted
				return true
			}
		}
	}
	return false
}

// Snapshot returns remote participants ordered by identity.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.remote))
	for _, p := range r.remote {
		cp := *p
		cp.Tracks = slices.Clone(p.Tracks)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		if c := strings.Compare(a.Identity, b.Identity); c != 0 {
			return c
		}
		return strings.Compare(string(a.SID), string(b.SID))
	})
	return out
}
