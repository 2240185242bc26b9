package media

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type Relay struct {
	TrackID string
	Kind    string
	Src     RTPReader

	mu    sync.RWMutex
	sinks map[string]*Sink
	muted bool

	packets atomic.Uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRelay(trackID, kind string, src RTPReader, cancel context.CancelFunc) *Relay {
	return &Relay{
		TrackID: trackID,
		Kind:    kind,
		Src:     src,
		sinks:   make(map[string]*Sink),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all sinks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all sinks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
		r.packets.Add(1)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for id, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, id)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.w.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", id).Msg("relay write RTP error, marking sink as delete")
				s.MarkDelete()
				dirty = append(dirty, id)
				continue
			}
			s.written.Add(1)
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if s, ok := r.sinks[id]; ok && s.State() == SinkStateDelete {
			delete(r.sinks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		s.MarkDelete()
	}
}

// AddSink attaches w under id, replacing a previous sink with the same id.
// A sink added to a muted relay starts muted.
func (r *Relay) AddSink(id string, w RTPWriter) *Sink {
	s := NewSink(w)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.muted {
		s.MarkMuted()
	}
	if old, ok := r.sinks[id]; ok {
		old.MarkDelete()
	}
	r.sinks[id] = s
	return s
}

func (r *Relay) RemoveSink(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sinks[id]; ok {
		s.MarkDelete()
		delete(r.sinks, id)
	}
}

func (r *Relay) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
	for _, s := range r.sinks {
		if muted {
			s.MarkMuted()
		} else {
			s.MarkOk()
		}
	}
}

type RelayStats struct {
	TrackID string            `json:"track_id"`
	Kind    string            `json:"kind"`
	Muted   bool              `json:"muted"`
	Packets uint64            `json:"packets"`
	Sinks   map[string]uint64 `json:"sinks"`
}

func (r *Relay) Stats() RelayStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := RelayStats{
		TrackID: r.TrackID,
		Kind:    r.Kind,
		Muted:   r.muted,
		Packets: r.packets.Load(),
		Sinks:   make(map[string]uint64, len(r.sinks)),
	}
	for id, s := range r.sinks {
		st.Sinks[id] = s.Written()
	}
	return st
}

// Done is closed when the read loop exits.
func (r *Relay) Done() <-chan struct{} { return r.done }
