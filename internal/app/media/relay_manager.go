package media

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrNoRelay = errors.New("no relay for track")

type RelayManager struct {
	mu     sync.RWMutex
	relays map[string]*Relay
	closed bool
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[string]*Relay),
	}
}

// StartRelay creates a new Relay for the given remote track and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, trackID, kind string, src RTPReader) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("track_id", trackID).
		Str("kind", kind).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(trackID, kind, src, cancel)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		close(relay.done)
		return relay
	}
	if old, ok := m.relays[trackID]; ok {
		logger.Info().Msg("replacing existing relay for track")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[trackID] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go func() {
		relay.loop(relayCtx, &logger)
		m.forget(trackID, relay)
	}()
	return relay
}

func (m *RelayManager) forget(trackID string, r *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relays[trackID] == r {
		delete(m.relays, trackID)
	}
}

// AddSink attaches w to the relay of trackID.
func (m *RelayManager) AddSink(trackID, sinkID string, w RTPWriter) error {
	m.mu.RLock()
	relay, ok := m.relays[trackID]
	m.mu.RUnlock()
	if !ok {
		return ErrNoRelay
	}
	relay.AddSink(sinkID, w)
	return nil
}

func (m *RelayManager) RemoveSink(trackID, sinkID string) {
	m.mu.RLock()
	relay, ok := m.relays[trackID]
	m.mu.RUnlock()
	if ok {
		relay.RemoveSink(sinkID)
	}
}

// SetMuted mutes or unmutes every sink of the relay; it reports whether the relay exists.
func (m *RelayManager) SetMuted(trackID string, muted bool) bool {
	m.mu.RLock()
	relay, ok := m.relays[trackID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.SetMuted(muted)
	return true
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(trackID string) {
	m.mu.Lock()
	relay, ok := m.relays[trackID]
	if ok {
		delete(m.relays, trackID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	relay.cancel()
}

// HasRelay reports whether a relay exists for trackID.
func (m *RelayManager) HasRelay(trackID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[trackID]
	return ok
}

// Stats returns one entry per relay ordered by track id.
func (m *RelayManager) Stats() []RelayStats {
	m.mu.RLock()
	relays := make([]*Relay, 0, len(m.relays))
	for _, r := range m.relays {
		relays = append(relays, r)
	}
	m.mu.RUnlock()

	out := make([]RelayStats, 0, len(relays))
	for _, r := range relays {
		out = append(out, r.Stats())
	}
	slices.SortFunc(out, func(a, b RelayStats) int { return strings.Compare(a.TrackID, b.TrackID) })
	return out
}

// Close stops every relay; later StartRelay calls are no-ops.
func (m *RelayManager) Close() {
	m.mu.Lock()
	m.closed = true
	relays := m.relays
	m.relays = make(map[string]*Relay)
	m.mu.Unlock()
	for _, r := range relays {
		r.markAllDelete()
		r.cancel()
	}
}
