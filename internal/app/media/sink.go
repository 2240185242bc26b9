// Package media fans inbound subscriber RTP out to local consumers.
package media

import (
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// RTPReader is satisfied by *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// RTPWriter is any local consumer of packets, e.g. *webrtc.TrackLocalStaticRTP or a recorder.
type RTPWriter interface {
	WriteRTP(*rtp.Packet) error
}

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

func (s SinkState) String() string {
	switch s {
	case SinkStateOk:
		return "ok"
	case SinkStateMuted:
		return "muted"
	case SinkStateDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Sink is one attached consumer of a relay.
type Sink struct {
	w       RTPWriter
	state   atomic.Int32 // Zero by default (SinkStateOk)
	written atomic.Uint64
}

func NewSink(w RTPWriter) *Sink {
	return &Sink{w: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkOk() {
	s.state.CompareAndSwap(int32(SinkStateMuted), int32(SinkStateOk))
}

func (s *Sink) MarkMuted() {
	s.state.CompareAndSwap(int32(SinkStateOk), int32(SinkStateMuted))
}

func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}

func (s *Sink) Written() uint64 { return s.written.Load() }
