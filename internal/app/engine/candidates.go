package engine

import (
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

type localCandidate struct {
	init   webrtc.ICECandidateInit
	target livekit.SignalTarget
}

// onLocalCandidate buffers until the first connected transition, then sends directly.
// Both paths hold candMu so a late candidate cannot overtake the flush.
func (e *Engine) onLocalCandidate(ci webrtc.ICECandidateInit, target livekit.SignalTarget) {
	e.candMu.Lock()
	defer e.candMu.Unlock()
	if !e.flushed {
		e.candBuf = append(e.candBuf, localCandidate{init: ci, target: target})
		return
	}
	e.sendCandidate(ci, target)
}

// flushLocalCandidates runs once per engine; the buffer is never used again.
func (e *Engine) flushLocalCandidates() {
	e.candMu.Lock()
	defer e.candMu.Unlock()
	if e.flushed {
		return
	}
	e.flushed = true
	buf := e.candBuf
	e.candBuf = nil
	for _, c := range buf {
		e.sendCandidate(c.init, c.target)
	}
	e.log.Info().Int("count", len(buf)).Msg("flushed local candidates")
}

func (e *Engine) sendCandidate(ci webrtc.ICECandidateInit, target livekit.SignalTarget) {
	if err := e.signal.SendCandidate(ci, target); err != nil {
		e.log.Warn().Err(err).Str("target", target.String()).Msg("local candidate dropped")
	}
}
