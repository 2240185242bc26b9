package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/livekit/protocol/livekit"
)

type publishResult struct {
	track *livekit.TrackInfo
	err   error
}

// pendingPublish is a single-use result handle.
type pendingPublish struct {
	ch   chan publishResult
	once sync.Once
}

func newPendingPublish() *pendingPublish {
	return &pendingPublish{ch: make(chan publishResult, 1)}
}

func (p *pendingPublish) resolve(r publishResult) {
	p.once.Do(func() { p.ch <- r })
}

// AddTrack announces a local track and waits for the server to publish it.
// The pending entry exists before the request leaves, so a fast response cannot be lost.
func (e *Engine) AddTrack(ctx context.Context, cid, name string, kind livekit.TrackType, dims *core.TrackDimensions) (*livekit.TrackInfo, error) {
	if _, _, err := e.ready(); err != nil {
		return nil, err
	}

	p := newPendingPublish()
	e.pubMu.Lock()
	if e.pending == nil {
		e.pubMu.Unlock()
		return nil, ErrEngineClosed
	}
	if _, ok := e.pending[cid]; ok {
		e.pubMu.Unlock()
		return nil, ErrDuplicateTrack
	}
	e.pending[cid] = p
	e.pubMu.Unlock()

	if err := e.signal.SendAddTrack(cid, name, kind, dims); err != nil {
		e.removePending(cid, p)
		return nil, err
	}
	e.log.Info().Str("cid", cid).Str("name", name).Str("kind", kind.String()).Msg("add track requested")

	timer := time.NewTimer(e.opts.PublishTimeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		return r.track, r.err
	case <-timer.C:
	case <-ctx.Done():
	}
	e.removePending(cid, p)
	// resolution may have won the race against the timer
	select {
	case r := <-p.ch:
		return r.track, r.err
	default:
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, ErrTrackPublishTimeout
}

func (e *Engine) removePending(cid string, p *pendingPublish) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	if e.pending[cid] == p {
		delete(e.pending, cid)
	}
}

func (e *Engine) resolvePublish(resp *livekit.TrackPublishedResponse) {
	cid := resp.GetCid()
	e.pubMu.Lock()
	p, ok := e.pending[cid]
	if ok {
		delete(e.pending, cid)
	}
	e.pubMu.Unlock()

	if !ok {
		e.log.Warn().Err(ErrUnknownCorrelationID).Str("cid", cid).Msg("track published event dropped")
		return
	}
	track := resp.GetTrack()
	p.resolve(publishResult{track: track})
	e.emit(func(l Listener) { l.OnLocalTrackPublished(cid, track) })
	e.log.Info().Str("cid", cid).Str("sid", resp.GetTrack().GetSid()).Msg("track published")
}

// failPending resolves every waiter with err; later AddTrack calls are refused.
func (e *Engine) failPending(err error) {
	e.pubMu.Lock()
	pending := e.pending
	e.pending = nil
	e.pubMu.Unlock()
	for _, p := range pending {
		p.resolve(publishResult{err: err})
	}
}
