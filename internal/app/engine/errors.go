package engine

import "errors"

var (
	ErrDuplicateTrack       = errors.New("engine: track with this cid is already pending")
	ErrTrackPublishTimeout  = errors.New("engine: track publish timed out")
	ErrNegotiation          = errors.New("engine: negotiation failed")
	ErrUnknownCorrelationID = errors.New("engine: unknown correlation id")
	ErrEngineClosed         = errors.New("engine: closed")
	ErrAlreadyJoined        = errors.New("engine: already joined")
	ErrNotJoined            = errors.New("engine: not joined")
)
