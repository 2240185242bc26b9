package engine

import (
	"time"

	"github.com/pion/webrtc/v4"
)

type Options struct {
	// ICEServers are used when the join response carries none.
	ICEServers []webrtc.ICEServer

	PublishTimeout time.Duration

	// ReconnectTimeout bounds the whole reconnect loop.
	ReconnectTimeout         time.Duration
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
}

func DefaultOptions() Options {
	return Options{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
		},
		PublishTimeout:           10 * time.Second,
		ReconnectTimeout:         60 * time.Second,
		ReconnectInitialInterval: 500 * time.Millisecond,
		ReconnectMaxInterval:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.ICEServers) == 0 {
		o.ICEServers = d.ICEServers
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = d.PublishTimeout
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = d.ReconnectTimeout
	}
	if o.ReconnectInitialInterval <= 0 {
		o.ReconnectInitialInterval = d.ReconnectInitialInterval
	}
	if o.ReconnectMaxInterval <= 0 {
		o.ReconnectMaxInterval = d.ReconnectMaxInterval
	}
	return o
}
