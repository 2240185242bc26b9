package rtc

import (
	"fmt"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type FactoryOptions struct {
	// ICEPortMin and ICEPortMax bound the local UDP ports; zero leaves them ephemeral.
	ICEPortMin uint16
	ICEPortMax uint16
	LogLevel   zerolog.Level
}

// Factory builds peer sessions sharing one pion API.
type Factory struct {
	api *webrtc.API
}

func NewFactory(opts FactoryOptions) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = LoggerFactory{Base: log.Logger.Level(opts.LogLevel)}
	if opts.ICEPortMin != 0 || opts.ICEPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(opts.ICEPortMin, opts.ICEPortMax); err != nil {
			return nil, fmt.Errorf("ice port range: %w", err)
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api}, nil
}

// NewPeer satisfies core.PeerFactory.
func (f *Factory) NewPeer(cfg core.PeerConfig) (core.PeerSession, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return nil, err
	}
	return newSession(pc, cfg.Target), nil
}
