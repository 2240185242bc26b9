package signal

import (
	"net/http"
	"time"

	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	ProtocolVersion = 2
	SDKName         = "go"
	SDKVersion      = "0.3.0"
)

type Options struct {
	Encoding        protocol.Encoding
	SDK             string
	Version         string
	ConnectTimeout  time.Duration
	JoinTimeout     time.Duration
	ValidateTimeout time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

func DefaultOptions() Options {
	return Options{
		Encoding:        protocol.JSON,
		SDK:             SDKName,
		Version:         SDKVersion,
		ConnectTimeout:  10 * time.Second,
		JoinTimeout:     10 * time.Second,
		ValidateTimeout: 5 * time.Second,
		WriteTimeout:    5 * time.Second,
		SendBuffer:      32,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SDK == "" {
		o.SDK = d.SDK
	}
	if o.Version == "" {
		o.Version = d.Version
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = d.JoinTimeout
	}
	if o.ValidateTimeout <= 0 {
		o.ValidateTimeout = d.ValidateTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}
