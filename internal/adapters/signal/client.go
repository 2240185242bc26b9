// Package signal is the websocket client of the relay signaling protocol.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.SignalClient = (*Client)(nil)

// attempt is one unresolved connect or reconnect.
type attempt struct {
	cancel context.CancelCauseFunc
	fresh  bool
	join   chan *livekit.JoinResponse
}

type Client struct {
	opts  Options
	codec protocol.Codec
	log   zerolog.Logger

	mu            sync.Mutex
	handler       core.SignalHandler
	state         domain.ConnectionState
	conn          *wsConn
	attempt       *attempt
	autoSubscribe bool
	closed        bool
}

func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		opts:          opts,
		codec:         protocol.NewCodec(opts.Encoding),
		log:           log.With().Str("module", "signal").Logger(),
		handler:       nopHandler{},
		state:         domain.Disconnected,
		autoSubscribe: true,
	}
}

func (c *Client) SetHandler(h core.SignalHandler) {
	if h == nil {
		h = nopHandler{}
	}
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the signal connection and waits for the join response.
// With opts.Reconnect set it behaves like Reconnect and returns a nil join.
func (c *Client) Connect(ctx context.Context, url, token string, opts *core.ConnectOptions) (*livekit.JoinResponse, error) {
	fresh := opts == nil || !opts.Reconnect
	return c.open(ctx, url, token, opts, fresh)
}

// Reconnect reopens the connection with reconnect=1 and resolves once the socket is open.
func (c *Client) Reconnect(ctx context.Context, url, token string) error {
	c.mu.Lock()
	opts := &core.ConnectOptions{AutoSubscribe: c.autoSubscribe, Reconnect: true}
	c.mu.Unlock()
	_, err := c.open(ctx, url, token, opts, false)
	return err
}

func (c *Client) open(ctx context.Context, base, token string, opts *core.ConnectOptions, fresh bool) (*livekit.JoinResponse, error) {
	rtcURL, err := buildURL(base, token, opts, c.opts.SDK, c.opts.Version)
	if err != nil {
		return nil, err
	}

	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	a := &attempt{cancel: cancel, fresh: fresh, join: make(chan *livekit.JoinResponse, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	prev, old := c.attempt, c.conn
	c.attempt, c.conn = a, nil
	if opts != nil {
		c.autoSubscribe = opts.AutoSubscribe
	}
	if fresh {
		c.state = domain.Connecting
	} else {
		c.state = domain.Reconnecting
	}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrConnectCanceled)
	}
	if old != nil {
		old.Close()
	}

	c.log.Info().Bool("fresh", fresh).Str("url", base).Msg("connecting")

	dctx, dcancel := context.WithTimeout(actx, c.opts.ConnectTimeout)
	ws, resp, err := c.opts.Dialer.DialContext(dctx, rtcURL, nil)
	dcancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if cerr := c.attemptErr(actx); cerr != nil {
			c.abandon(a, nil)
			return nil, cerr
		}
		c.log.Warn().Err(err).Msg("dial failed")
		ce := c.validate(actx, rtcURL, err)
		c.abandon(a, nil)
		return nil, ce
	}

	conn := newWSConn(ws, rtcURL, c.opts.SendBuffer, c.opts.WriteTimeout, c.log)

	c.mu.Lock()
	if c.attempt != a {
		c.mu.Unlock()
		conn.Close()
		if cerr := c.attemptErr(actx); cerr != nil {
			return nil, cerr
		}
		return nil, ErrConnectCanceled
	}
	c.conn = conn
	if !fresh {
		c.attempt = nil
		c.state = domain.Connected
	}
	c.mu.Unlock()

	go conn.writePump()
	go conn.readPump(c.handleFrame, c.handleReadError)

	if !fresh {
		c.log.Info().Msg("reconnected")
		return nil, nil
	}

	timer := time.NewTimer(c.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case join := <-a.join:
		c.log.Info().
			Str("room", join.GetRoom().GetName()).
			Str("participant", join.GetParticipant().GetIdentity()).
			Msg("joined")
		return join, nil
	case <-actx.Done():
		c.abandon(a, conn)
		return nil, c.attemptErr(actx)
	case <-timer.C:
		if c.abandon(a, conn) {
			return nil, &ConnectionError{Reason: "no join response", Err: ErrJoinTimeout}
		}
		select {
		case join := <-a.join:
			return join, nil
		default:
			return nil, c.attemptErr(actx)
		}
	}
}

// attemptErr translates the cancellation cause of an attempt context.
func (c *Client) attemptErr(actx context.Context) error {
	if actx.Err() == nil {
		return nil
	}
	cause := context.Cause(actx)
	var ce *ConnectionError
	switch {
	case errors.Is(cause, ErrConnectCanceled), errors.Is(cause, ErrClosed):
		return cause
	case errors.As(cause, &ce):
		return ce
	case cause != nil:
		return fmt.Errorf("signal connect: %w", cause)
	default:
		return ErrConnectCanceled
	}
}

// abandon drops attempt a if it is still current. It reports whether it did.
func (c *Client) abandon(a *attempt, conn *wsConn) bool {
	c.mu.Lock()
	if c.attempt != a {
		c.mu.Unlock()
		return false
	}
	c.attempt = nil
	if conn != nil && c.conn == conn {
		c.conn = nil
	}
	if !c.closed {
		c.state = domain.Disconnected
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return true
}

func (c *Client) handleFrame(conn *wsConn, f protocol.Frame) {
	resp, err := protocol.DecodeResponse(f)
	if err != nil {
		c.log.Warn().Err(err).Msg("drop inbound frame")
		return
	}
	kind := protocol.ResponseKind(resp)

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if a := c.attempt; a != nil && a.fresh && c.state == domain.Connecting {
		if kind != protocol.KindJoin {
			c.mu.Unlock()
			c.log.Warn().Str("kind", string(kind)).Msg("ignored message before join")
			return
		}
		c.attempt = nil
		c.state = domain.Connected
		c.mu.Unlock()
		a.join <- resp.GetJoin()
		return
	}
	h := c.handler
	c.mu.Unlock()

	c.dispatch(h, kind, resp)
}

func (c *Client) handleReadError(conn *wsConn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	a := c.attempt
	c.attempt = nil
	if !c.closed {
		c.state = domain.Disconnected
	}
	h := c.handler
	c.mu.Unlock()

	if a != nil {
		a.cancel(&ConnectionError{Reason: "connection lost before join", Err: err})
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		c.log.Info().Int("code", ce.Code).Str("reason", ce.Text).Msg("server closed connection")
		h.OnClose(ce.Text, ce.Code)
		return
	}

	c.log.Warn().Err(err).Msg("connection lost")
	go func() {
		h.OnError(c.validate(context.Background(), conn.url, err))
	}()
}

// Close is idempotent. Pending attempts fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = domain.Closed
	a, conn := c.attempt, c.conn
	c.attempt, c.conn = nil, nil
	c.mu.Unlock()

	if a != nil {
		a.cancel(ErrClosed)
	}
	if conn != nil {
		conn.closeNormal()
		conn.Close()
	}
	c.log.Info().Msg("closed")
}
