package signal

import (
	"sync"
	"time"

	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsConn owns one websocket. Writes go through send and a single writer goroutine.
type wsConn struct {
	ws      *websocket.Conn
	url     string
	send    chan protocol.Frame
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn, rtcURL string, buffer int, timeout time.Duration, l zerolog.Logger) *wsConn {
	return &wsConn{
		ws:      ws,
		url:     rtcURL,
		send:    make(chan protocol.Frame, buffer),
		timeout: timeout,
		log:     l,
	}
}

func (c *wsConn) TrySend(f protocol.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// closeNormal sends a normal close frame, best effort.
func (c *wsConn) closeNormal() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		c.log.Debug().Err(err).Msg("close frame")
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *wsConn) writePump() {
	for f := range c.send {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			c.log.Error().Err(err).Msg("writePump set deadline")
			_ = c.ws.Close()
			return
		}
		if err := c.ws.WriteMessage(f.Type, f.Data); err != nil {
			c.log.Error().Err(err).Msg("writePump write error")
			_ = c.ws.Close()
			return
		}
	}
}

// readPump decodes frames until the socket fails, then reports the error once.
func (c *wsConn) readPump(onResponse func(*wsConn, protocol.Frame), onError func(*wsConn, error)) {
	defer c.Close()
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			onError(c, err)
			return
		}
		onResponse(c, protocol.Frame{Type: mt, Data: data})
	}
}
