package signal

import "errors"

var (
	ErrConnectCanceled = errors.New("signal: connect attempt canceled")
	ErrNotConnected    = errors.New("signal: not connected")
	ErrClosed          = errors.New("signal: client closed")
	ErrBackpressure    = errors.New("signal: backpressure")
	ErrJoinTimeout     = errors.New("signal: join timeout")
)

// ConnectionError carries the server supplied reason for a failed or lost connection.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return "signal connection: " + e.Err.Error()
	}
	return "signal connection: " + e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }
