package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// OnError is the signal client's report of an abnormal close. While joined it
// starts the reconnect loop; state, buffers and pending publishes are kept.
func (e *Engine) OnError(err error) {
	e.mu.Lock()
	if e.closed || !e.active {
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("signal error while not joined")
		return
	}
	if e.reconnecting {
		e.lostAgain = true
		e.mu.Unlock()
		return
	}
	e.reconnecting = true
	e.mu.Unlock()

	e.log.Warn().Err(err).Msg("signal lost, reconnecting")
	go e.reconnect()
}

func (e *Engine) reconnect() {
	for {
		if !e.reconnectOnce() {
			return
		}
		e.mu.Lock()
		if e.lostAgain && !e.closed {
			e.lostAgain = false
			e.mu.Unlock()
			continue
		}
		e.reconnecting = false
		pub := e.publisher
		closed := e.closed
		e.mu.Unlock()

		if !closed {
			pub.negotiate(true)
		}
		return
	}
}

// reconnectOnce retries until success or the policy gives up; false means the engine is done.
func (e *Engine) reconnectOnce() bool {
	e.mu.Lock()
	url, token := e.url, e.token
	e.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.ReconnectInitialInterval
	b.MaxInterval = e.opts.ReconnectMaxInterval
	b.MaxElapsedTime = e.opts.ReconnectTimeout

	attempts := 0
	op := func() error {
		attempts++
		err := e.signal.Reconnect(e.ctx, url, token)
		if err != nil && e.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		e.log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", next).Msg("reconnect failed")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, e.ctx), notify); err != nil {
		if e.ctx.Err() != nil {
			return false
		}
		e.log.Error().Err(err).Int("attempts", attempts).Msg("giving up reconnect")
		e.closeWith("reconnect failed", false)
		return false
	}
	e.log.Info().Int("attempts", attempts).Msg("signal reconnected")
	return true
}
