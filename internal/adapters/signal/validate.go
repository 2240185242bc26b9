package signal

import (
	"context"
	"io"
	"net/http"
	"strings"
)

const maxReasonBytes = 4 << 10

// validate asks the server why the connection at rtcURL failed.
// A non-success body becomes the reason; otherwise the transport error is surfaced.
func (c *Client) validate(ctx context.Context, rtcURL string, cause error) *ConnectionError {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ValidateTimeout)
	defer cancel()

	fallback := &ConnectionError{Reason: cause.Error(), Err: cause}

	vurl, err := validateURL(rtcURL)
	if err != nil {
		c.log.Warn().Err(err).Msg("validate url")
		return fallback
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vurl, nil)
	if err != nil {
		return fallback
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("validate request failed")
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return fallback
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxReasonBytes))
	reason := strings.TrimSpace(string(body))
	if reason == "" {
		reason = resp.Status
	}
	c.log.Info().Int("status", resp.StatusCode).Str("reason", reason).Msg("validate")
	return &ConnectionError{Reason: reason, Err: cause}
}
