package signal

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dkeye/VoiceClient/internal/core"
)

// buildURL keeps the query order the server logs expect: protocol, token, sdk, version, options.
func buildURL(base, token string, opts *core.ConnectOptions, sdk, version string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse signal url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("signal url scheme %q, want ws or wss", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rtc"

	var q strings.Builder
	q.WriteString("protocol=" + strconv.Itoa(ProtocolVersion))
	q.WriteString("&access_token=" + url.QueryEscape(token))
	q.WriteString("&sdk=" + url.QueryEscape(sdk))
	q.WriteString("&version=" + url.QueryEscape(version))
	if opts != nil {
		q.WriteString("&auto_subscribe=" + boolParam(opts.AutoSubscribe))
		if opts.Reconnect {
			q.WriteString("&reconnect=1")
		}
	}
	u.RawQuery = q.String()
	u.Fragment = ""
	return u.String(), nil
}

// validateURL maps ws(s)://host/rtc?q to http(s)://host/rtc/validate?q.
func validateURL(rtcURL string) (string, error) {
	u, err := url.Parse(rtcURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("validate url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/validate"
	return u.String(), nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
