package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// MediaSection is the summary of one m= line.
type MediaSection struct {
	Kind      string
	Mid       string
	Direction string
}

func (m MediaSection) String() string {
	return fmt.Sprintf("%s/%s:%s", m.Kind, m.Mid, m.Direction)
}

var directions = []string{sdp.AttrKeySendRecv, sdp.AttrKeySendOnly, sdp.AttrKeyRecvOnly, sdp.AttrKeyInactive}

// MediaSections parses raw SDP and lists its media sections in order.
func MediaSections(raw string) ([]MediaSection, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	out := make([]MediaSection, 0, len(parsed.MediaDescriptions))
	for _, md := range parsed.MediaDescriptions {
		sec := MediaSection{Kind: md.MediaName.Media}
		sec.Mid, _ = md.Attribute(sdp.AttrKeyMID)
		for _, d := range directions {
			if _, ok := md.Attribute(d); ok {
				sec.Direction = d
				break
			}
		}
		out = append(out, sec)
	}
	return out, nil
}

func summarize(raw string) string {
	secs, err := MediaSections(raw)
	if err != nil {
		return "unparsable"
	}
	parts := make([]string, len(secs))
	for i, s := range secs {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
