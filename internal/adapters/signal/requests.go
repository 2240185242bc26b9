package signal

import (
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
)

func (c *Client) SendOffer(sd webrtc.SessionDescription) error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Offer{Offer: protocol.ToProtoSessionDescription(sd)},
	})
}

func (c *Client) SendAnswer(sd webrtc.SessionDescription) error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Answer{Answer: protocol.ToProtoSessionDescription(sd)},
	})
}

func (c *Client) SendCandidate(ci webrtc.ICECandidateInit, target livekit.SignalTarget) error {
	init, err := protocol.MarshalCandidate(ci)
	if err != nil {
		return err
	}
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Trickle{Trickle: &livekit.TrickleRequest{
			CandidateInit: init,
			Target:        target,
		}},
	})
}

func (c *Client) SendAddTrack(cid, name string, kind livekit.TrackType, dims *core.TrackDimensions) error {
	req := &livekit.AddTrackRequest{
		Cid:  cid,
		Name: name,
		Type: kind,
	}
	if dims != nil {
		req.Width = dims.Width
		req.Height = dims.Height
	}
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_AddTrack{AddTrack: req},
	})
}

func (c *Client) SendMuteTrack(sid string, muted bool) error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Mute{Mute: &livekit.MuteTrackRequest{Sid: sid, Muted: muted}},
	})
}

func (c *Client) SendUpdateTrackSettings(sid string, disabled bool, quality livekit.VideoQuality) error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_TrackSetting{TrackSetting: &livekit.UpdateTrackSettings{
			TrackSids: []string{sid},
			Disabled:  disabled,
			Quality:   quality,
		}},
	})
}

func (c *Client) SendUpdateSubscription(sid string, subscribe bool) error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Subscription{Subscription: &livekit.UpdateSubscription{
			TrackSids: []string{sid},
			Subscribe: subscribe,
		}},
	})
}

func (c *Client) SendLeave() error {
	return c.send(&livekit.SignalRequest{
		Message: &livekit.SignalRequest_Leave{Leave: &livekit.LeaveRequest{}},
	})
}

// send never queues: outside Connected the request is dropped.
func (c *Client) send(req *livekit.SignalRequest) error {
	kind := protocol.RequestKind(req)

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != domain.Connected || conn == nil {
		c.log.Warn().Str("kind", string(kind)).Str("state", state.String()).Msg("drop request, not connected")
		return ErrNotConnected
	}
	f, err := c.codec.EncodeRequest(req)
	if err != nil {
		c.log.Error().Err(err).Str("kind", string(kind)).Msg("encode request")
		return err
	}
	if err := conn.TrySend(f); err != nil {
		c.log.Warn().Err(err).Str("kind", string(kind)).Msg("send request")
		return err
	}
	c.log.Debug().Str("kind", string(kind)).Msg("sent")
	return nil
}
