// Package protocol encodes and decodes signal messages exchanged with the media relay.
// A connection speaks either protojson text or protobuf binary; decoding accepts both.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ErrProtocol marks malformed or unexpected wire data.
var ErrProtocol = errors.New("protocol error")

// Encoding is selected once per connection.
type Encoding int

const (
	JSON Encoding = iota
	Protobuf
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json", "text":
		return JSON, nil
	case "protobuf", "proto", "binary":
		return Protobuf, nil
	default:
		return JSON, fmt.Errorf("unknown signal encoding %q", s)
	}
}

func (e Encoding) String() string {
	switch e {
	case JSON:
		return "json"
	case Protobuf:
		return "protobuf"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

// Frame is a single websocket message: its message type and payload.
type Frame struct {
	Type int
	Data []byte
}

var jsonDecoder = protojson.UnmarshalOptions{DiscardUnknown: true}

// Codec is stateless; the zero value speaks JSON.
type Codec struct {
	enc Encoding
}

func NewCodec(enc Encoding) Codec { return Codec{enc: enc} }

func (c Codec) Encoding() Encoding { return c.enc }

func (c Codec) EncodeRequest(req *livekit.SignalRequest) (Frame, error) {
	return c.encode(req)
}

// EncodeResponse is the server-side counterpart, used by tools and tests.
func (c Codec) EncodeResponse(resp *livekit.SignalResponse) (Frame, error) {
	return c.encode(resp)
}

func (c Codec) encode(m proto.Message) (Frame, error) {
	switch c.enc {
	case Protobuf:
		b, err := proto.Marshal(m)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal protobuf: %w", err)
		}
		return Frame{Type: websocket.BinaryMessage, Data: b}, nil
	default:
		b, err := protojson.Marshal(m)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal json: %w", err)
		}
		return Frame{Type: websocket.TextMessage, Data: b}, nil
	}
}

// DecodeResponse accepts text and binary frames alike.
// A response without a known message decodes to KindNoop, not an error.
func DecodeResponse(f Frame) (*livekit.SignalResponse, error) {
	resp := &livekit.SignalResponse{}
	if err := decode(f, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func DecodeRequest(f Frame) (*livekit.SignalRequest, error) {
	req := &livekit.SignalRequest{}
	if err := decode(f, req); err != nil {
		return nil, err
	}
	return req, nil
}

func decode(f Frame, m proto.Message) error {
	var err error
	switch f.Type {
	case websocket.TextMessage:
		err = jsonDecoder.Unmarshal(f.Data, m)
	case websocket.BinaryMessage:
		err = proto.Unmarshal(f.Data, m)
	default:
		return fmt.Errorf("%w: unsupported frame type %d", ErrProtocol, f.Type)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}
