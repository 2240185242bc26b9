package domain

import "fmt"

// ConnectionState of the signaling connection.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Reconnecting:
		return "RECONNECTING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// NegotiationState of a single peer session.
type NegotiationState int32

const (
	NegotiationIdle NegotiationState = iota
	NegotiationCreatingOffer
	NegotiationSettingLocalDescription
	// waiting for the remote answer
	NegotiationAwaitingAnswer
)

func (n NegotiationState) String() string {
	switch n {
	case NegotiationIdle:
		return "IDLE"
	case NegotiationCreatingOffer:
		return "CREATING_OFFER"
	case NegotiationSettingLocalDescription:
		return "SETTING_LOCAL_DESCRIPTION"
	case NegotiationAwaitingAnswer:
		return "AWAITING_ANSWER"
	default:
		return fmt.Sprintf("%d", int(n))
	}
}
