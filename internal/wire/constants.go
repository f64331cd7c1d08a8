// Package wire implements the group-flying datagram protocol: the
// envelope framing and the fixed-point AircraftPosition codec, plus the
// REPORT/LEAVING/WORLDSTATE payload layouts carried inside it.
package wire

import "time"

// Protocol constants, normative per the session-hub/client-link wire format.
const (
	MaxInSession = 16
	MaxDatagramLen = 524
	MaxPayloadLen  = 512

	ClientUpdatePeriod     = 100 * time.Millisecond
	ServerBroadcastPeriod  = 320 * time.Millisecond
	IDRebroadcastPeriod    = 7500 * time.Millisecond
	MembershipTimeout      = 5000 * time.Millisecond
	PredictionInterceptMs  = 350

	// MaxIdentityLen is the maximum UTF-8 byte length of a name or
	// callsign on the wire, excluding the NUL terminator.
	MaxIdentityLen = 31

	// NoSlot is the slot_id value of an identity that has not yet been
	// admitted to a session.
	NoSlot uint8 = 0xFF

	// aircraftPositionLen is the fixed wire size of an encoded AircraftPosition.
	aircraftPositionLen = 29

	// envelopeLen is the fixed size of the datagram envelope header.
	envelopeLen = 8
)

// Command identifies the payload kind carried by a datagram envelope.
type Command uint16

const (
	CommandReport     Command = 0
	CommandLeaving    Command = 1
	CommandWorldstate Command = 2
)

func (c Command) String() string {
	switch c {
	case CommandReport:
		return "REPORT"
	case CommandLeaving:
		return "LEAVING"
	case CommandWorldstate:
		return "WORLDSTATE"
	default:
		return "UNKNOWN"
	}
}
