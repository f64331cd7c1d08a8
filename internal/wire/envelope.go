package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDatagramMalformed indicates a datagram whose length or declared
// payload length is inconsistent with the envelope framing. Per the
// error-handling design, this is a per-datagram condition: the owner
// drops and logs it, never propagating it further.
var ErrDatagramMalformed = errors.New("wire: malformed datagram")

// Envelope is the 8-byte header that precedes every datagram payload.
type Envelope struct {
	SequenceNumber uint32
	Command        Command
	PayloadLength  uint16
}

// EnvelopeLen is the fixed size of the envelope header.
func EnvelopeLen() int { return envelopeLen }

// EncodeEnvelope appends seq/cmd/payload to the 8-byte envelope header
// followed by payload itself, producing a complete datagram. It returns
// ErrDatagramMalformed if payload exceeds MaxPayloadLen.
func EncodeEnvelope(seq uint32, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("encode envelope: payload length %d exceeds max %d: %w",
			len(payload), MaxPayloadLen, ErrDatagramMalformed)
	}

	buf := make([]byte, envelopeLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	binary.BigEndian.PutUint16(buf[4:6], uint16(cmd))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(payload)))
	copy(buf[envelopeLen:], payload)
	return buf, nil
}

// DecodeEnvelope parses the envelope header and returns it along with the
// payload slice (a view into datagram, not a copy). A datagram is valid
// iff len(datagram) >= 8, payload_length <= len(datagram)-8 and
// payload_length <= MaxPayloadLen; any other shape returns
// ErrDatagramMalformed.
func DecodeEnvelope(datagram []byte) (Envelope, []byte, error) {
	if len(datagram) < envelopeLen {
		return Envelope{}, nil, fmt.Errorf("decode envelope: datagram shorter than header: %w", ErrDatagramMalformed)
	}

	env := Envelope{
		SequenceNumber: binary.BigEndian.Uint32(datagram[0:4]),
		Command:        Command(binary.BigEndian.Uint16(datagram[4:6])),
		PayloadLength:  binary.BigEndian.Uint16(datagram[6:8]),
	}

	available := len(datagram) - envelopeLen
	if int(env.PayloadLength) > available {
		return Envelope{}, nil, fmt.Errorf(
			"decode envelope: declared payload length %d exceeds %d bytes available: %w",
			env.PayloadLength, available, ErrDatagramMalformed)
	}
	if int(env.PayloadLength) > MaxPayloadLen {
		return Envelope{}, nil, fmt.Errorf("decode envelope: payload length %d exceeds max %d: %w",
			env.PayloadLength, MaxPayloadLen, ErrDatagramMalformed)
	}

	payload := datagram[envelopeLen : envelopeLen+int(env.PayloadLength)]
	return env, payload, nil
}
