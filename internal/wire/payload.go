package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Identity carries the optional name/callsign strings exchanged alongside
// a REPORT or a WORLDSTATE name_update. Both are UTF-8, truncated to
// MaxIdentityLen bytes on ingestion.
type Identity struct {
	Name     string
	Callsign string
}

func truncateIdentity(s string) string {
	if len(s) <= MaxIdentityLen {
		return s
	}
	return s[:MaxIdentityLen]
}

func appendNulString(buf []byte, s string) []byte {
	buf = append(buf, []byte(truncateIdentity(s))...)
	return append(buf, 0)
}

func readNulString(buf []byte) (string, []byte, error) {
	idx := bytes.IndexByte(buf, 0)
	if idx < 0 {
		return "", nil, fmt.Errorf("read identity string: missing NUL terminator: %w", ErrDatagramMalformed)
	}
	return truncateIdentity(string(buf[:idx])), buf[idx+1:], nil
}

// EncodeReport builds a REPORT payload: uuid + position, with an optional
// trailing name/callsign pair.
func EncodeReport(uuid uint32, pos AircraftPosition, identity *Identity) []byte {
	buf := make([]byte, 0, 4+aircraftPositionLen+2*(MaxIdentityLen+1))
	buf = binary.BigEndian.AppendUint32(buf, uuid)
	buf = append(buf, Encode(pos)...)
	if identity != nil {
		buf = appendNulString(buf, identity.Name)
		buf = appendNulString(buf, identity.Callsign)
	}
	return buf
}

// DecodeReport parses a REPORT payload. identity is nil when the
// datagram carried no trailing name/callsign pair.
func DecodeReport(payload []byte) (uuid uint32, pos AircraftPosition, identity *Identity, err error) {
	if len(payload) < 4+aircraftPositionLen {
		return 0, AircraftPosition{}, nil, fmt.Errorf("decode report: %w", ErrInsufficientBuffer)
	}
	uuid = binary.BigEndian.Uint32(payload[0:4])
	pos, err = Decode(payload[4 : 4+aircraftPositionLen])
	if err != nil {
		return 0, AircraftPosition{}, nil, err
	}

	rest := payload[4+aircraftPositionLen:]
	if len(rest) == 0 {
		return uuid, pos, nil, nil
	}

	name, rest, err := readNulString(rest)
	if err != nil {
		return 0, AircraftPosition{}, nil, fmt.Errorf("decode report: %w", err)
	}
	callsign, _, err := readNulString(rest)
	if err != nil {
		return 0, AircraftPosition{}, nil, fmt.Errorf("decode report: %w", err)
	}
	return uuid, pos, &Identity{Name: name, Callsign: callsign}, nil
}

// EncodeLeaving builds a LEAVING payload.
func EncodeLeaving(uuid uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uuid)
	return buf
}

// DecodeLeaving parses a LEAVING payload.
func DecodeLeaving(payload []byte) (uuid uint32, err error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("decode leaving: %w", ErrInsufficientBuffer)
	}
	return binary.BigEndian.Uint32(payload[0:4]), nil
}

// WorldstatePosition is one (uuid, position) pair carried in a WORLDSTATE
// payload's positions[] section.
type WorldstatePosition struct {
	UUID     uint32
	Position AircraftPosition
}

// Worldstate is the fully-decoded contents of a hub broadcast.
type Worldstate struct {
	SessionTimeMs uint32
	Expired       []uint32
	Positions     []WorldstatePosition
	NameUpdate    *WorldstateNameUpdate
}

// WorldstateNameUpdate is the optional trailing identity rebroadcast.
type WorldstateNameUpdate struct {
	UUID     uint32
	Identity Identity
}

// EncodeWorldstate builds a WORLDSTATE payload. The caller is responsible
// for respecting MaxPayloadLen; EncodeWorldstate does not itself cap the
// number of positions/expired entries, mirroring the hub's tick logic
// which only appends a name_update "iff payload space remains".
func EncodeWorldstate(ws Worldstate) []byte {
	buf := make([]byte, 0, MaxPayloadLen)
	buf = binary.BigEndian.AppendUint32(buf, ws.SessionTimeMs)
	buf = append(buf, byte(len(ws.Expired)), byte(len(ws.Positions)))

	for _, uuid := range ws.Expired {
		buf = binary.BigEndian.AppendUint32(buf, uuid)
	}
	for _, wp := range ws.Positions {
		buf = binary.BigEndian.AppendUint32(buf, wp.UUID)
		buf = append(buf, Encode(wp.Position)...)
	}
	if ws.NameUpdate != nil {
		buf = binary.BigEndian.AppendUint32(buf, ws.NameUpdate.UUID)
		buf = appendNulString(buf, ws.NameUpdate.Identity.Name)
		buf = appendNulString(buf, ws.NameUpdate.Identity.Callsign)
	}
	return buf
}

// DecodeWorldstate parses a WORLDSTATE payload.
func DecodeWorldstate(payload []byte) (Worldstate, error) {
	if len(payload) < 6 {
		return Worldstate{}, fmt.Errorf("decode worldstate: %w", ErrInsufficientBuffer)
	}

	var ws Worldstate
	ws.SessionTimeMs = binary.BigEndian.Uint32(payload[0:4])
	nExpired := int(payload[4])
	nPositions := int(payload[5])
	rest := payload[6:]

	for i := 0; i < nExpired; i++ {
		if len(rest) < 4 {
			return Worldstate{}, fmt.Errorf("decode worldstate: expired[%d]: %w", i, ErrInsufficientBuffer)
		}
		ws.Expired = append(ws.Expired, binary.BigEndian.Uint32(rest[0:4]))
		rest = rest[4:]
	}

	for i := 0; i < nPositions; i++ {
		if len(rest) < 4+aircraftPositionLen {
			return Worldstate{}, fmt.Errorf("decode worldstate: positions[%d]: %w", i, ErrInsufficientBuffer)
		}
		uuid := binary.BigEndian.Uint32(rest[0:4])
		pos, err := Decode(rest[4 : 4+aircraftPositionLen])
		if err != nil {
			return Worldstate{}, fmt.Errorf("decode worldstate: positions[%d]: %w", i, err)
		}
		ws.Positions = append(ws.Positions, WorldstatePosition{UUID: uuid, Position: pos})
		rest = rest[4+aircraftPositionLen:]
	}

	if len(rest) == 0 {
		return ws, nil
	}
	if len(rest) < 4 {
		return Worldstate{}, fmt.Errorf("decode worldstate: name_update: %w", ErrInsufficientBuffer)
	}
	uuid := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	name, rest, err := readNulString(rest)
	if err != nil {
		return Worldstate{}, fmt.Errorf("decode worldstate: name_update: %w", err)
	}
	callsign, _, err := readNulString(rest)
	if err != nil {
		return Worldstate{}, fmt.Errorf("decode worldstate: name_update: %w", err)
	}
	ws.NameUpdate = &WorldstateNameUpdate{UUID: uuid, Identity: Identity{Name: name, Callsign: callsign}}
	return ws, nil
}
